package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Failure classification for generation calls. Transient failures may be
// retried; quota and fatal failures must abort the run because repeating
// the call will keep failing for every remaining item.
var (
	ErrTransient = errors.New("transient backend failure")
	ErrQuota     = errors.New("backend quota exhausted")
	ErrFatal     = errors.New("fatal backend failure")
)

// Wrap tags err with one of the sentinel markers above while preserving
// the operation context in the message.
func Wrap(marker error, operation string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "backend"
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, operation, err)
	}
	return fmt.Errorf("%w: %s", marker, operation)
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsRunAbort reports whether err must halt the whole run.
func IsRunAbort(err error) bool {
	return errors.Is(err, ErrQuota) || errors.Is(err, ErrFatal)
}

// ClassifyHTTPStatus maps an HTTP status code from a provider API to the
// failure taxonomy. 401/403 mean bad credentials, 402 means the account is
// out of credit; both categories will not heal on retry.
func ClassifyHTTPStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrFatal
	case status == http.StatusPaymentRequired:
		return ErrQuota
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return ErrTransient
	default:
		return ErrFatal
	}
}

// ClassifyAPIError refines ClassifyHTTPStatus with the provider's error
// body. Several providers signal exhausted credit with the same 429 status
// they use for momentary rate limits; only the body tells them apart.
func ClassifyAPIError(status int, errorType, message string) error {
	combined := strings.ToLower(errorType + " " + message)
	if strings.Contains(combined, "insufficient_quota") ||
		strings.Contains(combined, "quota exceeded") ||
		strings.Contains(combined, "credit balance") {
		return ErrQuota
	}
	return ClassifyHTTPStatus(status)
}

// ClassifyTransport maps connection-level errors. Timeouts and refused
// connections are transient; context cancellation is passed through so the
// caller can distinguish an operator interrupt from a backend problem.
func ClassifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTransient
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrTransient
	}
	return ErrTransient
}
