package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"liftlore/internal/backend"
	"liftlore/internal/exercise"
	"liftlore/internal/payload"
)

const (
	defaultBaseURL     = "https://api.anthropic.com"
	apiVersion         = "2023-06-01"
	defaultHTTPTimeout = 60 * time.Second
)

// Config captures the runtime settings for the Anthropic Messages API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	Temperature    float32
	TimeoutSeconds int
	Identity       string
	MuscleSchema   payload.MuscleSchema
}

// Client implements backend.Backend over the Anthropic Messages API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs an Anthropic backend.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key required")
	}
	if cfg.Model == "" {
		return nil, errors.New("anthropic: model required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Identity implements backend.Backend.
func (c *Client) Identity() string {
	if c.cfg.Identity != "" {
		return c.cfg.Identity
	}
	return c.cfg.Model
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string    `json:"stop_reason"`
	Error      *apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Generate implements backend.Backend with a single request; callers own
// the retry policy.
func (c *Client) Generate(ctx context.Context, record exercise.Record) (string, error) {
	maxTokens := c.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	reqBody := messagesRequest{
		Model:       c.cfg.Model,
		MaxTokens:   maxTokens,
		Temperature: c.cfg.Temperature,
		System:      backend.SystemPrompt,
		Messages: []message{
			{Role: "user", Content: backend.BuildPrompt(record, c.cfg.MuscleSchema)},
		},
	}

	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return "", backend.Wrap(backend.ErrFatal, "anthropic encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(encoded))
	if err != nil {
		return "", backend.Wrap(backend.ErrFatal, "anthropic build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		classified := backend.ClassifyTransport(err)
		if errors.Is(classified, context.Canceled) || errors.Is(classified, context.DeadlineExceeded) {
			return "", classified
		}
		return "", backend.Wrap(classified, "anthropic request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", backend.Wrap(backend.ErrTransient, "anthropic read response", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var failure messagesResponse
		errType, errMessage := "", strings.TrimSpace(string(body))
		if json.Unmarshal(body, &failure) == nil && failure.Error != nil {
			errType = failure.Error.Type
			errMessage = failure.Error.Message
		}
		marker := backend.ClassifyAPIError(resp.StatusCode, errType, errMessage)
		return "", backend.Wrap(marker, fmt.Sprintf("anthropic http %d", resp.StatusCode), errors.New(errMessage))
	}

	var completion messagesResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", backend.Wrap(backend.ErrTransient, "anthropic decode response", err)
	}
	if completion.Error != nil {
		return "", backend.Wrap(backend.ErrFatal, "anthropic api error", errors.New(completion.Error.Message))
	}

	var text strings.Builder
	for _, block := range completion.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if content := strings.TrimSpace(text.String()); content != "" {
		return content, nil
	}
	return "", backend.Wrap(backend.ErrTransient, fmt.Sprintf("anthropic empty completion (stop_reason=%q)", completion.StopReason), nil)
}
