package chatapi

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
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 60 * time.Second
)

// Config captures the runtime settings for an OpenAI-compatible chat
// completions endpoint. The same wire format is served by OpenAI, Groq,
// and local llama.cpp/Ollama servers, which differ only in BaseURL and
// whether an API key is required.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	Temperature    float32
	TopP           float32
	TimeoutSeconds int
	// RequireKey marks remote profiles; local servers accept requests
	// without credentials.
	RequireKey   bool
	Identity     string
	MuscleSchema payload.MuscleSchema
}

// Client implements backend.Backend over the chat completions API.
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

// NewClient constructs a chat completions backend.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.BaseURL == "" {
		return nil, errors.New("chatapi: base url required")
	}
	if cfg.Model == "" {
		return nil, errors.New("chatapi: model required")
	}
	if cfg.RequireKey && cfg.APIKey == "" {
		return nil, errors.New("chatapi: api key required")
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

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float32           `json:"temperature"`
	TopP           float32           `json:"top_p,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// Generate implements backend.Backend with a single request; callers own
// the retry policy.
func (c *Client) Generate(ctx context.Context, record exercise.Record) (string, error) {
	prompt := c.buildPrompt(record)
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: backend.SystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:      c.cfg.MaxTokens,
		Temperature:    c.cfg.Temperature,
		TopP:           c.cfg.TopP,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}

	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return "", backend.Wrap(backend.ErrFatal, "chatapi encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return "", backend.Wrap(backend.ErrFatal, "chatapi build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		classified := backend.ClassifyTransport(err)
		if errors.Is(classified, context.Canceled) || errors.Is(classified, context.DeadlineExceeded) {
			return "", classified
		}
		return "", backend.Wrap(classified, "chatapi request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", backend.Wrap(backend.ErrTransient, "chatapi read response", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var failure chatResponse
		errType, errMessage := "", strings.TrimSpace(string(body))
		if json.Unmarshal(body, &failure) == nil && failure.Error != nil {
			errType = failure.Error.Type
			errMessage = failure.Error.Message
		}
		marker := backend.ClassifyAPIError(resp.StatusCode, errType, errMessage)
		return "", backend.Wrap(marker, fmt.Sprintf("chatapi http %d", resp.StatusCode), errors.New(errMessage))
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", backend.Wrap(backend.ErrTransient, "chatapi decode response", err)
	}
	if completion.Error != nil {
		return "", backend.Wrap(backend.ErrFatal, "chatapi api error", errors.New(completion.Error.Message))
	}

	for _, choice := range completion.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
		if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
			return "", backend.Wrap(backend.ErrTransient, "chatapi refusal", errors.New(refusal))
		}
	}
	return "", backend.Wrap(backend.ErrTransient, "chatapi empty completion", nil)
}

func (c *Client) buildPrompt(record exercise.Record) string {
	return backend.BuildPrompt(record, c.cfg.MuscleSchema)
}
