package gemini

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"liftlore/internal/backend"
	"liftlore/internal/exercise"
	"liftlore/internal/payload"
)

// Config captures the runtime settings for the Google Gemini backend.
type Config struct {
	APIKey       string
	Model        string
	MaxTokens    int
	Temperature  float32
	TopP         float32
	Identity     string
	MuscleSchema payload.MuscleSchema
}

// Client implements backend.Backend over the Gemini SDK.
type Client struct {
	cfg Config
}

// NewClient constructs a Gemini backend.
func NewClient(cfg Config) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key required")
	}
	if cfg.Model == "" {
		return nil, errors.New("gemini: model required")
	}
	return &Client{cfg: cfg}, nil
}

// Identity implements backend.Backend.
func (c *Client) Identity() string {
	if c.cfg.Identity != "" {
		return c.cfg.Identity
	}
	return c.cfg.Model
}

// Generate implements backend.Backend. The SDK client is cheap to build,
// so one is created per call and closed before returning.
func (c *Client) Generate(ctx context.Context, record exercise.Record) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.cfg.APIKey))
	if err != nil {
		return "", backend.Wrap(backend.ErrFatal, "gemini create client", err)
	}
	defer client.Close()

	model := client.GenerativeModel(c.cfg.Model)
	model.SetTemperature(c.cfg.Temperature)
	if c.cfg.TopP > 0 {
		model.SetTopP(c.cfg.TopP)
	}
	if c.cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(c.cfg.MaxTokens))
	}
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(backend.SystemPrompt)},
	}

	prompt := backend.BuildPrompt(record, c.cfg.MuscleSchema)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyGenerateError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", backend.Wrap(backend.ErrTransient, "gemini empty candidates", nil)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if chunk, ok := part.(genai.Text); ok {
			text.WriteString(string(chunk))
		}
	}
	if content := strings.TrimSpace(text.String()); content != "" {
		return content, nil
	}
	return "", backend.Wrap(backend.ErrTransient, "gemini empty completion", nil)
}

func classifyGenerateError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		marker := backend.ClassifyAPIError(apiErr.Code, "", apiErr.Message)
		return backend.Wrap(marker, "gemini generate", err)
	}
	return backend.Wrap(backend.ClassifyTransport(err), "gemini generate", err)
}
