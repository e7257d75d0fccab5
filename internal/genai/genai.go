// Package genai provides the OpenAI-backed response generator for coaching
// lines. The generator gets its own bounded timeout and is invoked exactly
// once per event; any failure here is resolved by deterministic fallback
// text upstream, never retried.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kidvoice-labs/safegate/internal/models"
)

// DefaultTimeout bounds one generation call so a slow model feeds straight
// into fallback instead of stalling the session pipeline.
const DefaultTimeout = 8 * time.Second

// ClientInterface defines the generator operations used by the orchestrator,
// allowing tests to substitute a mock.
type ClientInterface interface {
	GenerateCandidate(ctx context.Context, systemPrompt, userPrompt string) (models.Candidate, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding the OPENAI_API_KEY variable.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model used for generation.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout sets the per-call timeout budget.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client wraps the OpenAI chat completion service for generating coaching
// candidates.
type Client struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewClient initializes a new GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable when not provided via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	slog.Debug("GenAI client config loaded", "APIKey_set", cfg.APIKey != "", "model", cfg.Model, "timeout", cfg.Timeout)

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		client:  openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// GenerateCandidate runs one chat completion and parses the JSON candidate
// from the model output. Network errors, timeouts, and malformed output all
// surface as errors for the caller's fallback branch.
func (c *Client) GenerateCandidate(ctx context.Context, systemPrompt, userPrompt string) (models.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return models.Candidate{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.Candidate{}, fmt.Errorf("no choices returned")
	}

	return ParseCandidate(resp.Choices[0].Message.Content)
}

// ParseCandidate decodes the model output into a candidate. It tolerates
// markdown code fences around the JSON body but nothing else.
func ParseCandidate(content string) (models.Candidate, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var candidate models.Candidate
	if err := json.Unmarshal([]byte(cleaned), &candidate); err != nil {
		return models.Candidate{}, fmt.Errorf("unparsable generator output: %w", err)
	}
	if candidate.CoachLine == "" {
		return models.Candidate{}, fmt.Errorf("generator output missing coach_line")
	}
	return candidate, nil
}
