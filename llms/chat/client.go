package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/kgqa/graph"
	"github.com/smallnest/kgqa/log"
)

var (
	ErrNoModel         = errors.New("no language model configured")
	ErrEmptyCompletion = errors.New("empty completion")
)

// Client sends single-turn prompts to a language model using per-task
// profiles. Each attempt is bounded by a timeout and transient failures are
// retried.
type Client struct {
	model        llms.Model
	defaultModel string
	timeout      time.Duration
	retry        *graph.RetryConfig
	logger       log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithDefaultModel sets the model used by profiles that do not name one.
func WithDefaultModel(name string) Option {
	return func(c *Client) {
		c.defaultModel = name
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetry sets the retry policy.
func WithRetry(cfg *graph.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New wraps model.
func New(model llms.Model, opts ...Option) (*Client, error) {
	if model == nil {
		return nil, ErrNoModel
	}
	c := &Client{
		model:   model,
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry == nil {
		c.retry = graph.DefaultRetryConfig()
	}
	c.logger = log.OrDefault(c.logger)
	return c, nil
}

// Model returns the wrapped model.
func (c *Client) Model() llms.Model {
	return c.model
}

// ModelName returns the model a profile resolves to; empty means the
// backend default.
func (c *Client) ModelName(p Profile) string {
	if p.Model != "" {
		return p.Model
	}
	return c.defaultModel
}

// Complete sends prompt with the profile's system prompt and settings and
// returns the trimmed completion text.
func (c *Client) Complete(ctx context.Context, p Profile, prompt string) (string, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if p.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, p.SystemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	opts := []llms.CallOption{
		llms.WithTemperature(p.Temperature),
	}
	if p.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.MaxTokens))
	}
	if name := c.ModelName(p); name != "" {
		opts = append(opts, llms.WithModel(name))
	}
	if p.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}

	retry := *c.retry
	retry.RetryableErrors = retryable
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("%s generation attempt %d failed: %v (retrying in %v)", p.Name, attempt, err, delay)
	}

	start := time.Now()
	text, err := graph.Retry(ctx, &retry, func(ctx context.Context, _ int) (string, error) {
		return c.generate(ctx, messages, opts)
	})
	if err != nil {
		return "", fmt.Errorf("%s generation: %w", p.Name, err)
	}
	c.logger.Debug("%s generation took %v (%d chars)", p.Name, time.Since(start), len(text))
	return text, nil
}

func (c *Client) generate(ctx context.Context, messages []llms.MessageContent, opts []llms.CallOption) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func retryable(err error) bool {
	return !errors.Is(err, context.Canceled)
}
