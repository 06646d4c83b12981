// Package openai adapts OpenAI-compatible chat endpoints to ports.LLM.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	api "github.com/sashabaranov/go-openai"

	"github.com/aretw0/sqlgraph/internal/logging"
	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/ports"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-4o-mini"

// Config selects the endpoint and model.
type Config struct {
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	Model       string        `yaml:"model" mapstructure:"model"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Temperature float32       `yaml:"temperature" mapstructure:"temperature"`
}

// Client implements ports.LLM.
type Client struct {
	api    *api.Client
	cfg    Config
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client for cfg.
func New(cfg Config, opts ...Option) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	apiCfg := api.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	// Streams are bounded by ctx; a client timeout would cut long reports.
	apiCfg.HTTPClient = &http.Client{}

	c := &Client{api: api.NewClientWithConfig(apiCfg), cfg: cfg, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) request(p ports.Prompt, stream bool) api.ChatCompletionRequest {
	var msgs []api.ChatCompletionMessage
	if p.System != "" {
		msgs = append(msgs, api.ChatCompletionMessage{Role: api.ChatMessageRoleSystem, Content: p.System})
	}
	msgs = append(msgs, api.ChatCompletionMessage{Role: api.ChatMessageRoleUser, Content: p.User})
	return api.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: c.cfg.Temperature,
		Stream:      stream,
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// Complete returns the first choice of a single chat completion.
func (c *Client) Complete(ctx context.Context, p ports.Prompt) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, c.request(p, false))
	if err != nil {
		return "", classify(err)
	}
	c.logger.Debug("llm completion", "model", c.cfg.Model, "duration", time.Since(start), "tokens", resp.Usage.TotalTokens)
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream delivers content deltas to h in order and returns their concatenation.
func (c *Client) Stream(ctx context.Context, p ports.Prompt, h ports.StreamHandler) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	stream, err := c.api.CreateChatCompletionStream(ctx, c.request(p, true))
	if err != nil {
		return "", classify(err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), classify(err)
		}
		for _, choice := range resp.Choices {
			frag := choice.Delta.Content
			if frag == "" {
				continue
			}
			sb.WriteString(frag)
			if h != nil {
				if err := h(frag); err != nil {
					return sb.String(), err
				}
			}
		}
	}
}

// classify marks rate limits and server errors as transient.
func classify(err error) error {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && retryable(apiErr.HTTPStatusCode) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	var reqErr *api.RequestError
	if errors.As(err, &reqErr) && retryable(reqErr.HTTPStatusCode) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
