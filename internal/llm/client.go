package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/luminalhq/docchat/internal/metrics"
	"github.com/luminalhq/docchat/internal/model"
)

const (
	maxRetryAttempts = 3

	// Answers stay grounded in the supplied context; keep sampling cool.
	maxTemperature = 0.3

	demoEchoLimit = 200

	// Summaries may exceed the target ratio by at most 20% before truncation.
	summarySlack = 1.2
)

// Config controls the completion client.
type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
	DemoMode bool
}

func (c *Config) setDefaults() {
	if c.Model == "" {
		c.Model = "gpt-3.5-turbo"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

// Message is one turn of a chat completion request.
type Message struct {
	Role    string
	Content string
}

// Params tunes a single completion call. Zero values take defaults.
type Params struct {
	Temperature float32
	MaxTokens   int
}

// Client wraps an OpenAI-compatible chat completion endpoint.
type Client struct {
	cfg Config
	api *openai.Client
	log *zap.Logger
}

// NewClient builds a completion client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{cfg: cfg, log: logger}
	if !cfg.DemoMode {
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		c.api = openai.NewClientWithConfig(oc)
	}
	return c
}

// Model returns the configured chat model identifier.
func (c *Client) Model() string { return c.cfg.Model }

// Ping probes the provider without spending completion tokens.
func (c *Client) Ping(ctx context.Context) error {
	if c.cfg.DemoMode {
		return nil
	}
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("%w: llm ping: %v", model.ErrUpstreamUnavailable, err)
	}
	return nil
}

// Complete runs one chat completion. The whole call, retries included, is
// bounded by the configured timeout; hitting that wall yields ErrLLMTimeout.
func (c *Client) Complete(ctx context.Context, messages []Message, p Params) (string, error) {
	if len(messages) == 0 {
		return "", model.WithStage(model.StageLLM, fmt.Errorf("%w: empty message list", model.ErrInvalidQuery))
	}
	if p.Temperature <= 0 || p.Temperature > maxTemperature {
		p.Temperature = maxTemperature
	}

	if c.cfg.DemoMode {
		return demoComplete(messages), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	start := time.Now()

	var resp openai.ChatCompletionResponse
	op := func() error {
		r, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.cfg.Model,
			Messages:    msgs,
			Temperature: p.Temperature,
			MaxTokens:   p.MaxTokens,
		})
		if err != nil {
			if transientChat(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.Multiplier = 2
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxRetryAttempts-1), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		elapsed := time.Since(start)
		metrics.RecordLLMMetrics(c.cfg.Model, "error", elapsed.Seconds())
		switch {
		case ctx.Err() == context.DeadlineExceeded:
			return "", model.WithStage(model.StageLLM,
				fmt.Errorf("%w: no completion within %s", model.ErrLLMTimeout, c.cfg.Timeout))
		case ctx.Err() != nil:
			return "", model.WithStage(model.StageLLM, model.Classify(ctx.Err()))
		default:
			return "", model.WithStage(model.StageLLM,
				fmt.Errorf("%w: completion after %d attempts: %v", model.ErrUpstreamUnavailable, maxRetryAttempts, err))
		}
	}

	if len(resp.Choices) == 0 {
		metrics.RecordLLMMetrics(c.cfg.Model, "error", time.Since(start).Seconds())
		return "", model.WithStage(model.StageLLM,
			fmt.Errorf("%w: completion returned no choices", model.ErrInternal))
	}
	metrics.RecordLLMMetrics(c.cfg.Model, "ok", time.Since(start).Seconds())
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Summarize compresses text to roughly ratio of its length. The output is
// hard-truncated at ratio*1.2 of the input length so downstream compression
// bounds hold regardless of how chatty the model is.
func (c *Client) Summarize(ctx context.Context, text string, ratio float64) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", nil
	}
	if ratio <= 0 || ratio >= 1 {
		return "", model.WithStage(model.StageLLM,
			fmt.Errorf("%w: summary ratio must be in (0,1), got %g", model.ErrInvalidQuery, ratio))
	}

	limit := int(math.Ceil(float64(len(trimmed)) * ratio * summarySlack))
	if limit < 1 {
		limit = 1
	}

	if c.cfg.DemoMode {
		return truncate(trimmed, limit), nil
	}

	target := int(float64(len(trimmed)) * ratio)
	prompt := fmt.Sprintf(
		"Summarize the following text in at most %d characters. Preserve key facts, names and numbers. Output only the summary.\n\n%s",
		target, trimmed)

	out, err := c.Complete(ctx, []Message{
		{Role: openai.ChatMessageRoleSystem, Content: "You are a precise summarization engine."},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, Params{})
	if err != nil {
		return "", err
	}
	return truncate(out, limit), nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return strings.TrimSpace(s[:limit])
}

// demoComplete echoes the head of the last user message so the pipeline runs
// end to end without a provider.
func demoComplete(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == openai.ChatMessageRoleUser {
			body := strings.TrimSpace(messages[i].Content)
			if len(body) > demoEchoLimit {
				body = body[:demoEchoLimit]
			}
			return body
		}
	}
	return ""
}

func transientChat(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
