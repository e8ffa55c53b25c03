package enrich

import (
	"context"
	"errors"

	"github.com/sells-group/catalog-importer/internal/resilience"
	"github.com/sells-group/catalog-importer/pkg/anthropic"
	"github.com/sells-group/catalog-importer/pkg/chat"
)

type anthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicProvider returns a Provider backed by the hosted Anthropic API.
// The system prompt of every call carries a cache breakpoint since it is
// shared by all products of a run.
func NewAnthropicProvider(client anthropic.Client, model string, maxTokens int64, cfg Config) *TextProvider {
	if cfg.Name == "" {
		cfg.Name = "anthropic"
	}
	return NewTextProvider(&anthropicCompleter{client: client, model: model, maxTokens: maxTokens}, cfg)
}

func (c *anthropicCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if c.maxTokens > 0 && (maxTokens == 0 || maxTokens > c.maxTokens) {
		maxTokens = c.maxTokens
	}
	temp := req.Temperature
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(req.System),
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return "", resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return "", err
	}
	resp.Usage.LogCost(c.model, req.Stage)
	return resp.Text(), nil
}

type chatCompleter struct {
	client    chat.Client
	maxTokens int
}

// NewLocalProvider returns a Provider backed by a self-hosted
// OpenAI-compatible chat-completions server.
func NewLocalProvider(client chat.Client, maxTokens int, cfg Config) *TextProvider {
	if cfg.Name == "" {
		cfg.Name = "local"
	}
	return NewTextProvider(&chatCompleter{client: client, maxTokens: maxTokens}, cfg)
}

func (c *chatCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	maxTokens := req.MaxTokens
	if c.maxTokens > 0 && (maxTokens == 0 || maxTokens > c.maxTokens) {
		maxTokens = c.maxTokens
	}
	temp := req.Temperature
	resp, err := c.client.ChatCompletion(ctx, chat.ChatCompletionRequest{
		Messages: []chat.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		var statusErr *chat.StatusError
		if errors.As(err, &statusErr) && resilience.IsTransientHTTPStatus(statusErr.StatusCode) {
			return "", resilience.NewTransientError(err, statusErr.StatusCode)
		}
		return "", err
	}
	return resp.Text(), nil
}
