// Package llmservice talks to the external completion service: given a system
// instruction and a user message it returns generated text plus usage
// accounting. Transport failures surface as plain errors; the orchestrator
// decides what they mean.
package llmservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"docqa/internal/config"
	"docqa/internal/models"
)

// Completion is the typed result of one completion call.
type Completion struct {
	Text         string
	Usage        models.Usage
	FinishReason string
}

// Service is the completion capability the pipeline consumes.
type Service interface {
	Complete(ctx context.Context, system, user string) (*Completion, error)
	Model() string
}

// Client drives an OpenAI-compatible or Ollama model through langchaingo.
type Client struct {
	llm llms.Model
	cfg *config.LLMConfig
}

func NewClient(cfg *config.LLMConfig) (*Client, error) {
	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case "openai":
		llm, err = openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
			openai.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second}),
		)
	case "ollama":
		llm, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second}),
		)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing LLM: %w", err)
	}
	return &Client{llm: llm, cfg: cfg}, nil
}

func (c *Client) Model() string { return c.cfg.Model }

// Complete runs one bounded completion call.
func (c *Client) Complete(ctx context.Context, system, user string) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSecs)*time.Second)
	defer cancel()

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: system}},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: user}},
		},
	}

	res, err := c.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(c.cfg.Temperature),
		llms.WithMaxTokens(c.cfg.MaxTokens),
	)
	if err != nil {
		return nil, err
	}
	if len(res.Choices) == 0 {
		return nil, errors.New("completion returned no choices")
	}

	choice := res.Choices[0]
	usage := usageFromGenerationInfo(choice.GenerationInfo)
	log.Debug().
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Str("stop_reason", choice.StopReason).
		Msg("completion call finished")

	return &Completion{
		Text:         choice.Content,
		Usage:        usage,
		FinishReason: choice.StopReason,
	}, nil
}

// usageFromGenerationInfo pulls token counts out of langchaingo's untyped
// generation info, which varies slightly by provider.
func usageFromGenerationInfo(info map[string]any) models.Usage {
	u := models.Usage{
		PromptTokens:     intFrom(info, "PromptTokens", "prompt_tokens"),
		CompletionTokens: intFrom(info, "CompletionTokens", "completion_tokens"),
		TotalTokens:      intFrom(info, "TotalTokens", "total_tokens"),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

func intFrom(info map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
