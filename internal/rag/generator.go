package rag

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

const (
	// defaultRateLimit caps generation calls per second across the
	// consumer pool.
	defaultRateLimit = 10
	defaultBurst     = 5
)

// GeneratorConfig configures the OpenAI-compatible chat generator.
type GeneratorConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	// RateLimit caps calls per second. Zero uses the default.
	RateLimit float64
}

// ChatGenerator implements Generator over any OpenAI-compatible chat API.
type ChatGenerator struct {
	client      llms.Model
	temperature float64
	limiter     *rate.Limiter
}

// NewChatGenerator creates a generator for the configured endpoint. An
// empty API key falls back to "none" for local services without auth.
func NewChatGenerator(cfg GeneratorConfig) (*ChatGenerator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: generation model required", ErrInvalidConfig)
	}

	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating chat client: %w", err)
	}

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}

	return &ChatGenerator{
		client:      client,
		temperature: cfg.Temperature,
		limiter:     rate.NewLimiter(rate.Limit(limit), defaultBurst),
	}, nil
}

// Generate produces a completion for the prompt pair.
func (g *ChatGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(userPrompt)},
		},
	}

	resp, err := g.client.GenerateContent(ctx, content, llms.WithTemperature(g.temperature))
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}
