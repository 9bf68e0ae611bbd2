package llm

import (
	"context"
	"fmt"
)

// Generator adapts a Provider to the text-in/text-out shape the pipeline uses
type Generator struct {
	provider Provider
	config   Config
}

// NewGenerator creates a generator for the configured provider
func NewGenerator(config Config) (*Generator, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	return &Generator{provider: provider, config: config}, nil
}

// NewGeneratorWithProvider wraps an existing provider
func NewGeneratorWithProvider(provider Provider, config Config) *Generator {
	return &Generator{provider: provider, config: config}
}

// Generate returns the raw completion text for prompt. Each call is a single
// blocking request; no retry is attempted.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.provider == nil {
		return "", fmt.Errorf("LLM provider not configured")
	}
	resp, err := g.provider.Generate(ctx, GenerateRequest{
		Prompt:    prompt,
		Model:     g.config.Model,
		MaxTokens: g.config.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// ProviderName returns the provider name
func (g *Generator) ProviderName() string {
	if g.provider == nil {
		return ""
	}
	return g.provider.Name()
}

// IsAvailable reports whether the underlying provider answers
func (g *Generator) IsAvailable(ctx context.Context) bool {
	return g.provider != nil && g.provider.IsAvailable(ctx)
}
