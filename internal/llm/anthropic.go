package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	anthropicVersion      = "2023-06-01"
	anthropicDefaultModel = "claude-3-5-sonnet-20241022"
)

// AnthropicProvider talks to the Anthropic Messages API
type AnthropicProvider struct {
	endpoint *jsonEndpoint
	config   Config
	logger   *zap.Logger
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func decodeAnthropicError(body []byte) (string, string, bool) {
	var e struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil || e.Error.Message == "" {
		return "", "", false
	}
	return e.Error.Type, e.Error.Message, true
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(config Config) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	return &AnthropicProvider{
		endpoint: &jsonEndpoint{
			provider: "anthropic",
			baseURL:  baseURL,
			headers: map[string]string{
				"x-api-key":         config.APIKey,
				"anthropic-version": anthropicVersion,
			},
			client:    newHTTPClient(config, 120*time.Second),
			decodeErr: decodeAnthropicError,
		},
		config: config,
		logger: config.logger(),
	}, nil
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// IsAvailable sends a one-token completion, the cheapest authenticated call
func (p *AnthropicProvider) IsAvailable(ctx context.Context) bool {
	var resp anthropicResponse
	err := p.endpoint.post(ctx, "/v1/messages", anthropicRequest{
		Model:     p.config.resolveModel(GenerateRequest{}, anthropicDefaultModel),
		MaxTokens: 1,
		Messages:  []anthropicMessage{{Role: "user", Content: "ping"}},
	}, &resp)
	if err != nil {
		p.logger.Warn("anthropic availability check failed", zap.Error(err))
		return false
	}
	return true
}

// Generate sends the prompt as a single user turn
func (p *AnthropicProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var resp anthropicResponse
	err := p.endpoint.post(ctx, "/v1/messages", anthropicRequest{
		Model:       p.config.resolveModel(req, anthropicDefaultModel),
		MaxTokens:   p.config.resolveMaxTokens(req),
		System:      resolveSystem(req),
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		Temperature: defaultTemperature,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("anthropic generate: %w", err)
	}

	// tool and thinking blocks carry no report text
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("anthropic generate: empty content (stop reason %q)", resp.StopReason)
	}
	if resp.StopReason == "max_tokens" {
		p.logger.Warn("anthropic completion truncated", zap.Int("max_tokens", p.config.resolveMaxTokens(req)))
	}

	return &GenerateResponse{
		Text:       strings.TrimSpace(text.String()),
		Model:      resp.Model,
		TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}
