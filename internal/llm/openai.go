package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ppiankov/scitrue/internal/util"
)

// OpenAIProvider uses the Chat Completions API through go-openai
type OpenAIProvider struct {
	client  *openai.Client
	config  Config
	timeout time.Duration
	logger  *zap.Logger
}

// NewOpenAIProvider creates a new OpenAI provider. BaseURL points it at any
// OpenAI-compatible server.
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.HTTPProxy != "" || config.HTTPSProxy != "" {
		clientConfig.HTTPClient = &http.Client{
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
			},
		}
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  config,
		timeout: timeout,
		logger:  config.logger(),
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable lists models, the lightest authenticated call
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	if _, err := p.client.ListModels(ctx); err != nil {
		p.logger.Warn("openai availability check failed", zap.Error(asAPIError(err)))
		return false
	}
	return true
}

// Generate sends the system message and the prompt as one chat turn
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := p.config.resolveModel(req, openai.GPT4o)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: resolveSystem(req)},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   p.config.resolveMaxTokens(req),
		Temperature: defaultTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("openai generate: %w", asAPIError(err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai generate: no choices returned")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		p.logger.Warn("openai completion truncated", zap.Int("max_tokens", p.config.resolveMaxTokens(req)))
	}

	return &GenerateResponse{
		Text:       strings.TrimSpace(choice.Message.Content),
		Model:      model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// asAPIError maps go-openai's error types onto APIError so callers see one
// shape for every provider
func asAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: "openai", StatusCode: apiErr.HTTPStatusCode, Type: apiErr.Type, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.Error()
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &APIError{Provider: "openai", StatusCode: reqErr.HTTPStatusCode, Message: msg}
	}
	return err
}
