package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OllamaProvider talks to a local Ollama server
type OllamaProvider struct {
	endpoint *jsonEndpoint
	config   Config
	logger   *zap.Logger
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	System  string        `json:"system,omitempty"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`

	// only present when done is true
	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

func decodeOllamaError(body []byte) (string, string, bool) {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
		return "", "", false
	}
	return "", e.Error, true
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaProvider{
		endpoint: &jsonEndpoint{
			provider:  "ollama",
			baseURL:   baseURL,
			client:    newHTTPClient(config, 300*time.Second), // local models are slow on long prompts
			decodeErr: decodeOllamaError,
		},
		config: config,
		logger: config.logger(),
	}, nil
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

// IsAvailable lists local models
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	status, err := p.endpoint.ping(ctx, "/api/tags")
	if err != nil || status != http.StatusOK {
		p.logger.Warn("ollama availability check failed",
			zap.String("base_url", p.endpoint.baseURL),
			zap.Int("status", status),
			zap.Error(err))
		return false
	}
	return true
}

// Generate runs a non-streaming completion
func (p *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := p.config.resolveModel(req, "")
	if model == "" {
		return nil, fmt.Errorf("ollama model must be specified (e.g., llama3.1:8b, mistral)")
	}

	var resp ollamaResponse
	err := p.endpoint.post(ctx, "/api/generate", ollamaRequest{
		Model:  model,
		Prompt: req.Prompt,
		System: resolveSystem(req),
		Options: ollamaOptions{
			Temperature: defaultTemperature,
			NumPredict:  p.config.resolveMaxTokens(req),
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("ollama generate: %w", err)
	}

	text := strings.TrimSpace(resp.Response)

	// some models report zero counts; ~4 characters per token
	tokensUsed := resp.PromptEvalCount + resp.EvalCount
	if tokensUsed == 0 {
		tokensUsed = (len(req.Prompt) + len(text)) / 4
	}

	return &GenerateResponse{
		Text:       text,
		Model:      resp.Model,
		TokensUsed: tokensUsed,
	}, nil
}
