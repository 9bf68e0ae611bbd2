// Package refine turns a raw user claim into the query sent to evidence retrieval.
package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/scitrue/internal/parse"
	"github.com/ppiankov/scitrue/internal/prompt"
)

// Refiner normalizes a claim into a retrieval query. An empty or very short
// result is the signal that the claim is not a usable scientific claim.
type Refiner interface {
	Refine(ctx context.Context, claim string) (string, error)
}

// Generator is the text-in/text-out collaborator the LLM refiner calls
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMRefiner asks the generator to restate the claim
type LLMRefiner struct {
	generator Generator
	logger    *zap.Logger
}

// NewLLMRefiner creates a refiner backed by generator
func NewLLMRefiner(generator Generator, logger *zap.Logger) *LLMRefiner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMRefiner{generator: generator, logger: logger}
}

// Refine returns the revised query. Output that cannot be parsed is reported
// as the short signal (""), not as an error; only generator failures are errors.
func (r *LLMRefiner) Refine(ctx context.Context, claim string) (string, error) {
	raw, err := r.generator.Generate(ctx, prompt.BuildRefinementPrompt(claim))
	if err != nil {
		return "", fmt.Errorf("refine claim: %w", err)
	}

	refinement, err := parse.ParseRefinement(raw)
	if err != nil {
		var malformed *parse.MalformedOutputError
		if errors.As(err, &malformed) {
			r.logger.Warn("unparsable refiner output",
				zap.String("raw", malformed.Snippet(200)),
				zap.Error(malformed.Err))
		}
		return "", nil
	}

	return refinement.RevisedQuery, nil
}

// Passthrough uses the trimmed claim as the query. Useful when the retriever
// does its own normalization or no generator is configured.
type Passthrough struct{}

func (Passthrough) Refine(_ context.Context, claim string) (string, error) {
	return strings.TrimSpace(claim), nil
}

// New selects a refiner by kind: "llm" (default) or "passthrough"
func New(kind string, generator Generator, logger *zap.Logger) (Refiner, error) {
	switch strings.ToLower(kind) {
	case "", "llm":
		if generator == nil {
			return nil, fmt.Errorf("llm refiner requires a generator")
		}
		return NewLLMRefiner(generator, logger), nil
	case "passthrough", "none":
		return Passthrough{}, nil
	default:
		return nil, fmt.Errorf("unknown refiner: %s (supported: llm, passthrough)", kind)
	}
}
