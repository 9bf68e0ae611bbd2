package pipeline

import (
	"errors"
	"fmt"

	"github.com/ppiankov/scitrue/internal/model"
)

// Failure kinds. A *Failure unwraps to exactly one of these.
var (
	ErrInvalidInput         = model.ErrInvalidInput
	ErrUnresolvableClaim    = errors.New("unresolvable claim")
	ErrRetrieval            = errors.New("evidence retrieval failed")
	ErrInsufficientEvidence = errors.New("insufficient evidence")
	ErrGeneration           = errors.New("text generation failed")
	ErrMalformedReport      = errors.New("malformed report")
	ErrPersistence          = errors.New("activity log access failed")
)

// User-facing hints
const (
	HintUnresolvable = "The claim is not a scientific claim or does not make any sense, please try again with a different claim."
	HintInsufficient = "Sorry, we couldn't find enough articles for this claim. Please try rephrasing or using a different claim"
	HintMalformed    = "Hmm... That doesn't seem to be a clear scientific claim. Please rephrase and try again. If the problem continues, try again later."
	HintGeneration   = "The text generator did not respond. Please try again later."
	HintRetrieval    = "The evidence service did not respond. Please try again later."
	HintPersistence  = "The report was generated but could not be saved to your history."
	HintLookup       = "Your history could not be read, so no report was generated. Please try again later."
)

// PartialEvidenceHint is the non-fatal hint for fewer relevant articles than requested
func PartialEvidenceHint(found, requested int) string {
	return fmt.Sprintf("Only %d articles were found (less than the requested %d). Proceeding with the available articles.", found, requested)
}

// Failure is a terminal run failure. Its message is the human-readable hint.
type Failure struct {
	Kind  error
	State State
	Hint  string
	Err   error // underlying cause, may be nil
}

func (f *Failure) Error() string {
	return f.Hint
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As
func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// KindName returns a short label for logs and metrics
func (f *Failure) KindName() string {
	switch f.Kind {
	case ErrInvalidInput:
		return "invalid_input"
	case ErrUnresolvableClaim:
		return "unresolvable_claim"
	case ErrRetrieval:
		return "retrieval"
	case ErrInsufficientEvidence:
		return "insufficient_evidence"
	case ErrGeneration:
		return "generation"
	case ErrMalformedReport:
		return "malformed_report"
	case ErrPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}
