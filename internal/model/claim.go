package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MinArticles = 1
	MaxArticles = 15

	// DefaultMaxClaimLength matches the input box limit of the web form
	DefaultMaxClaimLength = 135
)

// ErrInvalidInput is returned when a claim or article count is rejected at the boundary
var ErrInvalidInput = errors.New("invalid input")

// Claim is a free-text scientific assertion submitted for verification
type Claim struct {
	Text string `json:"text"`          // As entered (trimmed)
	Key  string `json:"key,omitempty"` // Normalized form used for cache matching
}

// NewClaim trims the text and computes its normalized key
func NewClaim(text string) Claim {
	text = strings.TrimSpace(text)
	return Claim{Text: text, Key: NormalizeClaim(text)}
}

// NormalizeClaim returns the cache-matching form of a claim: trimmed and lowercased
func NormalizeClaim(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Fingerprint is the (normalized claim, article count) cache key
type Fingerprint struct {
	Claim    string
	Articles int
}

// NewFingerprint builds the fingerprint for a claim and article count
func NewFingerprint(claim string, articles int) Fingerprint {
	return Fingerprint{Claim: NormalizeClaim(claim), Articles: articles}
}

// Matches reports whether the entry was stored under the same fingerprint
func (f Fingerprint) Matches(claim string, articles int) bool {
	return f.Articles == articles && f.Claim == NormalizeClaim(claim)
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%q/%d", f.Claim, f.Articles)
}

// ValidateInput enforces the boundary constraints: non-empty claim of bounded
// length and an article count in [MinArticles, MaxArticles].
// maxLen <= 0 disables the length check.
func ValidateInput(claim string, articles int, maxLen int) error {
	claim = strings.TrimSpace(claim)
	if claim == "" {
		return fmt.Errorf("%w: please enter a claim", ErrInvalidInput)
	}
	if maxLen > 0 && utf8.RuneCountInString(claim) > maxLen {
		return fmt.Errorf("%w: claim must be at most %d characters", ErrInvalidInput, maxLen)
	}
	if articles < MinArticles || articles > MaxArticles {
		return fmt.Errorf("%w: please enter a number between %d-%d", ErrInvalidInput, MinArticles, MaxArticles)
	}
	return nil
}

// EstimateHint returns the expected processing window for k articles
func EstimateHint(articles int) string {
	return fmt.Sprintf("The process usually takes between %d and %d seconds for %d papers.", 3*articles, 5*articles+8, articles)
}
