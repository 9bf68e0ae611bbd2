package parse

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrMalformedOutput is the sentinel every MalformedOutputError matches
var ErrMalformedOutput = errors.New("malformed generator output")

// Stage names the generation step whose output failed to parse
type Stage string

const (
	StageReport    Stage = "report"
	StageSubclaims Stage = "subclaims"
	StageRefine    Stage = "refine"
)

// MalformedOutputError carries the raw generator text for diagnostics
type MalformedOutputError struct {
	Stage Stage
	Raw   string
	Err   error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed %s output: %v", e.Stage, e.Err)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrMalformedOutput) match any stage
func (e *MalformedOutputError) Is(target error) bool {
	return target == ErrMalformedOutput
}

// Snippet returns at most n bytes of the raw text for log lines, cut on a
// rune boundary
func (e *MalformedOutputError) Snippet(n int) string {
	if len(e.Raw) <= n {
		return e.Raw
	}
	for n > 0 && !utf8.RuneStart(e.Raw[n]) {
		n--
	}
	return e.Raw[:n] + "..."
}
