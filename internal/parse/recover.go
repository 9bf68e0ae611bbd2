// Package parse recovers structured reports and subclaims from raw generator text.
package parse

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	errNoJSON     = errors.New("no JSON value found")
	errUnbalanced = errors.New("unbalanced JSON delimiters")
	errInvalid    = errors.New("recovered text is not valid JSON")
)

// wrapperMarkers are stripped before locating the payload
var wrapperMarkers = []string{"```json", "```JSON", "```", "Empty string"}

// RecoverJSON extracts the outermost JSON object or array from generator text.
// It strips wrapper markers, trims to the first balanced value that repairs into
// JSON and removes trailing commas before a closing bracket or brace. The result
// is valid JSON.
func RecoverJSON(raw string) (string, error) {
	return recoverValue(raw, 0)
}

// recoverValue is RecoverJSON restricted to values opening with want ('{' or '[');
// want 0 accepts either. Balanced spans that are not JSON, such as "{requested}"
// in leading prose, are skipped and the search resumes after their opener.
func recoverValue(raw string, want byte) (string, error) {
	text := raw
	for _, marker := range wrapperMarkers {
		text = strings.ReplaceAll(text, marker, "")
	}

	err := errNoJSON
	for from := 0; from < len(text); {
		start := nextOpener(text, from, want)
		if start < 0 {
			break
		}
		from = start + 1

		end, matchErr := matchClose(text, start)
		if matchErr != nil {
			err = matchErr
			continue
		}

		if candidate, ok := repair(text[start : end+1]); ok {
			return candidate, nil
		}
		err = errInvalid
	}
	return "", err
}

func nextOpener(text string, from int, want byte) int {
	for i := from; i < len(text); i++ {
		c := text[i]
		if (want == 0 && (c == '{' || c == '[')) || c == want {
			return i
		}
	}
	return -1
}

// repair strips trailing commas and, failing that, escapes raw control
// characters inside strings
func repair(span string) (string, bool) {
	candidate := stripTrailingCommas(span)
	if json.Valid([]byte(candidate)) {
		return candidate, true
	}
	candidate = escapeControlInStrings(candidate)
	return candidate, json.Valid([]byte(candidate))
}

// matchClose returns the index of the delimiter closing the one at start,
// skipping over string literals
func matchClose(text string, start int) (int, error) {
	var stack []byte
	inString, escaped := false, false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, errUnbalanced
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, nil
			}
		}
	}
	return 0, errUnbalanced
}

// stripTrailingCommas drops commas followed only by whitespace and a closer
func stripTrailingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString, escaped := false, false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			if j < len(text) && (text[j] == '}' || text[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// escapeControlInStrings escapes literal newlines and tabs inside string literals
func escapeControlInStrings(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString, escaped := false, false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}
