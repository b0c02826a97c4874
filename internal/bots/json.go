package bots

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when the oracle output carries no JSON object.
var ErrNoJSON = errors.New("bots: no json object in oracle output")

// ExtractJSON finds the first JSON object in an oracle reply and unmarshals
// it into v. Markdown fences are stripped; a truncated object is repaired by
// balancing braces before the parse is given up on.
func ExtractJSON(raw string, v interface{}) error {
	candidate := stripFences(raw)

	start := strings.IndexByte(candidate, '{')
	if start < 0 {
		return ErrNoJSON
	}
	candidate = candidate[start:]

	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(BalanceBraces(candidate)), v); err == nil {
		return nil
	}
	return ErrNoJSON
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	return strings.TrimSpace(s)
}

// BalanceBraces truncates a trailing partial token and appends the closers a
// prematurely cut-off JSON object is missing. String and escape state are
// tracked so braces inside values don't count.
func BalanceBraces(s string) string {
	var stack []byte
	inString := false
	escaped := false
	lastComplete := -1

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			stack = append(stack, c)
		case c == '}' || c == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			lastComplete = i
		}
	}

	if inString {
		// Cut back to the last structurally complete position.
		if lastComplete >= 0 {
			s = s[:lastComplete+1]
			return BalanceBraces(s)
		}
		s += `"`
	}

	out := strings.TrimRight(s, ", \n\t")
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out += "}"
		} else {
			out += "]"
		}
	}
	return out
}
