package openai

import (
	"strings"
	"unicode"
)

// scrubString removes control characters other than newlines and tabs, which
// some OpenAI-compatible servers reject, and trims surrounding whitespace.
func scrubString(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// cleanDescription strips markdown fences and collapses a model answer to one line.
func cleanDescription(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```text")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.Join(strings.Fields(s), " ")
}
