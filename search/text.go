package search

import (
	"strings"
	"unicode/utf8"
)

// Stop words ignored when reporting which query terms a chunk contains
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "what": true, "which": true, "how": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// matchedTerms returns the distinct filtered query words present in document, in query order.
func matchedTerms(document string, queryWords []string) []string {
	if len(queryWords) == 0 {
		return nil
	}
	docWordSet := make(map[string]bool)
	for _, word := range tokenizeAndFilter(document) {
		docWordSet[word] = true
	}

	var matched []string
	seen := make(map[string]bool, len(queryWords))
	for _, q := range queryWords {
		if docWordSet[q] && !seen[q] {
			matched = append(matched, q)
			seen[q] = true
		}
	}
	return matched
}

// preview truncates s to at most limit runes, marking truncation with "...".
func preview(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
