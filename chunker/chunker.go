// Package chunker splits document text into bounded, sentence-aligned chunks
// and locates each chunk inside the canonical text.
//
// Token counts are estimated as ceil(characters/4). The estimate is an upper
// bound hint, not a tokenizer: a single sentence longer than the budget is
// kept whole and yields an oversized chunk.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// CharsPerToken is the character-to-token ratio used by EstimateTokens.
const CharsPerToken = 4

// sentenceEnd matches terminal punctuation, optional closing quotes or
// brackets, and the whitespace that follows.
var sentenceEnd = regexp.MustCompile(`[.!?]+["'”’)\]]*\s+`)

// EstimateTokens approximates the token count of s as ceil(runes/4).
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// SplitSentences splits text at terminal punctuation followed by whitespace.
// Sentences are trimmed; empty sentences are dropped.
func SplitSentences(text string) []string {
	var sentences []string
	prev := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[prev:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		prev = loc[1]
	}
	if s := strings.TrimSpace(text[prev:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// Chunk greedily packs sentences into chunks of at most maxTokens estimated
// tokens. Sentences inside a chunk are joined with a single space. A chunk is
// closed only when it is non-empty and the next sentence would overflow it.
// A maxTokens below 1 is treated as 1.
func Chunk(fullText string, maxTokens int) []string {
	if maxTokens < 1 {
		maxTokens = 1
	}
	maxRunes := maxTokens * CharsPerToken

	var chunks []string
	var current strings.Builder
	runes := 0
	for _, sentence := range SplitSentences(fullText) {
		n := utf8.RuneCountInString(sentence)
		if current.Len() == 0 {
			current.WriteString(sentence)
			runes = n
			continue
		}
		// +1 for the joining space
		if runes+1+n > maxRunes {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(sentence)
			runes = n
			continue
		}
		current.WriteByte(' ')
		current.WriteString(sentence)
		runes += 1 + n
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
