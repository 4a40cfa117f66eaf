package extract

import (
	"context"
	"strings"
	"unicode/utf8"
)

// TextExtractor handles plain text. Form feeds separate pages; text without
// one is a single page. Invalid UTF-8 sequences are replaced.
type TextExtractor struct{}

var _ Extractor = TextExtractor{}

func (TextExtractor) Open(_ context.Context, data []byte, _ string) (Document, error) {
	if err := checkEmpty(data); err != nil {
		return nil, err
	}
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return splitPages(text), nil
}
