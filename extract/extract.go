// Package extract turns raw document bytes into per-page text.
//
// An Extractor opens a document once; the returned Document reports its page
// count before any text is extracted so callers can enforce page limits first.
// Failures wrap core.ErrPasswordProtected, core.ErrCorruptDocument or
// core.ErrExtraction.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/poiesic/docrag/core"
)

// FormFeed separates pages in extracted text.
const FormFeed = '\f'

// Page is the extracted content of one page. Image, when set, is a rendering
// of the page that a describer can turn into text.
type Page struct {
	Number    int
	Text      string
	Image     []byte
	ImageMIME string
}

// Document is an opened document.
type Document interface {
	// PageCount returns the number of pages in the document.
	PageCount() int

	// Pages extracts the pages in r, which must lie within [1, PageCount()].
	Pages(ctx context.Context, r core.PageRange) ([]Page, error)
}

// Extractor opens document bytes of a given MIME type.
type Extractor interface {
	Open(ctx context.Context, data []byte, mimeType string) (Document, error)
}

// pagedText is a Document over already-extracted page texts.
type pagedText struct {
	pages []string
}

var _ Document = (*pagedText)(nil)

// splitPages splits text on form feeds. A trailing form feed does not start a
// new page.
func splitPages(text string) *pagedText {
	text = strings.TrimSuffix(text, string(FormFeed))
	return &pagedText{pages: strings.Split(text, string(FormFeed))}
}

func (d *pagedText) PageCount() int {
	return len(d.pages)
}

func (d *pagedText) Pages(ctx context.Context, r core.PageRange) ([]Page, error) {
	if err := core.ValidatePageRange(r, len(d.pages)); err != nil {
		return nil, err
	}
	out := make([]Page, 0, r.Len())
	for n := r.Start; n <= r.End; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, Page{Number: n, Text: strings.TrimSpace(d.pages[n-1])})
	}
	return out, nil
}

// checkEmpty rejects zero-length input before any parsing.
func checkEmpty(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %w: empty document", core.ErrExtraction, core.ErrCorruptDocument)
	}
	return nil
}
