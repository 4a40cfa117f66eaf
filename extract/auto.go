package extract

import (
	"context"
	"mime"
	"net/http"
	"path"
	"strings"

	"code.sajari.com/docconv"
	"github.com/poiesic/docrag/core"
)

// Auto dispatches plain-text types to TextExtractor and everything else to a
// DocconvExtractor. Image files keep their bytes on their single page so a
// page describer can add to the converter's OCR text.
type Auto struct {
	text    TextExtractor
	docconv *DocconvExtractor
}

var _ Extractor = (*Auto)(nil)

// NewAuto creates a dispatching extractor.
func NewAuto(opts ...DocconvOption) *Auto {
	return &Auto{docconv: NewDocconvExtractor(opts...)}
}

func (a *Auto) Open(ctx context.Context, data []byte, mimeType string) (Document, error) {
	if IsPlainText(mimeType) {
		return a.text.Open(ctx, data, mimeType)
	}
	doc, err := a.docconv.Open(ctx, data, mimeType)
	if err != nil || !IsImage(mimeType) {
		return doc, err
	}
	return &imageDocument{Document: doc, image: data, mimeType: baseType(mimeType)}, nil
}

// imageDocument attaches the source image to the first page.
type imageDocument struct {
	Document
	image    []byte
	mimeType string
}

func (d *imageDocument) Pages(ctx context.Context, r core.PageRange) ([]Page, error) {
	pages, err := d.Document.Pages(ctx, r)
	if err != nil {
		return nil, err
	}
	for i := range pages {
		if pages[i].Number == 1 {
			pages[i].Image, pages[i].ImageMIME = d.image, d.mimeType
		}
	}
	return pages, nil
}

// IsImage reports whether mimeType names a raster image.
func IsImage(mimeType string) bool {
	return strings.HasPrefix(baseType(mimeType), "image/")
}

func baseType(mimeType string) string {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return mimeType
	}
	return base
}

// IsPlainText reports whether mimeType is read verbatim rather than converted.
func IsPlainText(mimeType string) bool {
	switch baseType(mimeType) {
	case "text/plain", "text/markdown", "text/x-markdown", "text/csv":
		return true
	}
	return false
}

// DetectMIME names the MIME type of a document from its file name, falling
// back to sniffing its content.
func DetectMIME(name string, data []byte) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt", ".text":
		return "text/plain"
	}
	if name != "" {
		if mt := docconv.MimeTypeByExtension(name); mt != "" && mt != "application/octet-stream" {
			return mt
		}
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	base, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return base
}
