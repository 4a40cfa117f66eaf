package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"code.sajari.com/docconv"
	"github.com/poiesic/docrag/core"
)

// ConvertFunc matches docconv.Convert.
type ConvertFunc func(data []byte, mimeType string, readability bool) (*docconv.Response, error)

// DocconvExtractor extracts PDF, Office, RTF, HTML and other formats with
// docconv. Text split by form feeds yields real pages. A body without page
// breaks is a single page, whatever page count the converter reports, since
// its text cannot be attributed to any narrower range.
type DocconvExtractor struct {
	readability bool
	convert     ConvertFunc
	logger      *slog.Logger
}

var _ Extractor = (*DocconvExtractor)(nil)

// DocconvOption configures a DocconvExtractor.
type DocconvOption func(*DocconvExtractor)

// WithReadability enables docconv's readability filtering for HTML.
func WithReadability(on bool) DocconvOption {
	return func(e *DocconvExtractor) {
		e.readability = on
	}
}

// WithConvertFunc replaces the converter.
func WithConvertFunc(fn ConvertFunc) DocconvOption {
	return func(e *DocconvExtractor) {
		if fn != nil {
			e.convert = fn
		}
	}
}

// NewDocconvExtractor creates a docconv-backed extractor.
func NewDocconvExtractor(opts ...DocconvOption) *DocconvExtractor {
	e := &DocconvExtractor{
		convert: func(data []byte, mimeType string, readability bool) (*docconv.Response, error) {
			return docconv.Convert(bytes.NewReader(data), mimeType, readability)
		},
		logger: slog.Default().With("component", "docconv-extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *DocconvExtractor) Open(ctx context.Context, data []byte, mimeType string) (Document, error) {
	if err := checkEmpty(data); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := e.convert(data, mimeType, e.readability)
	if err != nil {
		return nil, classify(err.Error(), err)
	}
	if res.Error != "" {
		return nil, classify(res.Error, nil)
	}
	e.logger.Debug("converted document", "mime", mimeType, "chars", len(res.Body), "msecs", res.MSecs)

	paged := splitPages(res.Body)
	if n := metaPageCount(res.Meta); n > 1 && paged.PageCount() == 1 {
		e.logger.Warn("converted text has no page breaks, treating as one page", "mime", mimeType, "pages", n)
	}
	return paged, nil
}

func metaPageCount(meta map[string]string) int {
	for _, key := range []string{"Pages", "pages", "Page-Count", "xmpTPg:NPages"} {
		if v, ok := meta[key]; ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return 0
}

// classify maps a converter failure onto the error taxonomy.
func classify(msg string, cause error) error {
	lower := strings.ToLower(msg)
	sentinel := core.ErrCorruptDocument
	if strings.Contains(lower, "password") || strings.Contains(lower, "encrypt") {
		sentinel = core.ErrPasswordProtected
	}
	if cause == nil {
		return fmt.Errorf("%w: %w: %s", core.ErrExtraction, sentinel, msg)
	}
	return fmt.Errorf("%w: %w: %w", core.ErrExtraction, sentinel, cause)
}
