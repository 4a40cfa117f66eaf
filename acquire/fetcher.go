// Package acquire resolves a core.Source into document bytes, a name and a
// MIME type. Every failure wraps core.ErrAcquisition.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/poiesic/docrag/core"
	"github.com/poiesic/docrag/extract"
	"github.com/poiesic/docrag/transport"
)

// DefaultMaxBytes bounds the size of an acquired document.
const DefaultMaxBytes = 100 << 20

var (
	// ErrTooLarge indicates the document exceeds the fetcher's size limit.
	ErrTooLarge = errors.New("document too large")

	// ErrNoObjectClient indicates an object source without a configured S3 client.
	ErrNoObjectClient = errors.New("no object storage client configured")
)

// Document is an acquired document.
type Document struct {
	Name     string // base name, used for ids and titles; may be empty
	MIMEType string
	Data     []byte
}

// ObjectGetter is the subset of *s3.Client used for object sources.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher acquires documents from files, URLs, memory and S3.
type Fetcher struct {
	http     *transport.Client
	objects  ObjectGetter
	maxBytes int64
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the client used for URL sources.
func WithHTTPClient(c *transport.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.http = c
		}
	}
}

// WithObjectClient sets the client used for object sources.
func WithObjectClient(c ObjectGetter) Option {
	return func(f *Fetcher) {
		f.objects = c
	}
}

// WithMaxBytes bounds the document size.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFetcher creates a Fetcher. URL sources use a default transport.Client
// unless one is supplied; object sources need WithObjectClient.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		maxBytes: DefaultMaxBytes,
		logger:   slog.Default().With("component", "fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.http == nil {
		f.http = transport.NewClient()
	}
	return f
}

// Fetch reads src.
func (f *Fetcher) Fetch(ctx context.Context, src core.Source) (*Document, error) {
	if err := core.ValidateSource(src); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrAcquisition, err)
	}

	var (
		data     []byte
		mimeType string
		err      error
	)
	switch src.Kind {
	case core.SourceFile:
		data, err = f.readFile(src.Path)
	case core.SourceURL:
		data, mimeType, err = f.http.Get(ctx, src.URL)
	case core.SourceBytes:
		data = src.Data
	case core.SourceObject:
		data, mimeType, err = f.getObject(ctx, src.Bucket, src.Key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrAcquisition, src, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s: empty document", core.ErrAcquisition, src)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s: %w: %d bytes exceeds %d", core.ErrAcquisition, src, ErrTooLarge, len(data), f.maxBytes)
	}

	name := src.BaseName()
	mimeType = normalizeMIME(mimeType)
	if genericMIME(mimeType) {
		mimeType = extract.DetectMIME(name, data)
	}
	f.logger.Debug("acquired document", "source", src.String(), "kind", src.Kind.String(), "bytes", len(data), "mime", mimeType)
	return &Document{Name: name, MIMEType: mimeType, Data: data}, nil
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %w", err)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, info.Size(), f.maxBytes)
	}
	return os.ReadFile(path)
}

func (f *Fetcher) getObject(ctx context.Context, bucket, key string) ([]byte, string, error) {
	if f.objects == nil {
		return nil, "", ErrNoObjectClient
	}
	out, err := f.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("s3 get failed: %w", err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > f.maxBytes {
		return nil, "", fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, *out.ContentLength, f.maxBytes)
	}
	data, err := io.ReadAll(io.LimitReader(out.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return data, aws.ToString(out.ContentType), nil
}

// genericMIME reports whether mt says nothing about the format.
func genericMIME(mt string) bool {
	switch mt {
	case "", "application/octet-stream", "binary/octet-stream":
		return true
	}
	return false
}

func normalizeMIME(mt string) string {
	mt, _, _ = strings.Cut(mt, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
