package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateMetadata(t *testing.T) {
	tests := []struct {
		name    string
		meta    *DocumentMetadata
		wantErr error
	}{
		{
			name:    "valid metadata",
			meta:    &DocumentMetadata{ID: "report", PageCount: 10, PagesProcessed: 10, ChunkCount: 4},
			wantErr: nil,
		},
		{
			name:    "valid with page range",
			meta:    &DocumentMetadata{ID: "report", PageCount: 10, PagesProcessed: 3, PageRange: &PageRange{Start: 2, End: 4}},
			wantErr: nil,
		},
		{
			name:    "nil metadata",
			meta:    nil,
			wantErr: ErrInvalidMetadata,
		},
		{
			name:    "empty id",
			meta:    &DocumentMetadata{PageCount: 1, PagesProcessed: 1},
			wantErr: ErrEmptyDocumentID,
		},
		{
			name:    "processed exceeds count",
			meta:    &DocumentMetadata{ID: "x", PageCount: 1, PagesProcessed: 2},
			wantErr: ErrInvalidMetadata,
		},
		{
			name:    "range beyond pages",
			meta:    &DocumentMetadata{ID: "x", PageCount: 3, PagesProcessed: 1, PageRange: &PageRange{Start: 2, End: 9}},
			wantErr: ErrRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMetadata(tt.meta)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateChunk(t *testing.T) {
	tests := []struct {
		name    string
		chunk   *Chunk
		textLen int
		wantErr error
	}{
		{"valid", &Chunk{DocumentID: "d", TextStart: 0, TextEnd: 10}, 10, nil},
		{"nil", nil, 10, ErrInvalidChunk},
		{"empty document id", &Chunk{TextStart: 0, TextEnd: 1}, 10, ErrEmptyDocumentID},
		{"negative index", &Chunk{DocumentID: "d", ChunkIndex: -1, TextEnd: 1}, 10, ErrInvalidChunk},
		{"empty span", &Chunk{DocumentID: "d", TextStart: 4, TextEnd: 4}, 10, ErrInvalidOffsets},
		{"end past text", &Chunk{DocumentID: "d", TextStart: 4, TextEnd: 11}, 10, ErrInvalidOffsets},
		{"negative start", &Chunk{DocumentID: "d", TextStart: -1, TextEnd: 3}, 10, ErrInvalidOffsets},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunk(tt.chunk, tt.textLen)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidatePageRange(t *testing.T) {
	assert.NoError(t, ValidatePageRange(PageRange{Start: 1, End: 200}, 200))
	assert.ErrorIs(t, ValidatePageRange(PageRange{Start: 0, End: 2}, 200), ErrRange)
	assert.ErrorIs(t, ValidatePageRange(PageRange{Start: 5, End: 2}, 200), ErrRange)
	assert.ErrorIs(t, ValidatePageRange(PageRange{Start: 1, End: 201}, 200), ErrRange)
}

func TestValidateSource(t *testing.T) {
	assert.NoError(t, ValidateSource(FileSource("a.pdf")))
	assert.NoError(t, ValidateSource(URLSource("https://example.com/a.pdf")))
	assert.NoError(t, ValidateSource(BytesSource("", []byte("x"))))
	assert.NoError(t, ValidateSource(ObjectSource("b", "k")))

	assert.ErrorIs(t, ValidateSource(FileSource("")), ErrInvalidSource)
	assert.ErrorIs(t, ValidateSource(BytesSource("n", nil)), ErrInvalidSource)
	assert.ErrorIs(t, ValidateSource(ObjectSource("b", "")), ErrInvalidSource)
	assert.ErrorIs(t, ValidateSource(Source{}), ErrInvalidSource)
}

func TestParseSource(t *testing.T) {
	s, err := ParseSource("s3://bucket/path/to/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, SourceObject, s.Kind)
	assert.Equal(t, "bucket", s.Bucket)
	assert.Equal(t, "path/to/report.pdf", s.Key)
	assert.Equal(t, "report.pdf", s.BaseName())

	s, err = ParseSource("https://example.com/files/Annual%20Report.pdf?x=1")
	require.NoError(t, err)
	assert.Equal(t, SourceURL, s.Kind)
	assert.Equal(t, "Annual%20Report.pdf", s.BaseName())

	s, err = ParseSource("/tmp/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, SourceFile, s.Kind)
	assert.Equal(t, "notes.txt", s.BaseName())

	_, err = ParseSource("s3://bucket")
	assert.ErrorIs(t, err, ErrInvalidSource)
	_, err = ParseSource("")
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestDocumentIDFromName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Annual Report 2024.pdf", "annual-report-2024"},
		{"notes.txt", "notes"},
		{"--weird__name--.md", "weird-name"},
		{"ÜBER.pdf", "ber"},
		{".pdf", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DocumentIDFromName(tt.in))
		})
	}
}

func TestDocumentIDFromBytes(t *testing.T) {
	a := DocumentIDFromBytes([]byte("hello"))
	assert.Equal(t, a, DocumentIDFromBytes([]byte("hello")))
	assert.NotEqual(t, a, DocumentIDFromBytes([]byte("world")))
	assert.Len(t, a, len("doc-")+16)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "", Describe(nil))
	assert.Contains(t, Describe(fmt.Errorf("%w: %w", ErrExtraction, ErrPasswordProtected)), "password-protected")
	assert.Contains(t, Describe(fmt.Errorf("%w: bad xref", ErrCorruptDocument)), "corrupt")
	assert.Contains(t, Describe(fmt.Errorf("%w: %w", ErrStorage, ErrQuotaExceeded)), "quota")
	assert.Contains(t, Describe(fmt.Errorf("%w: 1-150", ErrRange)), "page range")
	assert.Contains(t, Describe(ErrNotFound), "No indexed document")
	assert.Equal(t, "plain", Describe(errors.New("plain")))
}
