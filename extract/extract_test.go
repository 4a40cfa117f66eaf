package extract

import (
	"context"
	"errors"
	"testing"

	"code.sajari.com/docconv"
	"github.com/poiesic/docrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextExtractor(t *testing.T) {
	ctx := context.Background()

	t.Run("form feeds separate pages", func(t *testing.T) {
		doc, err := TextExtractor{}.Open(ctx, []byte("one\r\n\fTwo\n\fthree\f"), "text/plain")
		require.NoError(t, err)
		assert.Equal(t, 3, doc.PageCount())

		pages, err := doc.Pages(ctx, core.PageRange{Start: 2, End: 3})
		require.NoError(t, err)
		assert.Equal(t, []Page{{Number: 2, Text: "Two"}, {Number: 3, Text: "three"}}, pages)
	})

	t.Run("single page", func(t *testing.T) {
		doc, err := TextExtractor{}.Open(ctx, []byte("just text"), "text/plain")
		require.NoError(t, err)
		assert.Equal(t, 1, doc.PageCount())
	})

	t.Run("range outside document", func(t *testing.T) {
		doc, err := TextExtractor{}.Open(ctx, []byte("a\fb"), "text/plain")
		require.NoError(t, err)
		_, err = doc.Pages(ctx, core.PageRange{Start: 1, End: 3})
		assert.ErrorIs(t, err, core.ErrRange)
		_, err = doc.Pages(ctx, core.PageRange{Start: 0, End: 1})
		assert.ErrorIs(t, err, core.ErrRange)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := TextExtractor{}.Open(ctx, nil, "text/plain")
		assert.ErrorIs(t, err, core.ErrCorruptDocument)
		assert.ErrorIs(t, err, core.ErrExtraction)
	})

	t.Run("invalid utf8 replaced", func(t *testing.T) {
		doc, err := TextExtractor{}.Open(ctx, []byte{'a', 0xff, 'b'}, "text/plain")
		require.NoError(t, err)
		pages, err := doc.Pages(ctx, core.PageRange{Start: 1, End: 1})
		require.NoError(t, err)
		assert.Equal(t, "a�b", pages[0].Text)
	})
}

func fakeConvert(res *docconv.Response, err error) DocconvOption {
	return WithConvertFunc(func(data []byte, mimeType string, readability bool) (*docconv.Response, error) {
		return res, err
	})
}

func TestDocconvExtractor(t *testing.T) {
	ctx := context.Background()

	t.Run("paged body", func(t *testing.T) {
		e := NewDocconvExtractor(fakeConvert(&docconv.Response{Body: "p1\fp2\fp3"}, nil))
		doc, err := e.Open(ctx, []byte("%PDF"), "application/pdf")
		require.NoError(t, err)
		assert.Equal(t, 3, doc.PageCount())
	})

	t.Run("unpaged body with page metadata", func(t *testing.T) {
		e := NewDocconvExtractor(fakeConvert(&docconv.Response{Body: " all the text ", Meta: map[string]string{"Pages": "12"}}, nil))
		doc, err := e.Open(ctx, []byte("%PDF"), "application/pdf")
		require.NoError(t, err)
		assert.Equal(t, 1, doc.PageCount())

		pages, err := doc.Pages(ctx, core.PageRange{Start: 1, End: 1})
		require.NoError(t, err)
		assert.Equal(t, []Page{{Number: 1, Text: "all the text"}}, pages)

		// No sub-range can be labelled with text whose pages are unknown.
		_, err = doc.Pages(ctx, core.PageRange{Start: 5, End: 6})
		assert.ErrorIs(t, err, core.ErrRange)
		_, err = doc.Pages(ctx, core.PageRange{Start: 1, End: 12})
		assert.ErrorIs(t, err, core.ErrRange)
	})

	t.Run("password protected", func(t *testing.T) {
		e := NewDocconvExtractor(fakeConvert(nil, errors.New("Command Line Error: Incorrect password")))
		_, err := e.Open(ctx, []byte("%PDF"), "application/pdf")
		assert.ErrorIs(t, err, core.ErrPasswordProtected)
		assert.ErrorIs(t, err, core.ErrExtraction)
		assert.Contains(t, core.Describe(err), "password-protected")
	})

	t.Run("corrupt", func(t *testing.T) {
		e := NewDocconvExtractor(fakeConvert(&docconv.Response{Error: "Syntax Error: Couldn't find trailer dictionary"}, nil))
		_, err := e.Open(ctx, []byte("%PDF"), "application/pdf")
		assert.ErrorIs(t, err, core.ErrCorruptDocument)
		assert.Contains(t, core.Describe(err), "corrupt")
	})
}

func TestAuto(t *testing.T) {
	ctx := context.Background()
	a := &Auto{docconv: NewDocconvExtractor(fakeConvert(&docconv.Response{Body: "converted"}, nil))}

	doc, err := a.Open(ctx, []byte("a\fb"), "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.PageCount())

	doc, err = a.Open(ctx, []byte("<html>"), "text/html")
	require.NoError(t, err)
	pages, err := doc.Pages(ctx, core.PageRange{Start: 1, End: 1})
	require.NoError(t, err)
	assert.Equal(t, "converted", pages[0].Text)
	assert.Nil(t, pages[0].Image)

	t.Run("images keep their bytes", func(t *testing.T) {
		png := []byte("\x89PNG\r\n\x1a\nscan")
		doc, err := a.Open(ctx, png, "image/png")
		require.NoError(t, err)
		pages, err := doc.Pages(ctx, core.PageRange{Start: 1, End: 1})
		require.NoError(t, err)
		require.Len(t, pages, 1)
		assert.Equal(t, "converted", pages[0].Text)
		assert.Equal(t, png, pages[0].Image)
		assert.Equal(t, "image/png", pages[0].ImageMIME)
	})
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("image/png"))
	assert.True(t, IsImage("image/jpeg; q=1"))
	assert.False(t, IsImage("application/pdf"))
	assert.False(t, IsImage("text/plain"))
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, "text/markdown", DetectMIME("README.md", nil))
	assert.Equal(t, "text/plain", DetectMIME("notes.TXT", nil))
	assert.Equal(t, "application/pdf", DetectMIME("report.pdf", nil))
	assert.Equal(t, "application/pdf", DetectMIME("", []byte("%PDF-1.7\n")))
	assert.Equal(t, "text/plain", DetectMIME("", []byte("hello world")))
	assert.Equal(t, "application/octet-stream", DetectMIME("", nil))
}
