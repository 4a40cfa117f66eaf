package chunker

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/docrag/core"
)

// Span is a chunk located in the canonical text.
type Span struct {
	Text  string // chunk text as produced by Chunk
	Start int    // byte offset into the canonical text
	End   int    // exclusive byte offset
	// Approximate is set when neither exact nor whitespace-normalized search
	// found the chunk and its position was inferred from the previous chunk.
	Approximate bool
}

// Split chunks fullText and resolves every chunk to offsets in fullText.
func Split(fullText string, maxTokens int) []Span {
	return Resolve(fullText, Chunk(fullText, maxTokens))
}

// Resolve locates each chunk in fullText, searching forward from the end of
// the previous chunk. Each chunk is tried as an exact match, then with runs of
// whitespace collapsed, then both again from the start of the text. When all
// fail the span is placed at the previous end and marked Approximate.
// Resolve never fails; every returned span is non-empty when fullText is.
func Resolve(fullText string, chunks []string) []Span {
	norm := normalize(fullText)
	spans := make([]Span, 0, len(chunks))
	last := 0
	for _, c := range chunks {
		span := Span{Text: c}
		if start, end, ok := locate(fullText, norm, c, last); ok {
			span.Start, span.End = start, end
		} else if start, end, ok := locate(fullText, norm, c, 0); ok {
			span.Start, span.End = start, end
		} else {
			span.Start, span.End = approximate(fullText, last, len(c))
			span.Approximate = true
		}
		if span.End > last {
			last = span.End
		}
		spans = append(spans, span)
	}
	return spans
}

// locate tries an exact then a normalized search for chunk at or after from.
func locate(full string, norm normalized, chunk string, from int) (int, int, bool) {
	if chunk == "" || from > len(full) {
		return 0, 0, false
	}
	if i := strings.Index(full[from:], chunk); i >= 0 {
		return from + i, from + i + len(chunk), true
	}

	needle := normalize(chunk).text
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return 0, 0, false
	}
	k := norm.indexAt(from)
	j := strings.Index(norm.text[k:], needle)
	if j < 0 {
		return 0, 0, false
	}
	nstart := k + j
	nend := nstart + len(needle)
	// The needle neither starts nor ends with a space, so its first and last
	// bytes map to single original bytes.
	return norm.offsets[nstart], norm.offsets[nend-1] + 1, true
}

// approximate places a span of length n at the previous end, clamped to the
// text and widened to rune boundaries.
func approximate(full string, last, n int) (int, int) {
	if len(full) == 0 {
		return 0, 0
	}
	if n < 1 {
		n = 1
	}
	start := min(last, len(full)-1)
	end := min(start+n, len(full))
	if end-start < n {
		start = max(0, end-n)
	}
	for start > 0 && !utf8.RuneStart(full[start]) {
		start--
	}
	for end < len(full) && !utf8.RuneStart(full[end]) {
		end++
	}
	return start, end
}

// normalized is text with whitespace runs collapsed to a single space.
// offsets[i] is the byte offset in the original text of normalized byte i.
type normalized struct {
	text    string
	offsets []int
}

func normalize(s string) normalized {
	var b strings.Builder
	b.Grow(len(s))
	offsets := make([]int, 0, len(s))
	inSpace := false
	for i, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
				offsets = append(offsets, i)
				inSpace = true
			}
			continue
		}
		inSpace = false
		size := utf8.RuneLen(r)
		if r == utf8.RuneError {
			_, size = utf8.DecodeRuneInString(s[i:])
		}
		b.WriteString(s[i : i+size])
		for k := range size {
			offsets = append(offsets, i+k)
		}
	}
	return normalized{text: b.String(), offsets: offsets}
}

// indexAt returns the first normalized index whose original offset is >= pos.
func (n normalized) indexAt(pos int) int {
	return sort.SearchInts(n.offsets, pos)
}

// PageReferences returns the numbers of pages whose text overlaps
// [start, end). A span falling only on a page separator is attributed to the
// nearest preceding page.
func PageReferences(start, end int, pages []core.PageRecord) []int {
	var refs []int
	for _, p := range pages {
		if start < p.End && end > p.Start {
			refs = append(refs, p.PageNumber)
		}
	}
	if len(refs) > 0 || len(pages) == 0 {
		return refs
	}
	nearest := pages[0].PageNumber
	for _, p := range pages {
		if p.Start <= start {
			nearest = p.PageNumber
		}
	}
	return []int{nearest}
}
