package chunker

import (
	"strings"
	"testing"

	"github.com/poiesic/docrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"héllo wörld", 3}, // 11 runes
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.in))
		})
	}
}

func TestSplitSentences(t *testing.T) {
	text := "First sentence. Second one!  Third?\n\nFourth \"quoted.\" Fifth without end"
	got := SplitSentences(text)
	assert.Equal(t, []string{
		"First sentence.",
		"Second one!",
		"Third?",
		"Fourth \"quoted.\"",
		"Fifth without end",
	}, got)

	assert.Empty(t, SplitSentences("   \n\t "))
	assert.Equal(t, []string{"v1.2 is out."}, SplitSentences("v1.2 is out."))
}

func TestChunk(t *testing.T) {
	t.Run("packs sentences up to the budget", func(t *testing.T) {
		// each sentence is 15 runes; two joined are 31 runes = 8 tokens, three are 12 tokens
		text := "Aaaa bbbb cccc. Dddd eeee ffff. Gggg hhhh iiii. Jjjj kkkk llll."
		chunks := Chunk(text, 9)
		require.Len(t, chunks, 2)
		assert.Equal(t, "Aaaa bbbb cccc. Dddd eeee ffff.", chunks[0])
		assert.Equal(t, "Gggg hhhh iiii. Jjjj kkkk llll.", chunks[1])
	})

	t.Run("oversized sentence kept whole", func(t *testing.T) {
		long := strings.Repeat("word ", 50) + "end."
		chunks := Chunk("Short. "+long+" Tail.", 5)
		require.Len(t, chunks, 3)
		assert.Equal(t, strings.TrimSpace(long), chunks[1])
		assert.Greater(t, EstimateTokens(chunks[1]), 5)
	})

	t.Run("no empty chunks", func(t *testing.T) {
		assert.Empty(t, Chunk("", 10))
		assert.Empty(t, Chunk("  \n ", 10))
		for _, c := range Chunk("A. B. C. D.", 1) {
			assert.NotEmpty(t, c)
		}
	})

	t.Run("non-positive budget", func(t *testing.T) {
		assert.Len(t, Chunk("One. Two. Three.", 0), 3)
	})

	t.Run("deterministic", func(t *testing.T) {
		text := sampleText(40)
		assert.Equal(t, Chunk(text, 50), Chunk(text, 50))
	})
}

func TestChunkProperties(t *testing.T) {
	text := sampleText(120)
	for _, budget := range []int{5, 20, 100, 500} {
		chunks := Chunk(text, budget)
		require.NotEmpty(t, chunks)

		// Rejoining the chunks reproduces the text up to whitespace.
		assert.Equal(t, squash(text), strings.Join(chunks, " "))

		for _, c := range chunks {
			if EstimateTokens(c) > budget {
				assert.Len(t, SplitSentences(c), 1, "only a lone sentence may exceed the budget")
			}
		}
	}
}

func TestResolve(t *testing.T) {
	t.Run("exact offsets", func(t *testing.T) {
		text := sampleText(30)
		spans := Split(text, 40)
		require.NotEmpty(t, spans)
		last := 0
		for _, s := range spans {
			assert.False(t, s.Approximate)
			assert.Less(t, s.Start, s.End)
			assert.GreaterOrEqual(t, s.Start, last)
			assert.Equal(t, squash(s.Text), squash(text[s.Start:s.End]))
			last = s.End
		}
	})

	t.Run("whitespace-normalized fallback", func(t *testing.T) {
		text := "Line one ends here.\n\n  Line two\tcontinues here."
		spans := Split(text, 1000)
		require.Len(t, spans, 1)
		s := spans[0]
		assert.False(t, s.Approximate)
		assert.Equal(t, 0, s.Start)
		assert.Equal(t, len(text), s.End)
		assert.Equal(t, squash(s.Text), squash(text[s.Start:s.End]))
	})

	t.Run("repeated text resolves in order", func(t *testing.T) {
		text := "Same sentence. Same sentence. Same sentence."
		spans := Resolve(text, []string{"Same sentence.", "Same sentence.", "Same sentence."})
		require.Len(t, spans, 3)
		assert.Equal(t, 0, spans[0].Start)
		assert.Equal(t, 15, spans[1].Start)
		assert.Equal(t, 30, spans[2].Start)
	})

	t.Run("restart from zero", func(t *testing.T) {
		text := "Alpha. Beta."
		spans := Resolve(text, []string{"Beta.", "Alpha."})
		require.Len(t, spans, 2)
		assert.Equal(t, "Alpha.", text[spans[1].Start:spans[1].End])
		assert.False(t, spans[1].Approximate)
	})

	t.Run("approximate fallback never fails", func(t *testing.T) {
		text := "Known text here."
		spans := Resolve(text, []string{"Known text", "missing entirely"})
		require.Len(t, spans, 2)
		assert.True(t, spans[1].Approximate)
		assert.Less(t, spans[1].Start, spans[1].End)
		assert.LessOrEqual(t, spans[1].End, len(text))
	})

	t.Run("multibyte text", func(t *testing.T) {
		text := "Über café.  Naïve résumé."
		spans := Split(text, 3)
		require.Len(t, spans, 2)
		assert.Equal(t, "Naïve résumé.", text[spans[1].Start:spans[1].End])
	})
}

func TestPageReferences(t *testing.T) {
	pages := []core.PageRecord{
		{PageNumber: 1, Start: 0, End: 10},
		{PageNumber: 2, Start: 12, End: 20},
		{PageNumber: 3, Start: 22, End: 30},
	}
	assert.Equal(t, []int{1}, PageReferences(0, 5, pages))
	assert.Equal(t, []int{1, 2}, PageReferences(5, 15, pages))
	assert.Equal(t, []int{1, 2, 3}, PageReferences(0, 30, pages))
	assert.Equal(t, []int{1}, PageReferences(10, 12, pages), "separator-only spans go to the preceding page")
	assert.Nil(t, PageReferences(0, 5, nil))
}

func sampleText(sentences int) string {
	words := []string{"retrieval", "index", "chunk", "vector", "page", "query", "store", "embedding"}
	var b strings.Builder
	for i := range sentences {
		n := 3 + i%7
		for j := range n {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(words[(i+j)%len(words)])
		}
		b.WriteString(".")
		if i%5 == 4 {
			b.WriteString("\n\n")
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
