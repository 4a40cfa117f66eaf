// Package local implements a deterministic hashing embedder that needs no
// network access. Vectors are lower quality than a trained model's but are
// always available, so indexing never stops when the remote service is down.
package local

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"unicode"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/docrag/ai"
)

const (
	// Dimension is the fixed length of every local vector.
	Dimension = 384

	// ModelName identifies local vectors in document metadata.
	ModelName = "local-hash-384"

	// Slots 0 and 1 hold document-level features; words hash into the rest.
	charSlot     = 0
	wordSlot     = 1
	reservedSize = 2
	wordBuckets  = Dimension - reservedSize
)

// Embedder implements ai.Embedder with Embed. It never returns an error.
type Embedder struct{}

var _ ai.Embedder = Embedder{}

// New returns a local embedder.
func New() Embedder {
	return Embedder{}
}

// EmbedText returns Embed(text).
func (Embedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	return Embed(text), nil
}

// EmbedTexts returns Embed for each text.
func (Embedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Embed(t)
	}
	return out, nil
}

// Model returns ModelName.
func (Embedder) Model() string {
	return ModelName
}

// Embed computes a 384-dimension vector for text. It is a pure function:
// identical input yields bit-identical output.
//
// Each word adds 1/(position+1) to its hash bucket. Each distinct word also
// adds log(count+1) to a second bucket offset by half the bucket range, which
// carries term frequency independent of position. Slots 0 and 1 hold the log
// of the character count and of the word count. The result has unit L2 norm
// unless every component is zero.
func Embed(text string) []float32 {
	vec := make([]float64, Dimension)
	words := Words(text)

	counts := make(map[string]int, len(words))
	order := make([]string, 0, len(words))
	for pos, w := range words {
		vec[bucket(w)] += 1 / float64(pos+1)
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	for _, w := range order {
		vec[offsetBucket(w)] += math.Log(float64(counts[w]) + 1)
	}

	vec[charSlot] = math.Log(float64(len([]rune(text))) + 1)
	vec[wordSlot] = math.Log(float64(len(words)) + 1)

	return normalize(vec)
}

// Words lowercases text and splits it into runs of letters and digits.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func bucket(word string) int {
	return reservedSize + int(hashWord(word)%wordBuckets)
}

func offsetBucket(word string) int {
	primary := bucket(word) - reservedSize
	return reservedSize + (primary+wordBuckets/2)%wordBuckets
}

func hashWord(word string) uint64 {
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(word))
	return binary.LittleEndian.Uint64(h.Sum(nil))
}

func normalize(vec []float64) []float32 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	out := make([]float32, len(vec))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
