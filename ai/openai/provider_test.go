package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer answers the embeddings and chat completions endpoints. The first
// embeddings call fails with 503 to exercise the retrying transport.
func fakeServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var embedCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		if embedCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-embed", req.Model)

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i, in := range req.Input {
			data[i] = item{Object: "embedding", Embedding: []float32{float32(len(in)), 1, 0}, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-vision", body["model"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","model":"test-vision","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"` +
			"```\\nA bar chart\\n of  revenue.\\n```" + `"}}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &embedCalls
}

func testConfig(host string) *ai.Config {
	return ai.NewConfig(
		ai.WithHost(host),
		ai.WithEmbeddingModel("test-embed"),
		ai.WithDescriberModel("test-vision"),
		ai.WithTimeout(5*time.Second),
		ai.WithMaxRetries(2),
	)
}

func TestProviderEmbedder(t *testing.T) {
	srv, calls := fakeServer(t)

	provider, err := NewProvider(testConfig(srv.URL))
	require.NoError(t, err)
	defer provider.Close()

	embedder := provider.Embedder()
	assert.Equal(t, "test-embed", embedder.Model())

	vec, err := embedder.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1, 0}, vec)
	assert.Equal(t, int32(2), calls.Load(), "first call retried after 503")

	vecs, err := embedder.EmbedTexts(context.Background(), []string{"a", "bcd"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(3), vecs[1][0])
}

func TestProviderDescriber(t *testing.T) {
	srv, _ := fakeServer(t)

	provider, err := NewProvider(testConfig(srv.URL))
	require.NoError(t, err)

	describer := provider.PageDescriber()
	require.NotNil(t, describer)

	desc, err := describer.DescribePage(context.Background(), 2, []byte{0x89, 'P', 'N', 'G'}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "A bar chart of revenue.", desc)

	_, err = describer.DescribePage(context.Background(), 2, nil, "image/png")
	assert.ErrorIs(t, err, ai.ErrDescribeFailed)
}

func TestProviderWithoutDescriber(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.DescriberModel = ""

	provider, err := NewProvider(cfg)
	require.NoError(t, err)
	assert.Nil(t, provider.PageDescriber())
}

func TestProviderInvalidConfig(t *testing.T) {
	_, err := NewProvider(&ai.Config{Provider: ai.ProviderOpenAI})
	assert.Error(t, err)
}

func TestScrubString(t *testing.T) {
	assert.Equal(t, "a\tb\nc", scrubString("  a\tb\x00\nc\x07 "))
	assert.Equal(t, "plain", scrubString("plain"))
}

func TestCleanDescription(t *testing.T) {
	assert.Equal(t, "A table.", cleanDescription("```text\nA   table.\n```"))
	assert.Equal(t, "", cleanDescription("  ``` ```"))
	assert.False(t, strings.Contains(cleanDescription("x\ny"), "\n"))
}
