package gemini

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/docrag/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	cfg := ai.NewConfig(
		ai.WithProvider(ai.ProviderGemini),
		ai.WithAPIKey("test-key"),
		ai.WithEmbeddingModel("text-embedding-004"),
		ai.WithDescriberModel(""),
	)
	p, err := newProvider(context.Background(), cfg)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "text-embedding-004", p.Embedder().Model())
	assert.Nil(t, p.PageDescriber())

	vecs, err := p.Embedder().EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestNewProviderRejectsOtherProviders(t *testing.T) {
	_, err := NewProvider(context.Background(), ai.NewConfig())
	assert.ErrorIs(t, err, ai.ErrUnknownProvider)

	_, err = NewProvider(context.Background(), ai.NewConfig(ai.WithProvider(ai.ProviderGemini)))
	assert.Error(t, err, "missing api key")
}

func TestImageFormat(t *testing.T) {
	assert.Equal(t, "png", imageFormat("image/png"))
	assert.Equal(t, "jpeg", imageFormat("image/jpg"))
	assert.Equal(t, "jpeg", imageFormat("IMAGE/JPEG"))
	assert.Equal(t, "jpeg", imageFormat(""))
}

func TestJoinText(t *testing.T) {
	parts := []genai.Part{genai.Text("A chart\n"), genai.Blob{MIMEType: "image/png"}, genai.Text(" of  sales.")}
	assert.Equal(t, "A chart of sales.", joinText(parts))
}
