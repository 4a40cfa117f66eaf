// Package gemini implements the ai interfaces on Google's Gemini API.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/docrag/ai"
	"google.golang.org/api/option"
)

// DefaultEmbeddingModel is used when the config names none.
const DefaultEmbeddingModel = "text-embedding-004"

// Provider implements ai.AIProvider on one Gemini client.
type Provider struct {
	client    *genai.Client
	embedder  *Embedder
	describer *PageDescriber
	logger    *slog.Logger
}

var _ ai.AIProvider = (*Provider)(nil)

// NewProvider creates a Gemini provider. The config must carry an APIKey.
func NewProvider(ctx context.Context, config *ai.Config) (ai.AIProvider, error) {
	return newProvider(ctx, config)
}

func newProvider(ctx context.Context, config *ai.Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Provider != ai.ProviderGemini {
		return nil, fmt.Errorf("%w: gemini provider given %q config", ai.ErrUnknownProvider, config.Provider)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	model := config.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	p := &Provider{
		client: client,
		embedder: &Embedder{
			model:  client.EmbeddingModel(model),
			name:   model,
			logger: slog.Default().With("component", "gemini-embedder"),
		},
		logger: slog.Default().With("component", "gemini-provider"),
	}
	if config.DescriberModel != "" {
		p.describer = &PageDescriber{
			model:  client.GenerativeModel(config.DescriberModel),
			logger: slog.Default().With("component", "gemini-describer"),
		}
	}
	return p, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// PageDescriber returns the page describer, or nil when none is configured.
func (p *Provider) PageDescriber() ai.PageDescriber {
	if p.describer == nil {
		return nil
	}
	return p.describer
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	p.logger.Debug("closing Gemini provider")
	return p.client.Close()
}

// Embedder implements ai.Embedder with Gemini batch embeddings.
type Embedder struct {
	model  *genai.EmbeddingModel
	name   string
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// EmbedText embeds a single text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts batches all texts in one request.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	batch := e.model.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}
	resp, err := e.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ai.ErrEmbeddingFailed, len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: empty vector at %d", ai.ErrEmbeddingFailed, i)
		}
		out[i] = emb.Values
	}
	return out, nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.name
}

// PageDescriber implements ai.PageDescriber with a Gemini vision model.
type PageDescriber struct {
	model  *genai.GenerativeModel
	logger *slog.Logger
}

var _ ai.PageDescriber = (*PageDescriber)(nil)

const describePrompt = "Describe the figures, charts, tables and images on this document page in two or three sentences. " +
	"Report only what is visible. Do not transcribe running text."

// DescribePage describes one rendered page image.
func (d *PageDescriber) DescribePage(ctx context.Context, pageNumber int, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: page %d has no image", ai.ErrDescribeFailed, pageNumber)
	}
	resp, err := d.model.GenerateContent(ctx,
		genai.Text(describePrompt),
		genai.ImageData(imageFormat(mimeType), image))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates for page %d", ai.ErrDescribeFailed, pageNumber)
	}
	desc := joinText(resp.Candidates[0].Content.Parts)
	if desc == "" {
		return "", fmt.Errorf("%w: empty answer for page %d", ai.ErrDescribeFailed, pageNumber)
	}
	d.logger.Debug("described page", "page", pageNumber, "length", len(desc))
	return desc, nil
}

// imageFormat turns "image/png" into "png" as genai.ImageData expects.
func imageFormat(mimeType string) string {
	format := strings.TrimPrefix(strings.ToLower(mimeType), "image/")
	if format == "" || format == "jpg" {
		return "jpeg"
	}
	return format
}

func joinText(parts []genai.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
