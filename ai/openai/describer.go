package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/transport"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const describePrompt = "Describe the figures, charts, tables and images on this document page in two or three sentences. " +
	"Report only what is visible. Do not transcribe running text."

// PageDescriber implements ai.PageDescriber using an OpenAI-compatible vision chat model.
type PageDescriber struct {
	client llms.Model
	logger *slog.Logger
}

var _ ai.PageDescriber = (*PageDescriber)(nil)

// newPageDescriber is an internal constructor that returns the concrete type.
func newPageDescriber(config *ai.Config, client *transport.Client) (*PageDescriber, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.DescriberHost),
		openai.WithToken(token(config)),
		openai.WithModel(config.DescriberModel),
		openai.WithHTTPClient(client),
	)
	if err != nil {
		return nil, err
	}

	return &PageDescriber{
		client: llm,
		logger: slog.Default().With("component", "openai-describer"),
	}, nil
}

// NewPageDescriber creates a page describer using the provided configuration.
func NewPageDescriber(config *ai.Config) (ai.PageDescriber, error) {
	return newPageDescriber(config, newTransport(config))
}

// DescribePage asks the vision model for a short description of one page image.
func (d *PageDescriber) DescribePage(ctx context.Context, pageNumber int, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: page %d has no image", ai.ErrDescribeFailed, pageNumber)
	}
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(describePrompt),
				llms.BinaryPart(mimeType, image),
			},
		},
	}

	response, err := d.client.GenerateContent(ctx, content, llms.WithTemperature(0.0))
	if err != nil {
		d.logger.Debug("failed to describe page", "page", pageNumber, "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", fmt.Errorf("%w: no choices for page %d", ai.ErrDescribeFailed, pageNumber)
	}

	desc := cleanDescription(response.Choices[0].Content)
	if desc == "" {
		return "", fmt.Errorf("%w: empty answer for page %d", ai.ErrDescribeFailed, pageNumber)
	}
	d.logger.Debug("described page", "page", pageNumber, "length", len(desc))
	return desc, nil
}
