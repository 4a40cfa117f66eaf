package mock

import "github.com/poiesic/docrag/ai"

var _ ai.AIProvider = (*MockProvider)(nil)

type MockProvider struct {
	embedder  *MockEmbedder
	describer *MockPageDescriber
	closed    bool
}

func NewMockProvider() ai.AIProvider {
	return &MockProvider{
		embedder:  NewMockEmbedder(),
		describer: NewMockPageDescriber(),
	}
}

func NewMockProviderWithServices(embedder *MockEmbedder, describer *MockPageDescriber) ai.AIProvider {
	return &MockProvider{
		embedder:  embedder,
		describer: describer,
	}
}

func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *MockProvider) PageDescriber() ai.PageDescriber {
	if p.describer == nil {
		return nil
	}
	return p.describer
}

func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

func (p *MockProvider) Closed() bool {
	return p.closed
}

func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

func (p *MockProvider) GetMockDescriber() *MockPageDescriber {
	return p.describer
}
