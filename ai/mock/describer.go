package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/docrag/ai"
)

var _ ai.PageDescriber = (*MockPageDescriber)(nil)

type MockPageDescriber struct {
	// DescribePageFunc is called by DescribePage if set.
	// If nil, returns "figure on page N".
	DescribePageFunc func(ctx context.Context, pageNumber int, image []byte, mimeType string) (string, error)

	mu    sync.Mutex
	pages []int
}

func NewMockPageDescriber() *MockPageDescriber {
	return &MockPageDescriber{}
}

func (m *MockPageDescriber) DescribePage(ctx context.Context, pageNumber int, image []byte, mimeType string) (string, error) {
	m.mu.Lock()
	m.pages = append(m.pages, pageNumber)
	m.mu.Unlock()

	if m.DescribePageFunc != nil {
		return m.DescribePageFunc(ctx, pageNumber, image, mimeType)
	}
	return fmt.Sprintf("figure on page %d", pageNumber), nil
}

// Pages returns the page numbers described so far, in call order.
func (m *MockPageDescriber) Pages() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.pages...)
}

func (m *MockPageDescriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pages)
}
