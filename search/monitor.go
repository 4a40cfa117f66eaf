package search

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(documentID, query string)
	AfterLoad(doc *Document, cached bool)
	AfterQueryEmbedding(dimension int, localQuery bool)
	AfterRanking(ranked []Scored[int])
	Finish(resp *SearchResponse)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_, _ string)                 {}
func (n *noopMonitor) AfterLoad(_ *Document, _ bool)     {}
func (n *noopMonitor) AfterQueryEmbedding(_ int, _ bool) {}
func (n *noopMonitor) AfterRanking(_ []Scored[int])      {}
func (n *noopMonitor) Finish(_ *SearchResponse)          {}
