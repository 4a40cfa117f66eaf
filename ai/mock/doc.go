// Package mock provides test doubles for the ai package interfaces.
//
// Mocks return concrete types so tests can inject behavior and inspect calls:
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("offline")
//	}
//
//	// Check call counts
//	count := embedder.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic 768-dimension unit vectors based on text hash
//   - MockPageDescriber: Returns "figure on page N"
//   - MockProvider: Aggregates mock embedder and describer
//
// All mocks are safe for concurrent use.
package mock
