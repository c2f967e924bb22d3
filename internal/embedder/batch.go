package embedder

import (
	"context"
	"fmt"

	"github.com/54b3r/docrag/internal/budget"
)

// batcher splits one Embed call into requests that fit a backend's per-request
// limits. The zero value uses the budget defaults.
type batcher struct {
	maxItems  int
	maxTokens int
}

// embed sends texts through call in budget-sized batches and returns the
// vectors in input order. A failed batch fails the whole call.
func (b batcher) embed(ctx context.Context, texts []string, call func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	spans := budget.Batches(texts, b.maxTokens, b.maxItems)
	if len(spans) <= 1 {
		return call(ctx, texts)
	}

	out := make([][]float32, 0, len(texts))
	for i, span := range spans {
		vecs, err := call(ctx, texts[span.Start:span.End])
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d: %w", i+1, len(spans), err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}
