// Package ragtest provides deterministic embedders for tests that exercise
// the indexing and retrieval pipeline without a model server.
package ragtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// BagOfWords embeds text as hashed, lower-cased word counts. Texts that share
// words score a higher cosine similarity, which is enough to assert ranking
// in tests.
type BagOfWords struct {
	// Dim is the vector length (default 256).
	Dim int

	mu     sync.Mutex
	inputs []string
}

// Embed implements rag.Embedder.
func (b *BagOfWords) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dim := b.Dim
	if dim <= 0 {
		dim = 256
	}

	b.mu.Lock()
	b.inputs = append(b.inputs, texts...)
	b.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dim)
		for _, word := range Words(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(word))
			vec[h.Sum32()%uint32(dim)]++
		}
		// Keep every vector non-zero so cosine similarity stays defined.
		vec[dim-1] += 0.01
		out[i] = vec
	}
	return out, nil
}

// Inputs returns every text passed to Embed so far, in call order.
func (b *BagOfWords) Inputs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.inputs...)
}

// Words lower-cases text and splits it on anything that is not a letter or digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Func adapts a function to rag.Embedder, for injecting failures.
type Func func(ctx context.Context, texts []string) ([][]float32, error)

// Embed implements rag.Embedder.
func (f Func) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}
