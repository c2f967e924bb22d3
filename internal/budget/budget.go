// Package budget sizes embedding requests. Embedding backends cap both the
// number of inputs and the tokens of one request, and docrag supports
// several backends with different tokenizers, so token counts are estimated
// with a character heuristic: 1 token ≈ 4 characters.
package budget

import "unicode/utf8"

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxTokens is the default token budget of one embedding request.
	// It stays well under OpenAI's per-request limit.
	DefaultMaxTokens = 100_000

	// DefaultMaxItems is the default number of inputs per embedding request.
	// OpenAI rejects batches above 2048 inputs.
	DefaultMaxItems = 256
)

// Estimate returns a rough token count for s.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s) / charsPerToken
	if n == 0 && s != "" {
		return 1
	}
	return n
}

// Span is a half-open index range [Start, End) into a slice of texts.
type Span struct {
	Start, End int
}

// Batches partitions texts into consecutive spans holding at most maxItems
// texts and at most maxTokens estimated tokens each. A single text above
// maxTokens gets a span of its own. Non-positive limits fall back to the
// defaults. Order is preserved.
func Batches(texts []string, maxTokens, maxItems int) []Span {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}

	var spans []Span
	start, tokens := 0, 0
	for i, t := range texts {
		cost := Estimate(t)
		if i > start && (i-start >= maxItems || tokens+cost > maxTokens) {
			spans = append(spans, Span{Start: start, End: i})
			start, tokens = i, 0
		}
		tokens += cost
	}
	if start < len(texts) {
		spans = append(spans, Span{Start: start, End: len(texts)})
	}
	return spans
}
