// Package chunker splits document text into fixed-width, overlapping
// character windows suitable for embedding.
//
// Windows are measured in Unicode code points, not bytes, so a multi-byte
// character is never cut in half. The splitter is deliberately structure
// blind: it does not look for sentence or paragraph boundaries.
package chunker

import (
	"errors"
	"fmt"

	"github.com/54b3r/docrag/internal/loader"
)

// Default window parameters.
const (
	DefaultSize    = 500
	DefaultOverlap = 100
)

// ErrInvalidConfig is returned by [New] when the window parameters violate
// size > 0 and 0 <= overlap < size.
var ErrInvalidConfig = errors.New("chunker: invalid configuration")

// Chunk is one window of a document's text.
type Chunk struct {
	// Text is the window content.
	Text string
	// Source is the path of the document the window was cut from.
	Source string
	// Offset is the code-point offset of the window within the document text.
	Offset int
}

// Chunker holds validated window parameters. The zero value is not usable;
// construct with [New].
type Chunker struct {
	size    int
	overlap int
}

// New validates size and overlap and returns a Chunker.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", ErrInvalidConfig, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the maximum window length in code points.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of code points shared by consecutive windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into windows of at most Size code points, each starting
// Size-Overlap code points after the previous one. Empty text yields nil;
// text shorter than Size yields a single window equal to the text.
func (c *Chunker) Split(text string) []string {
	spans := c.spans(text)
	if len(spans) == 0 {
		return nil
	}
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.text
	}
	return out
}

// Chunk splits each document independently and concatenates the windows in
// input order.
func (c *Chunker) Chunk(docs []loader.Document) []Chunk {
	var chunks []Chunk
	for _, doc := range docs {
		for _, s := range c.spans(doc.Text) {
			chunks = append(chunks, Chunk{
				Text:   s.text,
				Source: doc.Path,
				Offset: s.offset,
			})
		}
	}
	return chunks
}

// span is a window and its code-point offset.
type span struct {
	text   string
	offset int
}

func (c *Chunker) spans(text string) []span {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	step := c.size - c.overlap

	var out []span
	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		out = append(out, span{text: string(runes[start:end]), offset: start})
		if end == len(runes) {
			break
		}
	}
	return out
}
