// Package chunk splits a source document into overlapping fixed-size windows.
package chunk

import (
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/kailas-cloud/ragmail/internal/domain"
)

// IDPrefix is the identifier prefix of indexed chunks: chunk_0, chunk_1, ...
const IDPrefix = "chunk_"

// Chunk is a contiguous window of a document. Offset and length are in characters (runes).
type Chunk struct {
	Index  int
	Offset int
	Text   string
}

// ID returns the index identifier of the chunk.
func (c Chunk) ID() string { return ID(c.Index) }

// ID formats the identifier for the i-th chunk in document order.
func ID(i int) string { return IDPrefix + strconv.Itoa(i) }

// Chunker is an immutable window/overlap configuration.
type Chunker struct {
	size    int
	overlap int
}

// New validates the window parameters. overlap >= size would never advance the
// offset, so it is rejected with domain.ErrInvalidConfiguration.
func New(size, overlap int) (Chunker, error) {
	if size <= 0 {
		return Chunker{}, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidConfiguration, size)
	}
	if overlap < 0 {
		return Chunker{}, fmt.Errorf("%w: chunk overlap must not be negative, got %d", domain.ErrInvalidConfiguration, overlap)
	}
	if overlap >= size {
		return Chunker{}, fmt.Errorf("%w: chunk overlap (%d) must be less than chunk size (%d)",
			domain.ErrInvalidConfiguration, overlap, size)
	}
	return Chunker{size: size, overlap: overlap}, nil
}

// Size returns the window size.
func (c Chunker) Size() int { return c.size }

// Overlap returns the number of characters shared by consecutive chunks.
func (c Chunker) Overlap() int { return c.overlap }

// Step returns the offset advance between consecutive chunks.
func (c Chunker) Step() int { return c.size - c.overlap }

// All yields the chunks of text lazily. The sequence is finite and can be ranged over again.
func (c Chunker) All(text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if c.size <= 0 || c.overlap >= c.size {
			return
		}
		runes := []rune(text)
		step := c.Step()
		for i, off := 0, 0; off < len(runes); i, off = i+1, off+step {
			end := min(off+c.size, len(runes))
			if !yield(Chunk{Index: i, Offset: off, Text: string(runes[off:end])}) {
				return
			}
		}
	}
}

// Split collects All into a slice.
func (c Chunker) Split(text string) []Chunk {
	var out []Chunk
	for ch := range c.All(text) {
		out = append(out, ch)
	}
	return out
}

// Count returns the number of chunks text produces without materialising them.
func (c Chunker) Count(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	step := c.Step()
	return (n + step - 1) / step
}

// Reconstruct joins chunks produced with the given overlap back into the source text,
// dropping the leading overlap of every chunk after the first.
func Reconstruct(chunks []Chunk, overlap int) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i == 0 {
			b.WriteString(ch.Text)
			continue
		}
		runes := []rune(ch.Text)
		if overlap >= len(runes) {
			continue
		}
		b.WriteString(string(runes[overlap:]))
	}
	return b.String()
}
