// Package chunk splits extracted text into overlapping pieces for indexing.
package chunk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Separators are tried in order: paragraph, line, word, then mid-text.
var Separators = []string{"\n\n", "\n", " ", ""}

// ErrInvalidOptions is returned when size and overlap are inconsistent.
var ErrInvalidOptions = errors.New("invalid chunk options")

// Chunk is one contiguous piece of a document's text.
type Chunk struct {
	Index int
	Text  string
}

// Options configures a Chunker. Sizes are measured in runes.
type Options struct {
	Size    int
	Overlap int
}

// Chunker is a recursive character splitter.
type Chunker struct {
	opts     Options
	splitter textsplitter.RecursiveCharacter
}

// New creates a Chunker. Zero values take the defaults.
func New(opts Options) (*Chunker, error) {
	if opts.Size == 0 {
		opts.Size = DefaultSize
	}
	if opts.Overlap == 0 && opts.Size == DefaultSize {
		opts.Overlap = DefaultOverlap
	}
	if opts.Size < 0 || opts.Overlap < 0 || opts.Overlap >= opts.Size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidOptions, opts.Size, opts.Overlap)
	}

	return &Chunker{
		opts: opts,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(opts.Size),
			textsplitter.WithChunkOverlap(opts.Overlap),
			textsplitter.WithSeparators(Separators),
		),
	}, nil
}

// Options returns the effective options.
func (c *Chunker) Options() Options {
	return c.opts
}

// Split returns the ordered chunks of text. Whitespace-only pieces are
// dropped; an empty text yields no chunks.
func (c *Chunker) Split(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	pieces, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: p})
	}
	return chunks, nil
}

// Texts returns the chunk texts in order.
func Texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
