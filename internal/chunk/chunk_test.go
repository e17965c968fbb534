package chunk

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Options(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    Options
		wantErr bool
	}{
		{name: "defaults", opts: Options{}, want: Options{Size: 1000, Overlap: 200}},
		{name: "custom", opts: Options{Size: 500, Overlap: 50}, want: Options{Size: 500, Overlap: 50}},
		{name: "custom without overlap", opts: Options{Size: 500}, want: Options{Size: 500, Overlap: 0}},
		{name: "overlap equals size", opts: Options{Size: 100, Overlap: 100}, wantErr: true},
		{name: "negative overlap", opts: Options{Size: 100, Overlap: -1}, wantErr: true},
		{name: "negative size", opts: Options{Size: -5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.opts)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOptions)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Options())
		})
	}
}

func TestSplit_ShortTextIsOneChunk(t *testing.T) {
	c, err := New(Options{})
	require.NoError(t, err)

	chunks, err := c.Split("Revenue grew 12% in Q1.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, Chunk{Index: 0, Text: "Revenue grew 12% in Q1."}, chunks[0])
}

func TestSplit_EmptyText(t *testing.T) {
	c, err := New(Options{})
	require.NoError(t, err)

	chunks, err := c.Split("  \n\n ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplit_SizeAndOverlap(t *testing.T) {
	c, err := New(Options{Size: 50, Overlap: 10})
	require.NoError(t, err)

	words := make([]string, 60)
	for i := range words {
		words[i] = fmt.Sprintf("w%02d", i)
	}
	chunks, err := c.Split(strings.Join(words, " "))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 50)
	}
	for i := 0; i+1 < len(chunks); i++ {
		fields := strings.Fields(chunks[i].Text)
		last := fields[len(fields)-1]
		assert.Contains(t, chunks[i+1].Text, last, "adjacent chunks overlap")
	}

	// Every word survives chunking.
	joined := strings.Join(Texts(chunks), " ")
	for _, w := range words {
		assert.Contains(t, joined, w)
	}
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	c, err := New(Options{Size: 40, Overlap: 0})
	require.NoError(t, err)

	text := "Revenue grew strongly this quarter.\n\nCosts stayed flat across teams."
	chunks, err := c.Split(text)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Revenue grew strongly this quarter.", chunks[0].Text)
	assert.Equal(t, "Costs stayed flat across teams.", chunks[1].Text)
}
