package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/docmind/internal/chunk"
	"github.com/fyrsmithlabs/docmind/internal/config"
	"github.com/fyrsmithlabs/docmind/internal/extract"
	"github.com/fyrsmithlabs/docmind/internal/mindmap"
	"github.com/fyrsmithlabs/docmind/internal/store"
	"github.com/fyrsmithlabs/docmind/internal/vectorstore"
)

type fakeEmbedder struct {
	err     error
	calls   int
	onEmbed func()
}

func (e *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.onEmbed != nil {
		e.onEmbed()
	}
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{1, float32(len(t)), float32(i + 1)}
	}
	return out, nil
}

type fakeSummarizer struct {
	err   error
	block bool
	calls int
}

func (s *fakeSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	return "Summary: " + text, nil
}

// scriptedTools answers create_mindmap calls from a queue.
type scriptedTools struct {
	mu      sync.Mutex
	replies []string
}

func (s *scriptedTools) CallTool(_ context.Context, _, _ string, _ llms.FunctionDefinition) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r, nil
}

type harness struct {
	dataDir    string
	store      *store.Store
	vectors    *vectorstore.ChromemStore
	embedder   *fakeEmbedder
	summarizer *fakeSummarizer
	tools      *scriptedTools
	observed   []Stage
	processor  *Processor
}

func newHarness(t *testing.T, groups ...string) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{
		dataDir:    t.TempDir(),
		embedder:   &fakeEmbedder{},
		summarizer: &fakeSummarizer{},
		tools:      &scriptedTools{},
	}

	var err error
	h.store, err = store.Open(ctx, config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      config.Secret(filepath.Join(t.TempDir(), "pipeline.db")),
		LogLevel: "silent",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.store.Close() })

	for _, g := range groups {
		_, err := h.store.CreateGroup(ctx, g)
		require.NoError(t, err)
		require.NoError(t, os.MkdirAll(filepath.Join(h.dataDir, g), 0o755))
	}

	h.vectors, err = vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)

	chunker, err := chunk.New(chunk.Options{})
	require.NoError(t, err)

	h.processor, err = New(Deps{
		DataDir:    h.dataDir,
		Metadata:   h.store,
		Extractor:  extract.New(),
		Chunker:    chunker,
		Embedder:   h.embedder,
		Vectors:    h.vectors,
		Summarizer: h.summarizer,
		MindMapper: mindmap.NewSynthesizer(h.tools, nil),
		Timeouts:   Timeouts{Extract: time.Minute, Index: time.Minute, Summary: time.Minute, MindMap: time.Minute, Job: time.Minute},
		Observer: func(stage Stage, _ time.Duration, _ error) {
			h.observed = append(h.observed, stage)
		},
	})
	require.NoError(t, err)
	return h
}

func (h *harness) writeFile(t *testing.T, group, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.dataDir, group, name), []byte(content), 0o644))
}
