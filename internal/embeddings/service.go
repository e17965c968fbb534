package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/tmc/langchaingo/embeddings"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates the provider returned unusable output.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

const (
	DefaultBatchSize   = 32
	DefaultConcurrency = 1
)

// Embedder produces vectors for texts. It matches langchaingo's
// embeddings.Embedder so either can be injected.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Options configures a Service.
type Options struct {
	// Model labels metrics.
	Model       string
	BatchSize   int
	Concurrency int
	Metrics     *Metrics
}

// Service batches embedding requests over an injected client.
type Service struct {
	client  Embedder
	opts    Options
	pool    *ants.Pool
	metrics *Metrics
}

// NewService creates a Service. Close releases its worker pool.
func NewService(client Embedder, opts Options) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: embedder client is required", ErrInvalidConfig)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	pool, err := ants.NewPool(opts.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding pool: %w", err)
	}

	return &Service{
		client:  client,
		opts:    opts,
		pool:    pool,
		metrics: opts.Metrics,
	}, nil
}

// EmbedDocuments returns one vector per text, in input order.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := embeddings.BatchTexts(texts, s.opts.BatchSize)
	results := make([][][]float32, len(batches))

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		i, batch := i, batch
		err := s.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vecs, err := s.embedBatch(ctx, batch)
			if err != nil {
				fail(fmt.Errorf("batch %d: %w", i, err))
				return
			}
			results[i] = vecs
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("failed to submit batch %d: %w", i, err))
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (s *Service) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	start := time.Now()
	vecs, err := s.client.EmbedDocuments(ctx, batch)
	if err == nil && len(vecs) != len(batch) {
		err = fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vecs), len(batch))
	}
	if err == nil {
		for _, v := range vecs {
			if len(v) == 0 {
				err = fmt.Errorf("%w: empty vector", ErrEmbeddingFailed)
				break
			}
		}
	}
	s.metrics.RecordGeneration(ctx, s.opts.Model, "embed_documents", time.Since(start), len(batch), err)
	return vecs, err
}

// EmbedQuery embeds a single query text.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	start := time.Now()
	vec, err := s.client.EmbedQuery(ctx, text)
	s.metrics.RecordGeneration(ctx, s.opts.Model, "embed_query", time.Since(start), 1, err)
	return vec, err
}

// Close releases the worker pool.
func (s *Service) Close() error {
	s.pool.Release()
	return nil
}
