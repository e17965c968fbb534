package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docmind/internal/logging"
)

var chromemTracer = otel.Tracer("docmind.vectorstore.chromem")

// ChromemConfig configures the embedded store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path string

	// Compress enables gzip compression of persisted documents.
	Compress bool
}

// ChromemStore implements Store with chromem-go.
//
// chromem-go only supports cosine similarity and keeps every collection in
// memory; persistence writes one gob file per document.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *logging.Logger

	// dims records the vector size per collection seen by EnsureCollection.
	dims sync.Map
}

// NewChromemStore opens or creates the store.
func NewChromemStore(config ChromemConfig, logger *logging.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	var (
		db  *chromem.DB
		err error
	)
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, perr := expandPath(config.Path)
		if perr != nil {
			return nil, fmt.Errorf("expanding path: %w", perr)
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		config.Path = path
	}

	logger.Info(context.Background(), "chromem store initialized",
		zap.String("path", config.Path),
		zap.Bool("persistent", config.Path != ""),
		zap.Bool("compress", config.Compress),
	)

	return &ChromemStore{db: db, config: config, logger: logger}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// noEmbedding is installed on every collection. Points always arrive with
// vectors, so chromem must never compute one itself.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem collections in docmind require precomputed embeddings")
}

// EnsureCollection creates the collection when missing.
func (s *ChromemStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if prev, ok := s.dims.Load(name); ok && prev.(int) != dimension {
		return fmt.Errorf("%w: collection %s has %d dimensions, got %d", ErrDimensionMismatch, name, prev.(int), dimension)
	}

	meta := map[string]string{"dimension": strconv.Itoa(dimension)}
	if _, err := s.db.GetOrCreateCollection(name, meta, noEmbedding); err != nil {
		return fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	s.dims.Store(name, dimension)
	return nil
}

// Upsert adds points to the collection.
func (s *ChromemStore) Upsert(ctx context.Context, name string, points []Point) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("point_count", len(points)))

	if err := validatePoints(points); err != nil {
		return err
	}
	if dim, ok := s.dims.Load(name); ok && dim.(int) != len(points[0].Vector) {
		return fmt.Errorf("%w: collection %s has %d dimensions, got %d", ErrDimensionMismatch, name, dim.(int), len(points[0].Vector))
	}

	collection := s.db.GetCollection(name, noEmbedding)
	if collection == nil {
		span.SetStatus(codes.Error, "collection not found")
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		docs[i] = chromem.Document{
			ID:        p.ID,
			Content:   p.Text,
			Embedding: p.Vector,
			Metadata: map[string]string{
				PayloadGroup:      p.Group,
				PayloadFileName:   p.FileName,
				PayloadChunkIndex: strconv.Itoa(p.ChunkIndex),
			},
		}
	}

	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding points to %s: %w", name, err)
	}

	s.logger.Debug(ctx, "upserted points",
		zap.String("collection", name),
		zap.Int("count", len(points)),
	)
	return nil
}

// Search returns up to k nearest points by cosine similarity.
func (s *ChromemStore) Search(ctx context.Context, name string, vector []float32, k int) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	collection := s.db.GetCollection(name, noEmbedding)
	if collection == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	// chromem requires nResults <= document count.
	count := collection.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if k > count {
		k = count
	}

	results, err := collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("querying collection %s: %w", name, err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		idx, _ := strconv.Atoi(r.Metadata[PayloadChunkIndex])
		out[i] = SearchResult{
			ID:         r.ID,
			Score:      r.Similarity,
			Group:      r.Metadata[PayloadGroup],
			FileName:   r.Metadata[PayloadFileName],
			ChunkIndex: idx,
			Text:       r.Content,
		}
	}
	return out, nil
}

// CountByFile counts points of one file. The collection's dimension must
// be known, so EnsureCollection has to run first in this process.
func (s *ChromemStore) CountByFile(ctx context.Context, name, fileName string) (int, error) {
	collection := s.db.GetCollection(name, noEmbedding)
	if collection == nil {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	count := collection.Count()
	if count == 0 {
		return 0, nil
	}

	dim, ok := s.dims.Load(name)
	if !ok {
		return 0, fmt.Errorf("dimension of collection %s is unknown", name)
	}

	query := make([]float32, dim.(int))
	for i := range query {
		query[i] = 1
	}
	results, err := collection.QueryEmbedding(ctx, query, count, map[string]string{PayloadFileName: fileName}, nil)
	if err != nil {
		return 0, fmt.Errorf("counting points in %s: %w", name, err)
	}
	return len(results), nil
}

// DeleteCollection removes the collection and any persisted files.
func (s *ChromemStore) DeleteCollection(ctx context.Context, name string) error {
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	s.dims.Delete(name)
	s.logger.Info(ctx, "deleted collection", zap.String("collection", name))
	return nil
}

// Close is a no-op; chromem persists each write immediately.
func (s *ChromemStore) Close() error {
	return nil
}

var _ Store = (*ChromemStore)(nil)
