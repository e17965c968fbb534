package vectorstore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docmind/internal/logging"
	"github.com/fyrsmithlabs/docmind/internal/qdrant"
)

var qdrantTracer = otel.Tracer("docmind.vectorstore.qdrant")

// QdrantStore implements Store on a Qdrant client.
type QdrantStore struct {
	client qdrant.Client
	logger *logging.Logger
}

// NewQdrantStore wraps an established client. The store owns the client and
// closes it on Close.
func NewQdrantStore(client qdrant.Client, logger *logging.Logger) (*QdrantStore, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: qdrant client is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &QdrantStore{client: client, logger: logger}, nil
}

// EnsureCollection creates the collection when it does not exist.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	if err := s.client.CreateCollection(ctx, name, uint64(dimension)); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}
	s.logger.Info(ctx, "created collection",
		zap.String("collection", name),
		zap.Int("dimension", dimension),
	)
	return nil
}

// Upsert writes points with their provenance payload.
func (s *QdrantStore) Upsert(ctx context.Context, name string, points []Point) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("point_count", len(points)))

	if err := validatePoints(points); err != nil {
		return err
	}

	qpoints := make([]*qdrant.Point, len(points))
	for i, p := range points {
		qpoints[i] = &qdrant.Point{
			ID:     p.ID,
			Vector: p.Vector,
			Payload: qdrant.Payload{
				Group:      p.Group,
				FileName:   p.FileName,
				ChunkIndex: p.ChunkIndex,
				Text:       p.Text,
			},
		}
	}

	if err := s.client.Upsert(ctx, name, qpoints); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting into %s: %w", name, err)
	}

	s.logger.Debug(ctx, "upserted points",
		zap.String("collection", name),
		zap.Int("count", len(points)),
	)
	return nil
}

// Search returns up to k nearest points.
func (s *QdrantStore) Search(ctx context.Context, name string, vector []float32, k int) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	hits, err := s.client.Search(ctx, name, vector, uint64(k))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("searching %s: %w", name, err)
	}

	out := make([]SearchResult, len(hits))
	for i, h := range hits {
		out[i] = SearchResult{
			ID:         h.ID,
			Score:      h.Score,
			Group:      h.Payload.Group,
			FileName:   h.Payload.FileName,
			ChunkIndex: h.Payload.ChunkIndex,
			Text:       h.Payload.Text,
		}
	}
	return out, nil
}

// CountByFile counts the points of one file exactly.
func (s *QdrantStore) CountByFile(ctx context.Context, name, fileName string) (int, error) {
	n, err := s.client.CountByFile(ctx, name, fileName)
	if err != nil {
		return 0, fmt.Errorf("counting points in %s: %w", name, err)
	}
	return int(n), nil
}

// DeleteCollection removes the collection when it exists.
func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	s.logger.Info(ctx, "deleted collection", zap.String("collection", name))
	return nil
}

// Close closes the underlying client.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

var _ Store = (*QdrantStore)(nil)
