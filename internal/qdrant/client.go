// Package qdrant wraps the official Qdrant gRPC client with request timeouts
// and retries on transient failures.
package qdrant

import (
	"context"
)

// Client is the subset of Qdrant operations docmind needs.
type Client interface {
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	DeleteCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)

	Upsert(ctx context.Context, collection string, points []*Point) error
	Search(ctx context.Context, collection string, vector []float32, limit uint64) ([]*ScoredPoint, error)
	CountByFile(ctx context.Context, collection, fileName string) (uint64, error)

	Health(ctx context.Context) error
	Close() error
}

// Payload field names stored on every point.
const (
	FieldGroup      = "group"
	FieldFileName   = "file_name"
	FieldChunkIndex = "chunk_index"
	FieldText       = "text"
)

// Payload is the provenance of one chunk.
type Payload struct {
	Group      string
	FileName   string
	ChunkIndex int
	Text       string
}

// Point is a vector with its payload. ID must be a UUID.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload Payload
}
