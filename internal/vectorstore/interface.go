package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/docmind/internal/qdrant"
)

var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyPoints indicates an upsert with nothing to write.
	ErrEmptyPoints = errors.New("empty or nil points")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrDimensionMismatch indicates a vector of the wrong size for its collection.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Payload keys written on every point.
const (
	PayloadGroup      = qdrant.FieldGroup
	PayloadFileName   = qdrant.FieldFileName
	PayloadChunkIndex = qdrant.FieldChunkIndex
	PayloadText       = qdrant.FieldText
)

// Point is one embedded chunk with its provenance.
type Point struct {
	ID         string
	Vector     []float32
	Group      string
	FileName   string
	ChunkIndex int
	Text       string
}

// SearchResult is a similarity hit, highest score first.
type SearchResult struct {
	ID         string  `json:"id"`
	Score      float32 `json:"score"`
	Group      string  `json:"group"`
	FileName   string  `json:"file_name"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
}

// Store is a per-group vector index.
type Store interface {
	// EnsureCollection creates the collection when it does not exist.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Upsert writes points to an existing collection.
	Upsert(ctx context.Context, name string, points []Point) error

	// Search returns up to k points nearest to vector.
	Search(ctx context.Context, name string, vector []float32, k int) ([]SearchResult, error)

	// CountByFile counts the points whose file_name payload equals fileName.
	CountByFile(ctx context.Context, name, fileName string) (int, error)

	// DeleteCollection removes the collection and its points. Deleting a
	// missing collection is not an error.
	DeleteCollection(ctx context.Context, name string) error

	Close() error
}

// collectionNamePattern accepts every valid group name.
var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateCollectionName checks a collection name.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidCollectionName, name, collectionNamePattern)
	}
	return nil
}

func validatePoints(points []Point) error {
	if len(points) == 0 {
		return ErrEmptyPoints
	}
	dim := len(points[0].Vector)
	for i, p := range points {
		if p.ID == "" {
			return fmt.Errorf("point %d has no id", i)
		}
		if len(p.Vector) == 0 || len(p.Vector) != dim {
			return fmt.Errorf("%w: point %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(p.Vector), dim)
		}
	}
	return nil
}
