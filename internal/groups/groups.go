// Package groups manages the lifecycle of project groups: the metadata
// row, the upload directory data_dir/<name>/ and the vector collection.
package groups

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docmind/internal/logging"
	"github.com/fyrsmithlabs/docmind/internal/store"
)

// ErrInvalidName is returned for names that cannot be a group.
var ErrInvalidName = errors.New("invalid group name")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateName checks that name is usable as a directory, a subject token
// and a collection name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidName, name, namePattern)
	}
	return nil
}

// Metadata is the group part of the metadata store.
type Metadata interface {
	CreateGroup(ctx context.Context, name string) (*store.Group, error)
	DeleteGroup(ctx context.Context, name string) error
	ListGroups(ctx context.Context) ([]store.Group, error)
}

// Collections deletes per-group vector collections.
type Collections interface {
	DeleteCollection(ctx context.Context, name string) error
}

// Service creates, lists and deletes groups.
type Service struct {
	meta    Metadata
	vectors Collections
	dataDir string
	logger  *logging.Logger
}

// NewService creates a Service.
func NewService(meta Metadata, vectors Collections, dataDir string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{meta: meta, vectors: vectors, dataDir: dataDir, logger: logger.Named("groups")}
}

// Dir returns the upload directory of a group.
func (s *Service) Dir(name string) string {
	return filepath.Join(s.dataDir, name)
}

// Create registers a group and creates its upload directory.
func (s *Service) Create(ctx context.Context, name string) (*store.Group, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	g, err := s.meta.CreateGroup(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.Dir(name), 0o755); err != nil {
		if derr := s.meta.DeleteGroup(ctx, name); derr != nil {
			s.logger.Warn(ctx, "failed to roll back group row", zap.String("group", name), zap.Error(derr))
		}
		return nil, fmt.Errorf("creating directory for group %s: %w", name, err)
	}
	s.logger.Info(ctx, "group created", zap.String("group", name))
	return g, nil
}

// Delete removes the group row (and with it documents, summaries and the
// mind-map), the vector collection and the upload directory. The row goes
// first, so jobs still queued for the group fail with group_not_found.
func (s *Service) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := s.meta.DeleteGroup(ctx, name); err != nil {
		return err
	}

	var errs []error
	if s.vectors != nil {
		if err := s.vectors.DeleteCollection(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("deleting collection: %w", err))
		}
	}
	if err := os.RemoveAll(s.Dir(name)); err != nil {
		errs = append(errs, fmt.Errorf("removing directory: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn(ctx, "group deleted with leftovers", zap.String("group", name), zap.Error(err))
		return fmt.Errorf("group %s deleted, cleanup incomplete: %w", name, err)
	}

	s.logger.Info(ctx, "group deleted", zap.String("group", name))
	return nil
}

// List returns every group ordered by name.
func (s *Service) List(ctx context.Context) ([]store.Group, error) {
	return s.meta.ListGroups(ctx)
}
