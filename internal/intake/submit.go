// Package intake turns uploaded files into queued jobs: Submitter
// registers a document and publishes its envelope, Watcher does the same for
// files appearing under data_dir/<group>/.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docmind/internal/logging"
	"github.com/fyrsmithlabs/docmind/internal/queue"
	"github.com/fyrsmithlabs/docmind/internal/store"
)

// ErrFileNotFound is returned when the file is not in the group directory.
var ErrFileNotFound = errors.New("document file not found")

// Registry records documents and lists groups.
type Registry interface {
	RegisterDocument(ctx context.Context, group, fileName, storagePath string) (*store.Document, bool, error)
	ListGroups(ctx context.Context) ([]store.Group, error)
}

// Publisher enqueues jobs.
type Publisher interface {
	Publish(ctx context.Context, env queue.Envelope) (uint64, error)
}

// Submission is the result of a successful Submit.
type Submission struct {
	Envelope    queue.Envelope
	Path        string
	Sequence    uint64
	NewDocument bool
}

// Submitter registers and enqueues documents.
type Submitter struct {
	registry  Registry
	publisher Publisher
	dataDir   string
	logger    *logging.Logger
}

// NewSubmitter creates a Submitter.
func NewSubmitter(registry Registry, publisher Publisher, dataDir string, logger *logging.Logger) *Submitter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Submitter{registry: registry, publisher: publisher, dataDir: dataDir, logger: logger.Named("intake")}
}

// Submit enqueues data_dir/<group>/<file>. The group must exist and the file
// must be a regular file. Submitting a file again publishes a new job for
// the same document row.
func (s *Submitter) Submit(ctx context.Context, group, file string) (*Submission, error) {
	env := queue.Envelope{ProjectGroup: group, FileName: file}
	if err := env.Validate(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.dataDir, group, file)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	case err != nil:
		return nil, fmt.Errorf("stat %s: %w", path, err)
	case !info.Mode().IsRegular():
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrFileNotFound, path)
	}

	_, created, err := s.registry.RegisterDocument(ctx, group, file, path)
	if err != nil {
		return nil, err
	}

	seq, err := s.publisher.Publish(ctx, env)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "document submitted",
		zap.String("group", group),
		zap.String("file", file),
		zap.Uint64("sequence", seq),
		zap.Bool("new_document", created),
	)
	return &Submission{Envelope: env, Path: path, Sequence: seq, NewDocument: created}, nil
}
