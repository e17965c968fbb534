// Package pipeline runs the stages of one ingestion job: resolve the group
// and file, extract the text once, then index, summarize and fold the text
// into the group mind-map, in that order. Every stage runs under its own
// deadline and the first failure stops the job with a *StageError.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docmind/internal/chunk"
	"github.com/fyrsmithlabs/docmind/internal/config"
	"github.com/fyrsmithlabs/docmind/internal/extract"
	"github.com/fyrsmithlabs/docmind/internal/logging"
	"github.com/fyrsmithlabs/docmind/internal/mindmap"
	"github.com/fyrsmithlabs/docmind/internal/queue"
	"github.com/fyrsmithlabs/docmind/internal/store"
	"github.com/fyrsmithlabs/docmind/internal/vectorstore"
)

// Metadata opens job-scoped store sessions.
type Metadata interface {
	Session(ctx context.Context) (*store.Session, error)
}

// Extractor reads a document from disk.
type Extractor interface {
	Extract(ctx context.Context, path string) (*extract.Document, error)
}

// Embedder embeds chunk texts.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Summarizer produces one document summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// MindMapper folds a document into the group tree.
type MindMapper interface {
	Synthesize(ctx context.Context, repo mindmap.Repository, group, text string) (*mindmap.Result, error)
}

// Timeouts bounds each stage and the whole job. Zero disables a bound.
type Timeouts struct {
	Extract time.Duration
	Index   time.Duration
	Summary time.Duration
	MindMap time.Duration
	Job     time.Duration
}

// TimeoutsFromConfig reads the pipeline section.
func TimeoutsFromConfig(cfg config.PipelineConfig) Timeouts {
	return Timeouts{
		Extract: cfg.ExtractTimeout.Duration(),
		Index:   cfg.IndexTimeout.Duration(),
		Summary: cfg.SummaryTimeout.Duration(),
		MindMap: cfg.MindMapTimeout.Duration(),
		Job:     cfg.JobTimeout.Duration(),
	}
}

// StageObserver is told the duration and result of every stage that ran.
type StageObserver func(stage Stage, d time.Duration, err error)

// Deps are the collaborators of a Processor.
type Deps struct {
	DataDir    string
	Metadata   Metadata
	Extractor  Extractor
	Chunker    *chunk.Chunker
	Embedder   Embedder
	Vectors    vectorstore.Store
	Summarizer Summarizer
	MindMapper MindMapper
	Timeouts   Timeouts
	Logger     *logging.Logger
	Tracer     trace.Tracer
	Observer   StageObserver
}

// Outcome reports what a successful job produced.
type Outcome struct {
	Path       string
	Chunks     int
	SummaryID  uint
	Transition mindmap.Transition
	Restored   int
}

// Processor runs jobs. It keeps no per-job state.
type Processor struct {
	deps Deps
}

// New validates deps and creates a Processor.
func New(deps Deps) (*Processor, error) {
	switch {
	case deps.DataDir == "":
		return nil, errors.New("data dir is required")
	case deps.Metadata == nil:
		return nil, errors.New("metadata store is required")
	case deps.Extractor == nil:
		return nil, errors.New("extractor is required")
	case deps.Chunker == nil:
		return nil, errors.New("chunker is required")
	case deps.Embedder == nil:
		return nil, errors.New("embedder is required")
	case deps.Vectors == nil:
		return nil, errors.New("vector store is required")
	case deps.Summarizer == nil:
		return nil, errors.New("summarizer is required")
	case deps.MindMapper == nil:
		return nil, errors.New("mindmap synthesizer is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("docmind.pipeline")
	}
	return &Processor{deps: deps}, nil
}

// Process runs every stage for one envelope. The returned error, if any, is
// a *StageError.
func (p *Processor) Process(ctx context.Context, env queue.Envelope) (*Outcome, error) {
	if p.deps.Timeouts.Job > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.deps.Timeouts.Job)
		defer cancel()
	}

	out := &Outcome{}
	err := p.run(ctx, StageValidate, 0, func(context.Context) error {
		if err := env.Validate(); err != nil {
			return stageError(StageValidate, KindInvalidJob, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	session, err := p.deps.Metadata.Session(ctx)
	if err != nil {
		return nil, stageError(StageResolve, KindPersistence, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			p.deps.Logger.Warn(ctx, "failed to release metadata session", zap.Error(cerr))
		}
	}()

	group, file := env.ProjectGroup, env.FileName
	err = p.run(ctx, StageResolve, 0, func(ctx context.Context) error {
		if _, err := session.LookupGroup(ctx, group); err != nil {
			if errors.Is(err, store.ErrGroupNotFound) {
				return stageError(StageResolve, KindGroupNotFound, err)
			}
			return stageError(StageResolve, KindPersistence, err)
		}
		path, err := p.resolvePath(group, file)
		if err != nil {
			return stageError(StageResolve, KindInvalidJob, err)
		}
		out.Path = path
		return nil
	})
	if err != nil {
		return nil, err
	}

	var doc *extract.Document
	err = p.run(ctx, StageExtract, p.deps.Timeouts.Extract, func(ctx context.Context) error {
		d, err := p.deps.Extractor.Extract(ctx, out.Path)
		if err != nil {
			return stageError(StageExtract, KindExtraction, err)
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	text := doc.FullText()

	err = p.run(ctx, StageIndex, p.deps.Timeouts.Index, func(ctx context.Context) error {
		n, err := p.index(ctx, group, file, text)
		if err != nil {
			return stageError(StageIndex, KindIndexing, err)
		}
		// A group deleted while indexing ran must not keep the collection
		// EnsureCollection recreated.
		if _, err := session.LookupGroup(ctx, group); err != nil {
			if errors.Is(err, store.ErrGroupNotFound) {
				if derr := p.deps.Vectors.DeleteCollection(ctx, group); derr != nil {
					p.deps.Logger.Warn(ctx, "failed to drop collection of deleted group",
						zap.String("group", group), zap.Error(derr))
				}
				return stageError(StageIndex, KindGroupNotFound, err)
			}
			return stageError(StageIndex, KindPersistence, err)
		}
		out.Chunks = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.run(ctx, StageSummary, p.deps.Timeouts.Summary, func(ctx context.Context) error {
		summary, err := p.deps.Summarizer.Summarize(ctx, text)
		if err != nil {
			return stageError(StageSummary, KindSynthesis, err)
		}
		row, err := session.InsertSummary(ctx, group, file, summary)
		if err != nil {
			return stageError(StageSummary, persistenceKind(err), err)
		}
		out.SummaryID = row.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.run(ctx, StageMindMap, p.deps.Timeouts.MindMap, func(ctx context.Context) error {
		res, err := p.deps.MindMapper.Synthesize(ctx, session, group, text)
		if err != nil {
			kind := KindSynthesis
			if errors.Is(err, mindmap.ErrPersistence) {
				kind = persistenceKind(err)
			}
			return stageError(StageMindMap, kind, err)
		}
		out.Transition = res.Transition
		out.Restored = res.Restored
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func persistenceKind(err error) Kind {
	if errors.Is(err, store.ErrGroupNotFound) {
		return KindGroupNotFound
	}
	return KindPersistence
}

// resolvePath maps a job to data_dir/<group>/<file> and refuses anything
// that would land outside the group directory.
func (p *Processor) resolvePath(group, file string) (string, error) {
	base := filepath.Join(p.deps.DataDir, group)
	path := filepath.Join(base, file)
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes %s", queue.ErrInvalidEnvelope, file, base)
	}
	return path, nil
}

func (p *Processor) index(ctx context.Context, group, file, text string) (int, error) {
	chunks, err := p.deps.Chunker.Split(text)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, errors.New("document produced no chunks")
	}

	vectors, err := p.deps.Embedder.EmbedDocuments(ctx, chunk.Texts(chunks))
	if err != nil {
		return 0, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	if err := p.deps.Vectors.EnsureCollection(ctx, group, len(vectors[0])); err != nil {
		return 0, err
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstore.Point{
			ID:         uuid.NewString(),
			Vector:     vectors[i],
			Group:      group,
			FileName:   file,
			ChunkIndex: c.Index,
			Text:       c.Text,
		}
	}
	if err := p.deps.Vectors.Upsert(ctx, group, points); err != nil {
		return 0, err
	}
	return len(points), nil
}

// run executes one stage under its own span and deadline. A stage that
// overruns its deadline fails with the kind the stage assigns.
func (p *Processor) run(ctx context.Context, stage Stage, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, span := p.deps.Tracer.Start(ctx, "pipeline."+string(stage),
		trace.WithAttributes(attribute.String("pipeline.stage", string(stage))),
	)
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if p.deps.Observer != nil {
		p.deps.Observer(stage, elapsed, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("pipeline.error_kind", string(KindOf(err))))
		return err
	}

	p.deps.Logger.Debug(ctx, "stage completed",
		zap.String("stage", string(stage)),
		zap.Duration("duration", elapsed),
	)
	return nil
}
