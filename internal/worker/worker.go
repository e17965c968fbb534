// Package worker consumes ingestion jobs one at a time and decides their
// acknowledgment: ack after every stage succeeded, terminate on any
// failure. Terminated jobs are logged and recorded on the dropped-jobs
// stream; they are never redelivered automatically.
package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docmind/internal/logging"
	"github.com/fyrsmithlabs/docmind/internal/pipeline"
	"github.com/fyrsmithlabs/docmind/internal/queue"
)

// Deliveries yields queued jobs.
type Deliveries interface {
	Next(ctx context.Context) (queue.Message, error)
}

// Processor runs the stages of one job.
type Processor interface {
	Process(ctx context.Context, env queue.Envelope) (*pipeline.Outcome, error)
}

// DroppedPublisher records terminated jobs.
type DroppedPublisher interface {
	PublishDropped(ctx context.Context, job queue.DroppedJob) error
}

// Config configures a Worker.
type Config struct {
	// DataDir is only used to report the resolved path of failed jobs.
	DataDir string
	// Heartbeat is how often a running job tells the server it is alive.
	// Zero disables heartbeats.
	Heartbeat time.Duration
	// AckTimeout bounds Ack and Term calls.
	AckTimeout time.Duration
}

// Worker is the single sequential job consumer.
type Worker struct {
	cfg       Config
	processor Processor
	dropped   DroppedPublisher
	metrics   *Metrics
	logger    *logging.Logger
	tracer    trace.Tracer
}

// Option configures optional collaborators.
type Option func(*Worker)

// WithMetrics records Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithDropped records terminated jobs on the dropped-jobs stream.
func WithDropped(p DroppedPublisher) Option {
	return func(w *Worker) { w.dropped = p }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(w *Worker) { w.tracer = t }
}

// New creates a Worker.
func New(cfg Config, processor Processor, logger *logging.Logger, opts ...Option) (*Worker, error) {
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 10 * time.Second
	}
	w := &Worker{
		cfg:       cfg,
		processor: processor,
		logger:    logger.Named("worker"),
		tracer:    otel.Tracer("docmind.worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run handles deliveries until ctx is cancelled or the source is closed. The
// next delivery is requested only after the previous job's acknowledgment
// decision. Run returns nil on cancellation.
func (w *Worker) Run(ctx context.Context, src Deliveries) error {
	w.logger.Info(ctx, "worker started")
	defer w.logger.Info(context.WithoutCancel(ctx), "worker stopped")

	for {
		msg, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return nil
			}
			return fmt.Errorf("receiving job: %w", err)
		}
		w.Handle(ctx, msg)
	}
}

// Handle processes one delivery and acks or terminates it. When ctx is
// cancelled while the job runs, the delivery is left unacknowledged so the
// server redelivers it after restart.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) {
	jobID := uuid.NewString()
	env, decodeErr := msg.Envelope()

	ctx = logging.WithJob(ctx, logging.Job{ID: jobID, Group: env.ProjectGroup, File: env.FileName})
	ctx, span := w.tracer.Start(ctx, "worker.job", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.String("job.group", env.ProjectGroup),
		attribute.String("job.file", env.FileName),
		attribute.Int64("job.attempt", int64(msg.Attempt())),
	))
	defer span.End()

	w.metrics.inFlight(1)
	defer w.metrics.inFlight(-1)

	start := time.Now()
	w.logger.Info(ctx, "job received", zap.Uint64("attempt", msg.Attempt()))

	var (
		out *pipeline.Outcome
		err error
	)
	if decodeErr != nil {
		err = &pipeline.StageError{Kind: pipeline.KindInvalidJob, Stage: pipeline.StageValidate, Err: decodeErr}
	} else {
		stop := w.heartbeat(ctx, msg)
		out, err = w.processor.Process(ctx, env)
		stop()
	}

	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.AckTimeout)
	defer cancel()

	if err == nil {
		if aerr := msg.Ack(ackCtx); aerr != nil {
			// The job will be redelivered and reprocessed; artifacts are appended again.
			w.logger.Error(ctx, "failed to ack job", zap.Error(aerr))
		}
		w.metrics.jobFinished(OutcomeAcked, "")
		w.metrics.transition(out.Transition)
		span.SetStatus(codes.Ok, "")
		w.logger.Info(ctx, "job completed",
			zap.String("path", out.Path),
			zap.Int("chunks", out.Chunks),
			zap.String("mindmap_transition", string(out.Transition)),
			zap.Int("restored_topics", out.Restored),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if ctx.Err() != nil {
		w.metrics.jobFinished(OutcomeInterrupted, pipeline.KindOf(err))
		w.logger.Warn(ctx, "job interrupted by shutdown, leaving it for redelivery", zap.Error(err))
		return
	}

	w.drop(ctx, ackCtx, msg, env, err)
}

func (w *Worker) drop(ctx, ackCtx context.Context, msg queue.Message, env queue.Envelope, err error) {
	kind := pipeline.KindOf(err)
	stage := pipeline.StageOf(err)
	if kind == "" {
		kind = pipeline.KindPersistence
	}

	if terr := msg.Term(ackCtx); terr != nil {
		w.logger.Error(ctx, "failed to terminate job", zap.Error(terr))
	}
	w.metrics.jobFinished(OutcomeDropped, kind)

	path := ""
	if kind != pipeline.KindInvalidJob {
		path = filepath.Join(w.cfg.DataDir, env.ProjectGroup, env.FileName)
	}

	w.logger.Error(ctx, "job dropped",
		zap.String("group", env.ProjectGroup),
		zap.String("file", env.FileName),
		zap.String("path", path),
		zap.String("stage", string(stage)),
		zap.String("kind", string(kind)),
		zap.Uint64("attempt", msg.Attempt()),
		zap.Error(err),
	)

	if w.dropped == nil {
		return
	}
	record := queue.DroppedJob{
		Envelope:  env,
		Stage:     string(stage),
		Kind:      string(kind),
		Error:     err.Error(),
		Path:      path,
		Attempt:   msg.Attempt(),
		DroppedAt: time.Now().UTC(),
	}
	if kind == pipeline.KindInvalidJob {
		record.Raw = string(msg.Data())
	}
	if perr := w.dropped.PublishDropped(ackCtx, record); perr != nil {
		w.logger.Warn(ctx, "failed to record dropped job", zap.Error(perr))
	}
}

// heartbeat resets the server's ack timer while a job runs.
func (w *Worker) heartbeat(ctx context.Context, msg queue.Message) (stop func()) {
	if w.cfg.Heartbeat <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(w.cfg.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := msg.InProgress(ctx); err != nil {
					w.logger.Warn(ctx, "heartbeat failed", zap.Error(err))
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}
