// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Job identifies the ingestion job a log line belongs to.
type Job struct {
	ID    string
	Group string
	File  string
}

type jobCtxKey struct{}
type loggerCtxKey struct{}

// WithJob attaches job identity to ctx.
func WithJob(ctx context.Context, job Job) context.Context {
	return context.WithValue(ctx, jobCtxKey{}, job)
}

// JobFromContext returns the job stored by WithJob.
func JobFromContext(ctx context.Context) (Job, bool) {
	job, ok := ctx.Value(jobCtxKey{}).(Job)
	return job, ok
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 5)

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if job, ok := JobFromContext(ctx); ok {
		if job.ID != "" {
			fields = append(fields, zap.String("job.id", job.ID))
		}
		fields = append(fields,
			zap.String("job.group", job.Group),
			zap.String("job.file", job.File),
		)
	}

	return fields
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger stored by WithLogger, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
