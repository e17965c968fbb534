// Package bootstrap builds the clients shared by the docmind binaries from a
// loaded configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docmind/internal/config"
	"github.com/fyrsmithlabs/docmind/internal/logging"
	"github.com/fyrsmithlabs/docmind/internal/queue"
)

// ErrNATSDisconnected is reported by the NATS health check.
var ErrNATSDisconnected = errors.New("nats connection is not established")

// Logger builds the process logger from the logging section.
func Logger(cfg *config.Config) (*logging.Logger, error) {
	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	var provider otellog.LoggerProvider
	if cfg.Logging.OTEL {
		provider = global.GetLoggerProvider()
	}
	return logging.NewLogger(logCfg, provider)
}

// Queue is a NATS connection and the JetStream queue built on it.
type Queue struct {
	Conn *nats.Conn
	*queue.JetStream
}

// ConnectQueue connects to NATS and makes sure the streams and the durable
// consumer exist.
func ConnectQueue(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Queue, error) {
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("docmind"),
		nats.Timeout(cfg.NATS.ConnectTimeout.Duration()),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn(context.Background(), "nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(context.Background(), "nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	qcfg := queue.Config{
		Stream:         cfg.NATS.Stream,
		Subject:        cfg.NATS.Subject,
		Durable:        cfg.NATS.Durable,
		AckWait:        cfg.NATS.AckWait.Duration(),
		DroppedStream:  cfg.NATS.DroppedStream,
		DroppedSubject: cfg.NATS.DroppedSubject,
		Storage:        nats.FileStorage,
	}
	if cfg.NATS.DisableDropped {
		qcfg.DroppedSubject = ""
	}
	q, err := queue.NewJetStream(nc, qcfg)
	if err != nil {
		nc.Close()
		return nil, err
	}
	if err := q.EnsureStreams(ctx); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info(ctx, "connected to NATS",
		zap.String("url", cfg.NATS.URL),
		zap.String("stream", cfg.NATS.Stream),
		zap.String("durable", cfg.NATS.Durable),
	)
	return &Queue{Conn: nc, JetStream: q}, nil
}

// Health reports whether the connection is up.
func (q *Queue) Health(context.Context) error {
	if status := q.Conn.Status(); status != nats.CONNECTED {
		return fmt.Errorf("%w: %s", ErrNATSDisconnected, status)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (q *Queue) Close() {
	if err := q.Conn.Drain(); err != nil {
		q.Conn.Close()
	}
}
