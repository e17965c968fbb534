package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Config names the JetStream resources used for ingestion.
type Config struct {
	Stream         string
	Subject        string
	Durable        string
	AckWait        time.Duration
	DroppedStream  string
	DroppedSubject string
	Storage        nats.StorageType
	DroppedMaxAge  time.Duration
}

// ErrClosed is returned by Next after the subscription is closed.
var ErrClosed = errors.New("subscription closed")

// JetStream publishes and consumes ingestion jobs.
type JetStream struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	cfg Config
}

// NewJetStream creates a JetStream queue over an established connection.
func NewJetStream(nc *nats.Conn, cfg Config) (*JetStream, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if cfg.Stream == "" || cfg.Subject == "" || cfg.Durable == "" {
		return nil, errors.New("stream, subject and durable are required")
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 2 * time.Minute
	}
	if cfg.DroppedMaxAge <= 0 {
		cfg.DroppedMaxAge = 30 * 24 * time.Hour
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return &JetStream{nc: nc, js: js, cfg: cfg}, nil
}

// EnsureStreams creates the ingest stream, its durable consumer, and the
// dropped-jobs stream when they do not exist yet.
func (q *JetStream) EnsureStreams(ctx context.Context) error {
	if err := q.ensureStream(ctx, &nats.StreamConfig{
		Name:      q.cfg.Stream,
		Subjects:  []string{q.cfg.Subject},
		Retention: nats.WorkQueuePolicy,
		Storage:   q.cfg.Storage,
	}); err != nil {
		return err
	}

	if q.cfg.DroppedStream != "" && q.cfg.DroppedSubject != "" {
		if err := q.ensureStream(ctx, &nats.StreamConfig{
			Name:      q.cfg.DroppedStream,
			Subjects:  []string{q.cfg.DroppedSubject + ".>"},
			Retention: nats.LimitsPolicy,
			Storage:   q.cfg.Storage,
			MaxAge:    q.cfg.DroppedMaxAge,
		}); err != nil {
			return err
		}
	}

	_, err := q.js.ConsumerInfo(q.cfg.Stream, q.cfg.Durable, nats.Context(ctx))
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrConsumerNotFound) {
		return fmt.Errorf("failed to look up consumer %s: %w", q.cfg.Durable, err)
	}

	// One delivery outstanding at a time: the worker never sees a second job
	// before it acks or terminates the first.
	_, err = q.js.AddConsumer(q.cfg.Stream, &nats.ConsumerConfig{
		Durable:        q.cfg.Durable,
		DeliverSubject: q.deliverSubject(),
		DeliverPolicy:  nats.DeliverAllPolicy,
		AckPolicy:      nats.AckExplicitPolicy,
		AckWait:        q.cfg.AckWait,
		MaxAckPending:  1,
		MaxDeliver:     -1,
		FilterSubject:  q.cfg.Subject,
	}, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", q.cfg.Durable, err)
	}
	return nil
}

func (q *JetStream) ensureStream(ctx context.Context, cfg *nats.StreamConfig) error {
	_, err := q.js.StreamInfo(cfg.Name, nats.Context(ctx))
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", cfg.Name, err)
	}
	if _, err := q.js.AddStream(cfg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
	}
	return nil
}

func (q *JetStream) deliverSubject() string {
	return "_docmind.deliver." + q.cfg.Durable
}

// Publish enqueues a job and waits for the stream to persist it.
func (q *JetStream) Publish(ctx context.Context, env Envelope) (uint64, error) {
	data, err := env.Encode()
	if err != nil {
		return 0, err
	}
	ack, err := q.js.Publish(q.cfg.Subject, data, nats.Context(ctx))
	if err != nil {
		return 0, fmt.Errorf("failed to publish job %s: %w", env, err)
	}
	return ack.Sequence, nil
}

// PublishDropped records a terminated job on documents.dropped.<group>.
func (q *JetStream) PublishDropped(ctx context.Context, job DroppedJob) error {
	if q.cfg.DroppedSubject == "" {
		return nil
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal dropped job: %w", err)
	}
	subject := q.cfg.DroppedSubject + "." + subjectToken(job.Envelope.ProjectGroup)
	if _, err := q.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish dropped job: %w", err)
	}
	return nil
}

// Dropped returns up to limit dropped-job records, newest first. An empty
// group matches every group.
func (q *JetStream) Dropped(ctx context.Context, group string, limit int) ([]StoredDropped, error) {
	info, err := q.js.StreamInfo(q.cfg.DroppedStream, nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to read stream %s: %w", q.cfg.DroppedStream, err)
	}

	var out []StoredDropped
	for seq := info.State.LastSeq; seq >= info.State.FirstSeq && seq > 0; seq-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		rec, err := q.DroppedBySeq(ctx, seq)
		if errors.Is(err, nats.ErrMsgNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if group != "" && rec.Envelope.ProjectGroup != group {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// DroppedBySeq loads one dropped-job record.
func (q *JetStream) DroppedBySeq(ctx context.Context, seq uint64) (*StoredDropped, error) {
	msg, err := q.js.GetMsg(q.cfg.DroppedStream, seq, nats.Context(ctx))
	if err != nil {
		return nil, err
	}
	rec := &StoredDropped{Sequence: msg.Sequence}
	if err := json.Unmarshal(msg.Data, &rec.DroppedJob); err != nil {
		return nil, fmt.Errorf("failed to decode dropped job %d: %w", seq, err)
	}
	return rec, nil
}

// Subscribe binds to the durable consumer created by EnsureStreams.
func (q *JetStream) Subscribe() (*Subscription, error) {
	ch := make(chan *nats.Msg, 1)
	sub, err := q.js.ChanSubscribe(q.cfg.Subject, ch,
		nats.Bind(q.cfg.Stream, q.cfg.Durable),
		nats.ManualAck(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", q.cfg.Durable, err)
	}
	return &Subscription{sub: sub, ch: ch, done: make(chan struct{})}, nil
}

// Subscription yields deliveries from the durable consumer, one at a time.
type Subscription struct {
	sub  *nats.Subscription
	ch   chan *nats.Msg
	done chan struct{}
}

// Next blocks until a delivery arrives, ctx is done, or the subscription is
// closed.
func (s *Subscription) Next(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	case msg := <-s.ch:
		return newDelivery(msg), nil
	}
}

// Close stops delivery. The durable consumer is kept on the server; any
// unacknowledged message is redelivered after the ack wait.
func (s *Subscription) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	return s.sub.Unsubscribe()
}
