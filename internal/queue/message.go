package queue

import (
	"context"

	"github.com/nats-io/nats.go"
)

// Message is one delivered job and its acknowledgment handle.
type Message interface {
	// Envelope decodes the payload. The error wraps ErrInvalidEnvelope.
	Envelope() (Envelope, error)
	Data() []byte
	// Attempt is the 1-based delivery count.
	Attempt() uint64
	// Ack removes the job from the queue permanently.
	Ack(ctx context.Context) error
	// Term negatively acknowledges the job without redelivery.
	Term(ctx context.Context) error
	// InProgress resets the server's ack timer for a long-running job.
	InProgress(ctx context.Context) error
}

type delivery struct {
	msg *nats.Msg
}

func newDelivery(msg *nats.Msg) *delivery {
	return &delivery{msg: msg}
}

func (d *delivery) Envelope() (Envelope, error) {
	return Decode(d.msg.Data)
}

func (d *delivery) Data() []byte {
	return d.msg.Data
}

func (d *delivery) Attempt() uint64 {
	meta, err := d.msg.Metadata()
	if err != nil {
		return 1
	}
	return meta.NumDelivered
}

// Ack waits for the server to confirm, so the next delivery is only
// requested after the acknowledgment is durable.
func (d *delivery) Ack(ctx context.Context) error {
	return d.msg.AckSync(nats.Context(ctx))
}

func (d *delivery) Term(ctx context.Context) error {
	return d.msg.Term(nats.Context(ctx))
}

func (d *delivery) InProgress(ctx context.Context) error {
	return d.msg.InProgress(nats.Context(ctx))
}
