package worker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/fyrsmithlabs/docmind/internal/pipeline"
	"github.com/fyrsmithlabs/docmind/internal/queue"
)

type fakeMessage struct {
	mu         sync.Mutex
	data       []byte
	attempt    uint64
	acks       int
	terms      int
	inProgress int
}

func newFakeMessage(env queue.Envelope) *fakeMessage {
	data, _ := json.Marshal(env)
	return &fakeMessage{data: data, attempt: 1}
}

func (m *fakeMessage) Envelope() (queue.Envelope, error) { return queue.Decode(m.data) }
func (m *fakeMessage) Data() []byte                      { return m.data }
func (m *fakeMessage) Attempt() uint64                   { return m.attempt }

func (m *fakeMessage) Ack(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acks++
	return nil
}

func (m *fakeMessage) Term(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terms++
	return nil
}

func (m *fakeMessage) InProgress(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inProgress++
	return nil
}

func (m *fakeMessage) counts() (acks, terms, inProgress int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acks, m.terms, m.inProgress
}

// sliceDeliveries hands out messages in order, then reports closed.
type sliceDeliveries struct {
	msgs []queue.Message
}

func (d *sliceDeliveries) Next(ctx context.Context) (queue.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.msgs) == 0 {
		return nil, queue.ErrClosed
	}
	m := d.msgs[0]
	d.msgs = d.msgs[1:]
	return m, nil
}

type processFunc func(ctx context.Context, env queue.Envelope) (*pipeline.Outcome, error)

func (f processFunc) Process(ctx context.Context, env queue.Envelope) (*pipeline.Outcome, error) {
	return f(ctx, env)
}

type recordingDropped struct {
	jobs []queue.DroppedJob
}

func (r *recordingDropped) PublishDropped(_ context.Context, job queue.DroppedJob) error {
	r.jobs = append(r.jobs, job)
	return nil
}
