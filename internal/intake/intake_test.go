package intake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docmind/internal/config"
	"github.com/fyrsmithlabs/docmind/internal/queue"
	"github.com/fyrsmithlabs/docmind/internal/store"
)

type recordingPublisher struct {
	mu   sync.Mutex
	envs []queue.Envelope
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, env queue.Envelope) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.envs = append(p.envs, env)
	return uint64(len(p.envs)), nil
}

func (p *recordingPublisher) published() []queue.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.Envelope(nil), p.envs...)
}

type fixture struct {
	dataDir string
	store   *store.Store
	pub     *recordingPublisher
	sub     *Submitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(context.Background(), config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      config.Secret(filepath.Join(t.TempDir(), "docmind.db")),
		LogLevel: "silent",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{dataDir: t.TempDir(), store: s, pub: &recordingPublisher{}}
	f.sub = NewSubmitter(s, f.pub, f.dataDir, nil)
	return f
}

func (f *fixture) group(t *testing.T, name string) string {
	t.Helper()
	_, err := f.store.CreateGroup(context.Background(), name)
	require.NoError(t, err)
	dir := filepath.Join(f.dataDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func TestSubmitter_Submit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := f.group(t, "finance-q1")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.txt"), []byte("Revenue grew."), 0o644))

	first, err := f.sub.Submit(ctx, "finance-q1", "report.txt")
	require.NoError(t, err)
	assert.True(t, first.NewDocument)
	assert.Equal(t, uint64(1), first.Sequence)
	assert.Equal(t, filepath.Join(dir, "report.txt"), first.Path)

	again, err := f.sub.Submit(ctx, "finance-q1", "report.txt")
	require.NoError(t, err)
	assert.False(t, again.NewDocument, "resubmission reuses the document row")

	docs, err := f.store.Documents(ctx, "finance-q1")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Len(t, f.pub.published(), 2)
}

func TestSubmitter_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := f.group(t, "finance-q1")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	tests := []struct {
		name   string
		group  string
		file   string
		target error
	}{
		{name: "traversal", group: "finance-q1", file: "../x.txt", target: queue.ErrInvalidEnvelope},
		{name: "empty group", group: "", file: "a.txt", target: queue.ErrInvalidEnvelope},
		{name: "missing file", group: "finance-q1", file: "absent.txt", target: ErrFileNotFound},
		{name: "directory", group: "finance-q1", file: "nested", target: ErrFileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.sub.Submit(ctx, tt.group, tt.file)
			assert.ErrorIs(t, err, tt.target)
		})
	}
	assert.Empty(t, f.pub.published())
}

func TestSubmitter_UnknownGroup(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(f.dataDir, "ghost")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

	_, err := f.sub.Submit(context.Background(), "ghost", "a.txt")
	assert.ErrorIs(t, err, store.ErrGroupNotFound)
	assert.Empty(t, f.pub.published())
}

func TestSubmitter_PublishFailure(t *testing.T) {
	f := newFixture(t)
	dir := f.group(t, "hr")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
	f.pub.err = errors.New("nats down")

	_, err := f.sub.Submit(context.Background(), "hr", "a.txt")
	assert.ErrorContains(t, err, "nats down")
}

func startWatcher(t *testing.T, f *fixture, opts ...WatcherOption) *Watcher {
	t.Helper()
	w, err := NewWatcher(f.sub, append([]WatcherOption{WithDebounce(50 * time.Millisecond)}, opts...)...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-w.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher not ready")
	}
	return w
}

func TestWatcher_SubmitsSettledFiles(t *testing.T) {
	f := newFixture(t)
	dir := f.group(t, "finance-q1")
	require.NoError(t, os.WriteFile(filepath.Join(f.dataDir, IgnoreFile), []byte("draft-*\n"), 0o644))
	startWatcher(t, f)

	path := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("part one"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("part one and two"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".report.txt.swp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archive.zip"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "draft-plan.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return len(f.pub.published()) == 1 }, 5*time.Second, 20*time.Millisecond)

	// Give any stray timers a chance to fire before asserting the count.
	time.Sleep(200 * time.Millisecond)
	published := f.pub.published()
	require.Len(t, published, 1)
	assert.Equal(t, queue.Envelope{ProjectGroup: "finance-q1", FileName: "report.txt"}, published[0])
}

func TestWatcher_PicksUpNewGroups(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	var subs []*Submission
	w := startWatcher(t, f, OnSubmit(func(s *Submission) {
		mu.Lock()
		defer mu.Unlock()
		subs = append(subs, s)
	}))

	dir := f.group(t, "hr")
	require.Eventually(t, func() bool { return w.isWatched(dir) }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "handbook.md"), []byte("# Leave"), 0o644))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(subs) == 1
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "hr", subs[0].Envelope.ProjectGroup)
	assert.True(t, subs[0].NewDocument)
}

func TestWatcher_IgnoresUnknownDirectories(t *testing.T) {
	f := newFixture(t)
	w := startWatcher(t, f)

	dir := filepath.Join(f.dataDir, "stray")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	time.Sleep(200 * time.Millisecond)
	assert.False(t, w.isWatched(dir))
}
