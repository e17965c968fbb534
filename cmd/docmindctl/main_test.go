package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docmind/internal/config"
	"github.com/fyrsmithlabs/docmind/internal/logging"
	"github.com/fyrsmithlabs/docmind/internal/mindmap"
	"github.com/fyrsmithlabs/docmind/internal/queue"
)

func startNATS(t *testing.T) string {
	t.Helper()
	server, err := natsserver.NewServer(&natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)
	go server.Start()
	require.True(t, server.ReadyForConnections(5*time.Second))
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server.ClientURL()
}

// newTestApp returns an app whose configuration points at temp storage.
// natsURL may be empty for commands that never touch the queue.
func newTestApp(t *testing.T, natsURL string) *app {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Data.Dir = filepath.Join(dir, "data")
	cfg.Database.DSN = config.Secret(filepath.Join(dir, "docmind.db"))
	cfg.Chromem.Path = filepath.Join(dir, "vectors")
	if natsURL != "" {
		cfg.NATS.URL = natsURL
	}
	require.NoError(t, os.MkdirAll(cfg.Data.Dir, 0o755))

	a := &app{cfg: cfg, logger: logging.NewNop()}
	t.Cleanup(a.close)
	return a
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(a)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGroupCommands(t *testing.T) {
	a := newTestApp(t, "")

	out, err := execute(t, a, "group", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no groups")

	out, err = execute(t, a, "group", "create", "finance-q1")
	require.NoError(t, err)
	assert.Contains(t, out, "created group finance-q1")
	assert.DirExists(t, filepath.Join(a.cfg.Data.Dir, "finance-q1"))

	_, err = execute(t, a, "group", "create", "bad/name")
	assert.Error(t, err)

	out, err = execute(t, a, "group", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "finance-q1")

	_, err = execute(t, a, "group", "delete", "finance-q1")
	assert.ErrorContains(t, err, "--yes")

	out, err = execute(t, a, "group", "delete", "finance-q1", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted group finance-q1")
	assert.NoDirExists(t, filepath.Join(a.cfg.Data.Dir, "finance-q1"))
}

func TestEnqueueAndReplay(t *testing.T) {
	a := newTestApp(t, startNATS(t))
	ctx := context.Background()

	_, err := execute(t, a, "group", "create", "finance-q1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(a.cfg.Data.Dir, "finance-q1", "report.txt"), []byte("Revenue grew."), 0o644))

	out, err := execute(t, a, "enqueue", "finance-q1", "report.txt")
	require.NoError(t, err)
	assert.Equal(t, "queued finance-q1/report.txt (sequence 1)\n", out)

	_, err = execute(t, a, "enqueue", "finance-q1", "missing.txt")
	assert.Error(t, err)

	out, err = execute(t, a, "dropped", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no dropped jobs")

	q, err := a.jobs(ctx)
	require.NoError(t, err)
	require.NoError(t, q.PublishDropped(ctx, queue.DroppedJob{
		Envelope:  queue.Envelope{ProjectGroup: "finance-q1", FileName: "report.txt"},
		Stage:     "summary",
		Kind:      "synthesis",
		Error:     "model unavailable",
		DroppedAt: time.Now(),
	}))
	require.NoError(t, q.PublishDropped(ctx, queue.DroppedJob{
		Raw:       "not json",
		Stage:     "validate",
		Kind:      "invalid_job",
		Error:     "invalid job envelope",
		DroppedAt: time.Now(),
	}))

	out, err = execute(t, a, "dropped", "list", "--group", "finance-q1")
	require.NoError(t, err)
	assert.Contains(t, out, "report.txt")
	assert.Contains(t, out, "synthesis")
	assert.NotContains(t, out, "invalid_job")

	out, err = execute(t, a, "dropped", "replay", "1")
	require.NoError(t, err)
	assert.Equal(t, "replayed finance-q1/report.txt (sequence 2)\n", out)

	_, err = execute(t, a, "dropped", "replay", "2")
	assert.ErrorIs(t, err, ErrNotReplayable)

	_, err = execute(t, a, "dropped", "replay", "abc")
	assert.ErrorContains(t, err, "invalid sequence")
}

func TestMindMapShow(t *testing.T) {
	a := newTestApp(t, "")
	ctx := context.Background()

	_, err := execute(t, a, "group", "create", "finance-q1")
	require.NoError(t, err)

	out, err := execute(t, a, "mindmap", "show", "finance-q1")
	require.NoError(t, err)
	assert.Contains(t, out, "has no mind-map yet")

	meta, err := a.metadata(ctx)
	require.NoError(t, err)
	require.NoError(t, meta.CreateMindMap(ctx, "finance-q1", []byte(
		`{"topic":"Finance Q1","children":[{"topic":"Revenue","children":[{"topic":"Growth"}]},{"topic":"Costs"}]}`)))

	out, err = execute(t, a, "mindmap", "show", "finance-q1")
	require.NoError(t, err)
	assert.Equal(t, "Finance Q1\n├── Revenue\n│   └── Growth\n└── Costs\n", out)

	out, err = execute(t, a, "mindmap", "show", "finance-q1", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"topic": "Growth"`)

	_, err = execute(t, a, "mindmap", "show", "finance-q1", "--format", "yaml")
	assert.ErrorContains(t, err, "unknown format")

	_, err = execute(t, a, "mindmap", "show", "ghost")
	assert.Error(t, err)
}

func TestSummariesCmd(t *testing.T) {
	a := newTestApp(t, "")
	ctx := context.Background()

	_, err := execute(t, a, "group", "create", "finance-q1")
	require.NoError(t, err)
	meta, err := a.metadata(ctx)
	require.NoError(t, err)

	out, err := execute(t, a, "summaries", "finance-q1")
	require.NoError(t, err)
	assert.Contains(t, out, "has no summaries")

	_, err = meta.InsertSummary(ctx, "finance-q1", "report.txt", "Revenue grew 12% on strong subscriptions.")
	require.NoError(t, err)
	_, err = meta.InsertSummary(ctx, "finance-q1", "costs.txt", "Costs were flat.")
	require.NoError(t, err)

	out, err = execute(t, a, "summaries", "finance-q1")
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "costs.txt"), strings.Index(out, "report.txt"), "newest first")

	out, err = execute(t, a, "summaries", "finance-q1", "--file", "report.txt", "--full")
	require.NoError(t, err)
	assert.Contains(t, out, "Revenue grew 12% on strong subscriptions.")
	assert.NotContains(t, out, "costs.txt")
}

func TestRenderTree_SingleNode(t *testing.T) {
	var buf bytes.Buffer
	renderTree(&buf, &mindmap.Node{Topic: "Solo"})
	assert.Equal(t, "Solo\n", buf.String())
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("  short  ", 10))
	assert.Equal(t, "first", excerpt("first\nsecond", 10))
	assert.Equal(t, "abcd…", excerpt("abcdefgh", 5))
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, &app{}, "version")
	require.NoError(t, err)
	assert.Equal(t, "docmindctl dev\n", out)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	dataDir := filepath.Join(dir, "uploads")
	require.NoError(t, os.WriteFile(envFile, []byte("DOCMIND_DATA_DIR="+dataDir+"\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("DOCMIND_DATA_DIR") })

	a := &app{envFile: envFile}
	require.NoError(t, a.load(true))
	assert.Equal(t, dataDir, a.cfg.Data.Dir)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), ".env")

	a := &app{envFile: missing}
	assert.NoError(t, a.load(false), "default .env is optional")

	a = &app{envFile: missing}
	assert.Error(t, a.load(true), "an explicit --env-file must exist")
}
