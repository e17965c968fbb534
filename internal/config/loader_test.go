package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the docmind config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OPENAI_API_KEY", "")

	dir := filepath.Join(home, ".config", "docmind")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
data:
  dir: /srv/docmind
nats:
  url: nats://queue:4222
  ack_wait: 90s
database:
  driver: postgres
  dsn: postgres://docmind:pw@db/docmind
vectorstore:
  provider: qdrant
qdrant:
  host: qdrant
llm:
  model: gpt-4o-mini
  api_key: sk-test
pipeline:
  chunk_size: 800
  chunk_overlap: 100
  summary_timeout: 45s
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/docmind", cfg.Data.Dir)
	assert.Equal(t, "nats://queue:4222", cfg.NATS.URL)
	assert.Equal(t, 90*time.Second, cfg.NATS.AckWait.Duration())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://docmind:pw@db/docmind", cfg.Database.DSN.Value())
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey.Value())
	assert.Equal(t, 800, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 100, cfg.Pipeline.ChunkOverlap)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.SummaryTimeout.Duration())
	assert.Equal(t, 3*time.Minute, cfg.Pipeline.MindMapTimeout.Duration())
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
nats:
  url: nats://from-yaml:4222
server:
  port: 9090
`, 0600)

	t.Setenv("DOCMIND_NATS_URL", "nats://from-env:4222")
	t.Setenv("DOCMIND_SERVER_PORT", "7777")
	t.Setenv("DOCMIND_PIPELINE_JOB_TIMEOUT", "20m")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://from-env:4222", cfg.NATS.URL)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, 20*time.Minute, cfg.Pipeline.JobTimeout.Duration())
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	dir := setupTestHome(t)

	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "documents.ingest", cfg.NATS.Subject)
	assert.Equal(t, "DOCUMENTS", cfg.NATS.Stream)
	assert.Equal(t, "docmind-worker", cfg.NATS.Durable)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, filepath.Join("./data", "docmind.db"), cfg.Database.DSN.Value())
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, 1000, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 200, cfg.Pipeline.ChunkOverlap)
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.JobTimeout.Duration())
}

func TestLoadWithFile_OpenAIKeyFallback(t *testing.T) {
	dir := setupTestHome(t)
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey.Value())
	assert.Equal(t, "sk-from-env", cfg.Embeddings.APIKey.Value())
}

func TestLoadWithFile_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
		perm    os.FileMode
		wantErr string
	}{
		{
			name:    "world readable",
			content: "server:\n  port: 9090\n",
			perm:    0644,
			wantErr: "insecure config file permissions",
		},
		{
			name:    "invalid yaml",
			content: "server:\n  port: [\n",
			perm:    0600,
			wantErr: "failed to load config file",
		},
		{
			name:    "overlap not below size",
			content: "pipeline:\n  chunk_size: 100\n  chunk_overlap: 100\n",
			perm:    0600,
			wantErr: "chunk_overlap",
		},
		{
			name:    "unknown vector store",
			content: "vectorstore:\n  provider: pinecone\n",
			perm:    0600,
			wantErr: "vectorstore.provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupTestHome(t)
			path := writeConfig(t, dir, tt.content, tt.perm)

			_, err := LoadWithFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateConfigPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"user config dir", filepath.Join(home, ".config", "docmind", "config.yaml"), false},
		{"system config dir", "/etc/docmind/config.yaml", false},
		{"sibling prefix", "/etc/docmind-evil/config.yaml", true},
		{"traversal", filepath.Join(home, ".config", "docmind", "..", "..", "etc", "passwd"), true},
		{"tmp", "/tmp/config.yaml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfigPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "nats.ack_wait", envKey("DOCMIND_NATS_ACK_WAIT"))
	assert.Equal(t, "pipeline.chunk_size", envKey("DOCMIND_PIPELINE_CHUNK_SIZE"))
	assert.Equal(t, "data.dir", envKey("DOCMIND_DATA_DIR"))
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "sk-live-123", s.Value())

	b, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(b))

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
