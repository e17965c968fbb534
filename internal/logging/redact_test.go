package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/docmind/internal/config"
)

func encode(t *testing.T, enc zapcore.Encoder, msg string, fields ...zapcore.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(zapcore.Entry{Message: msg, Time: time.Unix(0, 0)}, fields)
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func newTestEncoder(t *testing.T) *RedactingEncoder {
	t.Helper()
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)
	return enc
}

func TestRedactingEncoder_SensitiveKeys(t *testing.T) {
	out := encode(t, newTestEncoder(t), "connecting",
		zap.String("api_key", "abc123"),
		zap.String("DSN", "host=db password=hunter2"),
		zap.String("group", "finance-q1"),
	)

	assert.NotContains(t, out, "abc123")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "finance-q1")
}

func TestRedactingEncoder_Patterns(t *testing.T) {
	out := encode(t, newTestEncoder(t), "calling with Bearer tok3n",
		zap.String("url", "postgres://docmind:hunter2@db:5432/docmind"),
		zap.Error(errors.New("openai: invalid key sk-abcdefghijklmnopqrstuvwxyz")),
	)

	assert.NotContains(t, out, "tok3n")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "sk-abcdefghijklmnopqrstuvwxyz")
	assert.Contains(t, out, "db:5432/docmind")
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	enc := newTestEncoder(t)
	child := enc.Clone()
	child.AddString("token", "t0ps3cret")

	out := encode(t, child, "child")
	assert.NotContains(t, out, "t0ps3cret")
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{})
	require.NoError(t, err)

	out := encode(t, enc, "plain", zap.String("api_key", "visible"))
	assert.Contains(t, out, "visible")
}

func TestNewRedactingEncoder_BadPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{"("}})
	require.Error(t, err)
}

func TestSecretField(t *testing.T) {
	f := Secret("llm_key", config.Secret("sk-12345"))
	assert.Equal(t, "[REDACTED:8]", f.String)
}
