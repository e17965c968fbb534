package qdrant

import (
	"context"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/docmind/internal/logging"
)

func TestClientConfig_ApplyDefaults(t *testing.T) {
	cfg := &ClientConfig{Host: "qdrant.internal", Port: 6335}
	cfg.ApplyDefaults()

	assert.Equal(t, "qdrant.internal", cfg.Host)
	assert.Equal(t, 6335, cfg.Port)
	assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, qdrant.Distance_Cosine, cfg.Distance)
}

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ClientConfig)
		wantErr string
	}{
		{name: "defaults", mutate: func(*ClientConfig) {}},
		{name: "empty host", mutate: func(c *ClientConfig) { c.Host = "" }, wantErr: "host is required"},
		{name: "port too large", mutate: func(c *ClientConfig) { c.Port = 70000 }, wantErr: "invalid port"},
		{name: "zero message size", mutate: func(c *ClientConfig) { c.MaxMessageSize = 0 }, wantErr: "max message size"},
		{name: "negative retries", mutate: func(c *ClientConfig) { c.RetryAttempts = -1 }, wantErr: "retry attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultClientConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), want: true},
		{name: "deadline exceeded", err: status.Error(codes.DeadlineExceeded, "slow"), want: true},
		{name: "aborted", err: status.Error(codes.Aborted, "aborted"), want: true},
		{name: "resource exhausted", err: status.Error(codes.ResourceExhausted, "busy"), want: true},
		{name: "not found", err: status.Error(codes.NotFound, "missing"), want: false},
		{name: "invalid argument", err: status.Error(codes.InvalidArgument, "bad"), want: false},
		{name: "plain error", err: assert.AnError, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransientError(tt.err))
		})
	}
}

func TestRetryOperation(t *testing.T) {
	newClient := func(attempts int) (*GRPCClient, *logging.TestLogger) {
		tl := logging.NewTestLogger()
		return &GRPCClient{
			config: &ClientConfig{RetryAttempts: attempts, RetryBackoff: time.Millisecond},
			logger: tl.Logger,
		}, tl
	}

	t.Run("recovers after transient error", func(t *testing.T) {
		client, tl := newClient(3)
		calls := 0
		err := client.retryOperation(context.Background(), func() error {
			calls++
			if calls == 1 {
				return status.Error(codes.Unavailable, "down")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		tl.AssertLogged(t, zapcore.DebugLevel, "retrying operation after transient error")
		tl.AssertLogged(t, zapcore.InfoLevel, "operation recovered after retries")
	})

	t.Run("exhausts retries", func(t *testing.T) {
		client, tl := newClient(2)
		calls := 0
		err := client.retryOperation(context.Background(), func() error {
			calls++
			return status.Error(codes.Unavailable, "down")
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, codes.Unavailable, status.Code(err))
		tl.AssertLogged(t, zapcore.WarnLevel, "operation failed after all retries exhausted")
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		client, tl := newClient(3)
		calls := 0
		err := client.retryOperation(context.Background(), func() error {
			calls++
			return status.Error(codes.InvalidArgument, "bad vector size")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.Empty(t, tl.All())
	})

	t.Run("cancelled while backing off", func(t *testing.T) {
		client, _ := newClient(3)
		client.config.RetryBackoff = time.Hour
		ctx, cancel := context.WithCancel(context.Background())
		err := client.retryOperation(ctx, func() error {
			cancel()
			return status.Error(codes.Unavailable, "down")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPayloadRoundTrip(t *testing.T) {
	in := Payload{Group: "finance-q1", FileName: "report.txt", ChunkIndex: 3, Text: "Revenue up 10%."}
	p := toPointStruct(&Point{
		ID:      "550e8400-e29b-41d4-a716-446655440000",
		Vector:  []float32{0.1, 0.2},
		Payload: in,
	})

	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", p.GetId().GetUuid())
	assert.Equal(t, int64(3), p.Payload[FieldChunkIndex].GetIntegerValue())
	assert.Equal(t, in, decodePayload(p.Payload))
}

func TestDecodePayload_MissingFields(t *testing.T) {
	got := decodePayload(map[string]*qdrant.Value{
		FieldFileName: qdrant.NewValueString("report.txt"),
	})
	assert.Equal(t, Payload{FileName: "report.txt"}, got)
	assert.Equal(t, Payload{}, decodePayload(nil))
}

func TestPointID(t *testing.T) {
	assert.Equal(t, "", pointID(nil))
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000",
		pointID(qdrant.NewIDUUID("550e8400-e29b-41d4-a716-446655440000")))
	assert.Equal(t, "12345", pointID(qdrant.NewIDNum(12345)))
}

func TestNewGRPCClient_RequiresLogger(t *testing.T) {
	_, err := NewGRPCClient(DefaultClientConfig(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger is required")
}
