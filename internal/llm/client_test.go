package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Options{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&scriptedModel{}, Options{Temperature: 3}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSummarize(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{textResponse("  Revenue grew 12%.\n")}}
	c, err := New(model, Options{Temperature: 0.2, MaxTokens: 512}, nil)
	require.NoError(t, err)

	summary, err := c.Summarize(context.Background(), "Revenue grew 12% in Q1.")
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew 12%.", summary)

	require.Len(t, model.messages, 1)
	msgs := model.messages[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	human := msgs[1].Parts[0].(llms.TextContent).Text
	assert.Contains(t, human, "Revenue grew 12% in Q1.")

	assert.Equal(t, 0.2, model.options[0].Temperature)
	assert.Equal(t, 512, model.options[0].MaxTokens)
}

func TestSummarize_Failures(t *testing.T) {
	tests := []struct {
		name    string
		model   *scriptedModel
		wantErr error
	}{
		{
			name:    "empty text",
			model:   &scriptedModel{responses: []*llms.ContentResponse{textResponse("   ")}},
			wantErr: ErrEmptyResponse,
		},
		{
			name:    "no choices",
			model:   &scriptedModel{responses: []*llms.ContentResponse{{}}},
			wantErr: ErrEmptyResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.model, Options{}, nil)
			require.NoError(t, err)
			_, err = c.Summarize(context.Background(), "doc")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("provider error is not retried", func(t *testing.T) {
		model := &scriptedModel{err: errors.New("503 service unavailable")}
		c, err := New(model, Options{}, nil)
		require.NoError(t, err)
		_, err = c.Summarize(context.Background(), "doc")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
		assert.Len(t, model.messages, 1)
	})
}

func TestCallTool(t *testing.T) {
	fn := llms.FunctionDefinition{Name: "create_mindmap", Description: "Creates a mindmap."}

	t.Run("returns arguments", func(t *testing.T) {
		model := &scriptedModel{responses: []*llms.ContentResponse{
			toolResponse("create_mindmap", `{"mindmap":{"topic":"Q1"}}`),
		}}
		c, err := New(model, Options{}, nil)
		require.NoError(t, err)

		args, err := c.CallTool(context.Background(), "sys", "user", fn)
		require.NoError(t, err)
		assert.JSONEq(t, `{"mindmap":{"topic":"Q1"}}`, args)

		opts := model.options[0]
		require.Len(t, opts.Tools, 1)
		assert.Equal(t, "create_mindmap", opts.Tools[0].Function.Name)
		choice, ok := opts.ToolChoice.(llms.ToolChoice)
		require.True(t, ok)
		assert.Equal(t, "create_mindmap", choice.Function.Name)
	})

	t.Run("text instead of tool call", func(t *testing.T) {
		model := &scriptedModel{responses: []*llms.ContentResponse{textResponse("here is a mindmap")}}
		c, err := New(model, Options{}, nil)
		require.NoError(t, err)

		_, err = c.CallTool(context.Background(), "sys", "user", fn)
		assert.ErrorIs(t, err, ErrNoToolCall)
	})

	t.Run("other tool", func(t *testing.T) {
		model := &scriptedModel{responses: []*llms.ContentResponse{toolResponse("search", `{}`)}}
		c, err := New(model, Options{}, nil)
		require.NoError(t, err)

		_, err = c.CallTool(context.Background(), "sys", "user", fn)
		assert.ErrorIs(t, err, ErrNoToolCall)
	})
}

func TestRateLimit(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{textResponse("a"), textResponse("b")}}
	c, err := New(model, Options{RequestsPerMinute: 1}, nil)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "sys", "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Complete(ctx, "sys", "second")
	require.Error(t, err, "second call must wait a minute for its token")
	assert.Len(t, model.messages, 1)
}

func TestNewOpenAI(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	model, err := NewOpenAI(OpenAIConfig{BaseURL: "http://localhost:11434/v1", Model: "llama3.1"})
	require.NoError(t, err)
	assert.NotNil(t, model)
}
