// Package llm talks to an OpenAI-compatible chat model for document
// summaries and structured tool calls.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/docmind/internal/logging"
)

var (
	// ErrEmptyResponse is returned when the model produces no usable text.
	ErrEmptyResponse = errors.New("model returned an empty response")

	// ErrNoToolCall is returned when a forced tool call is missing from the
	// response.
	ErrNoToolCall = errors.New("model response contains no tool call")

	// ErrInvalidConfig indicates invalid client options.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Options tunes generation.
type Options struct {
	// Model labels logs; the langchaingo model already knows its name.
	Model       string
	Temperature float64
	// MaxTokens caps the completion when positive.
	MaxTokens int
	// RequestsPerMinute throttles calls when positive.
	RequestsPerMinute int
}

// Client wraps a langchaingo model. Calls are never retried; a failure is
// reported to the caller as is.
type Client struct {
	model   llms.Model
	opts    Options
	limiter *rate.Limiter
	logger  *logging.Logger
}

// New creates a Client over an injected model.
func New(model llms.Model, opts Options, logger *logging.Logger) (*Client, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if opts.Temperature < 0 || opts.Temperature > 2 {
		return nil, fmt.Errorf("%w: temperature %v out of range [0,2]", ErrInvalidConfig, opts.Temperature)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	return &Client{model: model, opts: opts, limiter: limiter, logger: logger}, nil
}

func (c *Client) callOptions(extra ...llms.CallOption) []llms.CallOption {
	opts := []llms.CallOption{llms.WithTemperature(c.opts.Temperature)}
	if c.opts.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.opts.MaxTokens))
	}
	return append(opts, extra...)
}

func (c *Client) generate(ctx context.Context, system, user string, opts ...llms.CallOption) (*llms.ContentChoice, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, messages, c.callOptions(opts...)...)
	if err != nil {
		c.logger.Warn(ctx, "llm call failed",
			zap.String("model", c.opts.Model),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("generating content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, ErrEmptyResponse
	}

	c.logger.Debug(ctx, "llm call completed",
		zap.String("model", c.opts.Model),
		zap.Duration("duration", time.Since(start)),
		zap.String("stop_reason", resp.Choices[0].StopReason),
	)
	return resp.Choices[0], nil
}

// Complete returns the trimmed text answer to a system and user message pair.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	choice, err := c.generate(ctx, system, user)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(choice.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// CallTool forces the model to call fn and returns the raw JSON arguments.
func (c *Client) CallTool(ctx context.Context, system, user string, fn llms.FunctionDefinition) (string, error) {
	choice, err := c.generate(ctx, system, user,
		llms.WithTools([]llms.Tool{{Type: "function", Function: &fn}}),
		llms.WithToolChoice(llms.ToolChoice{
			Type:     "function",
			Function: &llms.FunctionReference{Name: fn.Name},
		}),
	)
	if err != nil {
		return "", err
	}

	for _, call := range choice.ToolCalls {
		if call.FunctionCall != nil && call.FunctionCall.Name == fn.Name {
			return call.FunctionCall.Arguments, nil
		}
	}
	if choice.FuncCall != nil && choice.FuncCall.Name == fn.Name {
		return choice.FuncCall.Arguments, nil
	}
	return "", fmt.Errorf("%w: expected %s", ErrNoToolCall, fn.Name)
}
