package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const localToken = "docmind-local"

// OpenAIConfig configures an OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// NewOpenAI builds a langchaingo chat model.
func NewOpenAI(cfg OpenAIConfig) (llms.Model, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: chat model required", ErrInvalidConfig)
	}

	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	switch {
	case cfg.APIKey != "":
		opts = append(opts, openai.WithToken(cfg.APIKey))
	case cfg.BaseURL != "":
		// Self-hosted compatible servers ignore the key, the client still wants one.
		opts = append(opts, openai.WithToken(localToken))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat client: %w", err)
	}
	return model, nil
}
