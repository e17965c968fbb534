package embeddings

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const localToken = "docmind-local"

// OpenAIConfig configures an OpenAI-compatible embedding endpoint.
type OpenAIConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// NewOpenAI builds a langchaingo embedder for an OpenAI-compatible API.
func NewOpenAI(cfg OpenAIConfig) (embeddings.Embedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model required", ErrInvalidConfig)
	}

	opts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
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

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return emb, nil
}
