package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/docmind/internal/config"
	"github.com/fyrsmithlabs/docmind/internal/logging"
	"github.com/fyrsmithlabs/docmind/internal/qdrant"
)

// NewStore builds the backend named by cfg.VectorStore.Provider:
//   - "chromem" (default): embedded store under cfg.Chromem.Path
//   - "qdrant": external Qdrant at cfg.Qdrant.Host:Port
func NewStore(cfg *config.Config, logger *logging.Logger) (Store, error) {
	switch cfg.VectorStore.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfig{
			Path:     cfg.Chromem.Path,
			Compress: cfg.Chromem.Compress,
		}, logger)

	case "qdrant":
		client, err := qdrant.NewGRPCClient(&qdrant.ClientConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			UseTLS:         cfg.Qdrant.UseTLS,
			APIKey:         cfg.Qdrant.APIKey.Value(),
			RequestTimeout: cfg.Qdrant.RequestTimeout.Duration(),
			RetryAttempts:  cfg.Qdrant.RetryAttempts,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		return NewQdrantStore(client, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: chromem, qdrant)",
			ErrInvalidConfig, cfg.VectorStore.Provider)
	}
}
