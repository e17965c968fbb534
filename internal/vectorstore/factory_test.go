package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docmind/internal/config"
)

func TestNewStore(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Provider = "chromem"
	cfg.Chromem.Path = t.TempDir()

	s, err := NewStore(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &ChromemStore{}, s)

	cfg.VectorStore.Provider = "pinecone"
	_, err = NewStore(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
