//go:build cgo

package embeddings

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/supportd/internal/config"
)

func TestNewFastEmbedProviderUnsupportedModel(t *testing.T) {
	_, err := NewFastEmbedProvider(config.EmbeddingConfig{Model: "made-up-model"})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewFastEmbedProviderDimensionMismatch(t *testing.T) {
	// bge-base produces 768-dimensional vectors; the mismatch is caught
	// before any model download.
	_, err := NewFastEmbedProvider(config.EmbeddingConfig{
		Model:     "BAAI/bge-base-en-v1.5",
		Dimension: 384,
	})
	require.ErrorIs(t, err, ErrInvalidConfig)
}
