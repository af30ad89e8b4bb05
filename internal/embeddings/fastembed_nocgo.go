//go:build !cgo

package embeddings

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/supportd/internal/config"
)

// ErrFastEmbedUnavailable is returned when the local embedding provider is
// requested from a binary built without CGO.
var ErrFastEmbedUnavailable = errors.New("fastembed: not available (binary built without CGO, use the tei provider)")

// FastEmbedProvider is a stub for non-CGO builds.
type FastEmbedProvider struct{}

// NewFastEmbedProvider returns an error when CGO is not available.
func NewFastEmbedProvider(_ config.EmbeddingConfig) (*FastEmbedProvider, error) {
	return nil, ErrFastEmbedUnavailable
}

// Embed returns an error when CGO is not available.
func (p *FastEmbedProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

// Close is a no-op for the stub.
func (p *FastEmbedProvider) Close() error {
	return nil
}
