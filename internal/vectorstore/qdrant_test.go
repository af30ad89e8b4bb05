package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/supportd/internal/config"
)

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "support_knowledge", false},
		{"valid with numbers", "knowledge_v2", false},
		{"empty", "", true},
		{"uppercase", "Support", true},
		{"hyphen", "support-knowledge", true},
		{"path traversal", "../etc", true},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollectionName(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestIsTransientError(t *testing.T) {
	assert.False(t, IsTransientError(nil))
	assert.False(t, IsTransientError(errors.New("plain error")))

	assert.True(t, IsTransientError(status.Error(codes.Unavailable, "down")))
	assert.True(t, IsTransientError(status.Error(codes.DeadlineExceeded, "slow")))
	assert.True(t, IsTransientError(status.Error(codes.Aborted, "conflict")))
	assert.True(t, IsTransientError(status.Error(codes.ResourceExhausted, "throttled")))

	assert.False(t, IsTransientError(status.Error(codes.InvalidArgument, "bad request")))
	assert.False(t, IsTransientError(status.Error(codes.NotFound, "missing")))
	assert.False(t, IsTransientError(status.Error(codes.PermissionDenied, "denied")))
}

func TestNewQdrantStoreConfigValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  config.VectorStoreConfig
	}{
		{"missing host", config.VectorStoreConfig{Port: 6334, Collection: "kb", VectorSize: 384}},
		{"invalid port", config.VectorStoreConfig{Host: "localhost", Port: 0, Collection: "kb", VectorSize: 384}},
		{"port too high", config.VectorStoreConfig{Host: "localhost", Port: 70000, Collection: "kb", VectorSize: 384}},
		{"missing vector size", config.VectorStoreConfig{Host: "localhost", Port: 6334, Collection: "kb"}},
		{"bad collection name", config.VectorStoreConfig{Host: "localhost", Port: 6334, Collection: "Bad Name", VectorSize: 384}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewQdrantStore(ctx, tt.cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
