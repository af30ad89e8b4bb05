package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "support.messages", cfg.Queue.Subject)
	assert.Equal(t, "support.dlq", cfg.Queue.DLQSubject)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, "tei", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, "qdrant", cfg.VectorStore.Mode)
	assert.Equal(t, 384, cfg.VectorStore.VectorSize)
	assert.Equal(t, 5, cfg.Generation.TopK)
	assert.Equal(t, "knowledge-ingest", cfg.Workflow.TaskQueue)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SUPPORTD_SERVER_PORT", "8123")
	t.Setenv("SUPPORTD_QUEUE_MAX_RETRIES", "5")
	t.Setenv("SUPPORTD_VECTORSTORE_COLLECTION", "acme_kb")
	t.Setenv("SUPPORTD_EMBEDDING_RETRY_DELAY", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Queue.MaxRetries)
	assert.Equal(t, "acme_kb", cfg.VectorStore.Collection)
	assert.Equal(t, 250*time.Millisecond, cfg.Embedding.RetryDelay.Duration())
}

func TestLoadWithFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 7070
queue:
  subject: acme.messages
  dlq_subject: acme.dlq
generation:
  top_k: 3
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "acme.messages", cfg.Queue.Subject)
	assert.Equal(t, 3, cfg.Generation.TopK)
	// Untouched sections keep defaults.
	assert.Equal(t, 384, cfg.Embedding.Dimension)
}

func TestLoadWithFileMissing(t *testing.T) {
	_, err := LoadWithFile("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7070\n"), 0o600))
	t.Setenv("SUPPORTD_SERVER_PORT", "6060")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "dimension mismatch",
			mutate:  func(c *Config) { c.VectorStore.VectorSize = 768 },
			wantErr: "does not match embedding dimension",
		},
		{
			name:    "subject collision",
			mutate:  func(c *Config) { c.Queue.DLQSubject = c.Queue.Subject },
			wantErr: "must differ",
		},
		{
			name:    "invalid embedding provider",
			mutate:  func(c *Config) { c.Embedding.Provider = "openai" },
			wantErr: "invalid embedding provider",
		},
		{
			name:    "invalid vector store mode",
			mutate:  func(c *Config) { c.VectorStore.Mode = "pinecone" },
			wantErr: "invalid vector store mode",
		},
		{
			name:    "zero top_k",
			mutate:  func(c *Config) { c.Generation.TopK = -1 },
			wantErr: "top_k",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			applyDefaults(cfg)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("super-secret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "super-secret", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `"[REDACTED]"`, string(data))

	var empty Secret
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())
}

func TestDurationUnmarshal(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	require.Error(t, d.UnmarshalText([]byte("-5s")))
	require.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}
