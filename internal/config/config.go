// Package config provides configuration loading for supportd.
//
// Configuration is loaded from an optional YAML file and overridden by
// environment variables. All sections have working defaults so the daemon
// starts without any configuration in a local deployment.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete supportd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Queue       QueueConfig       `koanf:"queue"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Generation  GenerationConfig  `koanf:"generation"`
	Database    DatabaseConfig    `koanf:"database"`
	Workflow    WorkflowConfig    `koanf:"workflow"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is json or console.
	Format string `koanf:"format"`
}

// QueueConfig holds message queue transport configuration.
type QueueConfig struct {
	// URL is the NATS server URL.
	URL string `koanf:"url"`
	// Stream is the JetStream stream name backing the support queue.
	Stream string `koanf:"stream"`
	// Subject is the main queue subject.
	Subject string `koanf:"subject"`
	// DLQSubject is the dead-letter subject.
	DLQSubject string `koanf:"dlq_subject"`
	// MaxRetries is the per-message retry ceiling before dead-lettering.
	MaxRetries int `koanf:"max_retries"`
	// BatchSize is the maximum number of messages fetched per pull.
	BatchSize int `koanf:"batch_size"`
	// Workers is the size of the envelope-processing pool.
	Workers int `koanf:"workers"`
	// FetchTimeout bounds a single pull from the stream.
	FetchTimeout Duration `koanf:"fetch_timeout"`
}

// EmbeddingConfig holds embedding capability configuration.
type EmbeddingConfig struct {
	// Provider selects the embedding backend: tei for an HTTP endpoint,
	// fastembed for a local ONNX model (CGO builds only).
	Provider string `koanf:"provider"`
	// BaseURL is the TEI or OpenAI-compatible embedding endpoint.
	BaseURL string `koanf:"base_url"`
	// CacheDir is the model cache directory for the fastembed provider.
	CacheDir string `koanf:"cache_dir"`
	// Model is the embedding model name.
	Model string `koanf:"model"`
	// APIKey is optional for TEI.
	APIKey Secret `koanf:"api_key"`
	// Dimension is the expected vector length. Responses with any other
	// length are rejected.
	Dimension int `koanf:"dimension"`
	// MaxRetries is the embedding retry ceiling.
	MaxRetries int `koanf:"max_retries"`
	// RetryDelay is the base delay; attempt n waits RetryDelay * (n+1).
	RetryDelay Duration `koanf:"retry_delay"`
	// Timeout bounds a single embedding call.
	Timeout Duration `koanf:"timeout"`
}

// VectorStoreConfig holds vector index configuration.
type VectorStoreConfig struct {
	// Mode selects the backend: qdrant for a Qdrant service, local for
	// the embedded chromem store persisted at Path.
	Mode string `koanf:"mode"`
	// Path is the local-mode storage directory.
	Path string `koanf:"path"`
	Host string `koanf:"host"`
	// Port is the Qdrant gRPC port (6334), not the HTTP port.
	Port int `koanf:"port"`
	// Collection is the knowledge collection name.
	Collection string `koanf:"collection"`
	// VectorSize must match the embedding dimension.
	VectorSize int  `koanf:"vector_size"`
	UseTLS     bool `koanf:"use_tls"`
	// MaxRetries is the transport retry ceiling for transient failures.
	MaxRetries int `koanf:"max_retries"`
	// RetryBackoff is the initial backoff, doubled per attempt.
	RetryBackoff Duration `koanf:"retry_backoff"`
}

// GenerationConfig holds text-generation capability configuration.
type GenerationConfig struct {
	// BaseURL is an OpenAI-compatible chat completion endpoint.
	BaseURL string `koanf:"base_url"`
	// Model is the generation model name.
	Model  string `koanf:"model"`
	APIKey Secret `koanf:"api_key"`
	// Temperature for completion sampling.
	Temperature float64 `koanf:"temperature"`
	// Timeout bounds a single generation call.
	Timeout Duration `koanf:"timeout"`
	// TopK is the number of knowledge matches retrieved per query.
	TopK int `koanf:"top_k"`
}

// DatabaseConfig holds the relational store connection.
// The relational store is consumed read-only for persona lookups.
type DatabaseConfig struct {
	DSN Secret `koanf:"dsn"`
}

// WorkflowConfig holds Temporal client configuration for knowledge ingest.
type WorkflowConfig struct {
	HostPort  string `koanf:"host_port"`
	Namespace string `koanf:"namespace"`
	TaskQueue string `koanf:"task_queue"`
}

// applyDefaults sets default values for unset fields.
func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 9090
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Queue.URL == "" {
		c.Queue.URL = "nats://localhost:4222"
	}
	if c.Queue.Stream == "" {
		c.Queue.Stream = "SUPPORT"
	}
	if c.Queue.Subject == "" {
		c.Queue.Subject = "support.messages"
	}
	if c.Queue.DLQSubject == "" {
		c.Queue.DLQSubject = "support.dlq"
	}
	if c.Queue.MaxRetries == 0 {
		c.Queue.MaxRetries = 3
	}
	if c.Queue.BatchSize == 0 {
		c.Queue.BatchSize = 10
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 8
	}
	if c.Queue.FetchTimeout == 0 {
		c.Queue.FetchTimeout = Duration(5 * time.Second)
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "tei"
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "http://localhost:8080"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 384
	}
	if c.Embedding.MaxRetries == 0 {
		c.Embedding.MaxRetries = 3
	}
	if c.Embedding.RetryDelay == 0 {
		c.Embedding.RetryDelay = Duration(time.Second)
	}
	if c.Embedding.Timeout == 0 {
		c.Embedding.Timeout = Duration(10 * time.Second)
	}
	if c.VectorStore.Mode == "" {
		c.VectorStore.Mode = "qdrant"
	}
	if c.VectorStore.Path == "" {
		c.VectorStore.Path = "~/.config/supportd/vectorstore"
	}
	if c.VectorStore.Host == "" {
		c.VectorStore.Host = "localhost"
	}
	if c.VectorStore.Port == 0 {
		c.VectorStore.Port = 6334
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "support_knowledge"
	}
	if c.VectorStore.VectorSize == 0 {
		c.VectorStore.VectorSize = 384
	}
	if c.VectorStore.MaxRetries == 0 {
		c.VectorStore.MaxRetries = 3
	}
	if c.VectorStore.RetryBackoff == 0 {
		c.VectorStore.RetryBackoff = Duration(time.Second)
	}
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = "http://localhost:8081/v1"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "llama-3.1-8b-instruct"
	}
	if c.Generation.Temperature == 0 {
		c.Generation.Temperature = 0.7
	}
	if c.Generation.Timeout == 0 {
		c.Generation.Timeout = Duration(30 * time.Second)
	}
	if c.Generation.TopK == 0 {
		c.Generation.TopK = 5
	}
	if c.Workflow.HostPort == "" {
		c.Workflow.HostPort = "localhost:7233"
	}
	if c.Workflow.Namespace == "" {
		c.Workflow.Namespace = "default"
	}
	if c.Workflow.TaskQueue == "" {
		c.Workflow.TaskQueue = "knowledge-ingest"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	if c.Queue.MaxRetries < 1 {
		return errors.New("queue max retries must be at least 1")
	}
	if c.Queue.Subject == c.Queue.DLQSubject {
		return errors.New("queue subject and DLQ subject must differ")
	}
	switch c.Embedding.Provider {
	case "tei", "fastembed":
	default:
		return fmt.Errorf("invalid embedding provider: %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("invalid embedding dimension: %d", c.Embedding.Dimension)
	}
	switch c.VectorStore.Mode {
	case "qdrant", "local":
	default:
		return fmt.Errorf("invalid vector store mode: %q", c.VectorStore.Mode)
	}
	if c.VectorStore.VectorSize != c.Embedding.Dimension {
		return fmt.Errorf("vector size %d does not match embedding dimension %d",
			c.VectorStore.VectorSize, c.Embedding.Dimension)
	}
	if c.Generation.TopK < 1 {
		return fmt.Errorf("generation top_k must be at least 1, got %d", c.Generation.TopK)
	}
	return nil
}
