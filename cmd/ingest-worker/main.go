// Ingest-worker runs the Temporal worker for knowledge ingest workflows.
//
// The worker hosts KnowledgeIngestWorkflow and its activities: embedding
// and storing knowledge entries, and announcing them on the support queue.
//
// Usage:
//
//	SUPPORTD_WORKFLOW_HOST_PORT=localhost:7233 ingest-worker -config supportd.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/config"
	"github.com/fyrsmithlabs/supportd/internal/embeddings"
	"github.com/fyrsmithlabs/supportd/internal/logging"
	"github.com/fyrsmithlabs/supportd/internal/queue"
	"github.com/fyrsmithlabs/supportd/internal/rag"
	"github.com/fyrsmithlabs/supportd/internal/vectorstore"
	"github.com/fyrsmithlabs/supportd/internal/workflows"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("Worker error: %v", err)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadWithFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	nc, err := nats.Connect(cfg.Queue.URL, nats.RetryOnFailedConnect(true))
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		return fmt.Errorf("creating JetStream context: %w", err)
	}
	if err := queue.EnsureStream(js, cfg.Queue); err != nil {
		return err
	}

	mainQueue, err := queue.NewNATSTransport(js, cfg.Queue.Subject)
	if err != nil {
		return err
	}
	producer, err := queue.NewProducer(mainQueue, logger.Named("producer"))
	if err != nil {
		return err
	}

	store, err := newVectorStore(ctx, cfg.VectorStore, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	provider, err := newEmbeddingProvider(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	embedder, err := embeddings.NewClient(cfg.Embedding, provider, logger.Named("embeddings"))
	if err != nil {
		return fmt.Errorf("creating embedding client: %w", err)
	}

	generator, err := rag.NewChatGenerator(rag.GeneratorConfig{
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		APIKey:      cfg.Generation.APIKey.Value(),
		Temperature: cfg.Generation.Temperature,
	})
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}

	orchestrator, err := rag.New(rag.Config{
		Embedder:  embedder,
		Store:     store,
		Generator: generator,
		TopK:      cfg.Generation.TopK,
		Logger:    logger.Named("rag"),
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	activities, err := workflows.NewActivities(orchestrator, producer, logger.Named("activities"))
	if err != nil {
		return err
	}

	tc, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Workflow.HostPort,
		Namespace: cfg.Workflow.Namespace,
	})
	if err != nil {
		return fmt.Errorf("connecting to Temporal: %w", err)
	}
	defer tc.Close()

	taskQueue := cfg.Workflow.TaskQueue
	if taskQueue == "" {
		taskQueue = workflows.TaskQueue
	}

	w := worker.New(tc, taskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.KnowledgeIngestWorkflow)
	w.RegisterActivity(activities)

	logger.Info("Ingest worker starting", zap.String("task_queue", taskQueue))

	// Blocks until interrupted.
	return w.Run(worker.InterruptCh())
}

// newVectorStore selects the store backend by mode: a Qdrant service or
// the embedded local store.
func newVectorStore(ctx context.Context, cfg config.VectorStoreConfig, logger *zap.Logger) (vectorstore.Store, error) {
	switch cfg.Mode {
	case "local":
		store, err := vectorstore.NewChromemStore(cfg, logger.Named("vectorstore"))
		if err != nil {
			return nil, fmt.Errorf("opening local vector store: %w", err)
		}
		return store, nil
	default:
		store, err := vectorstore.NewQdrantStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connecting to Qdrant: %w", err)
		}
		return store, nil
	}
}

// newEmbeddingProvider selects the embedding backend by provider name.
func newEmbeddingProvider(cfg config.EmbeddingConfig) (embeddings.Provider, error) {
	if cfg.Provider == "fastembed" {
		provider, err := embeddings.NewFastEmbedProvider(cfg)
		if err != nil {
			return nil, err
		}
		return provider, nil
	}
	provider, err := embeddings.NewTEIProvider(cfg)
	if err != nil {
		return nil, err
	}
	return provider, nil
}
