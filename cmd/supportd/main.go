// Supportd is a multi-tenant customer support daemon.
//
// This binary starts the full support pipeline: the HTTP surface for
// inbound messages and knowledge ingest, the queue consumer that answers
// messages through retrieval-augmented generation, and the connections to
// NATS, Qdrant, Postgres, and Temporal that back it.
//
// Configuration is loaded from an optional YAML file and SUPPORTD_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	supportd
//
//	# Configure via file and environment
//	SUPPORTD_SERVER_PORT=9090 supportd -config supportd.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	temporalclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/config"
	"github.com/fyrsmithlabs/supportd/internal/embeddings"
	"github.com/fyrsmithlabs/supportd/internal/logging"
	"github.com/fyrsmithlabs/supportd/internal/persona"
	"github.com/fyrsmithlabs/supportd/internal/queue"
	"github.com/fyrsmithlabs/supportd/internal/rag"
	"github.com/fyrsmithlabs/supportd/internal/vectorstore"
	"github.com/fyrsmithlabs/supportd/internal/workflows"
	"github.com/fyrsmithlabs/supportd/pkg/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  supportd           Start the support daemon\n")
			fmt.Fprintf(os.Stderr, "  supportd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("supportd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the pipeline and blocks until context cancellation.
//
//  1. Loads and validates configuration
//  2. Initializes the logger
//  3. Connects to NATS and ensures the support stream
//  4. Connects to Qdrant, the embedding service, and the generator
//  5. Wires the RAG orchestrator and queue consumer
//  6. Starts the consumer loop and the HTTP server
//
// Returns http.ErrServerClosed on graceful shutdown.
func run(ctx context.Context, configPath string) error {
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
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting supportd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("queue_subject", cfg.Queue.Subject))

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer deps.Close()

	orchestrator, err := rag.New(rag.Config{
		Embedder:        deps.embedder,
		Store:           deps.store,
		Personas:        deps.personas,
		Generator:       deps.generator,
		TopK:            cfg.Generation.TopK,
		GenerateTimeout: cfg.Generation.Timeout.Duration(),
		Logger:          logger.Named("rag"),
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	consumer, err := queue.NewConsumer(queue.ConsumerConfig{
		Responder:  orchestrator,
		Deliverer:  queue.NewLogDeliverer(logger.Named("deliverer")),
		Queue:      deps.mainQueue,
		DLQ:        deps.dlq,
		MaxRetries: cfg.Queue.MaxRetries,
		Workers:    cfg.Queue.Workers,
		Logger:     logger.Named("consumer"),
	})
	if err != nil {
		return fmt.Errorf("creating consumer: %w", err)
	}
	defer consumer.Close()

	runner, err := queue.NewRunner(deps.js, cfg.Queue, consumer, logger.Named("runner"))
	if err != nil {
		return fmt.Errorf("creating queue runner: %w", err)
	}

	go func() {
		if err := runner.Run(ctx); err != nil {
			logger.Error("queue runner stopped", zap.Error(err))
		}
	}()

	producer, err := queue.NewProducer(deps.mainQueue, logger.Named("producer"))
	if err != nil {
		return fmt.Errorf("creating producer: %w", err)
	}

	srv, err := server.NewServer(cfg.Server, producer, deps.ingest)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"))

	return srv.Start(ctx)
}

// dependencies holds all infrastructure dependencies.
type dependencies struct {
	natsConn  *nats.Conn
	js        nats.JetStreamContext
	mainQueue *queue.NATSTransport
	dlq       *queue.NATSTransport
	store     vectorstore.Store
	embedder  *embeddings.Client
	generator rag.Generator
	personas  persona.Repository
	pgPool    *pgxpool.Pool
	temporal  temporalclient.Client
	ingest    workflows.Starter
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.temporal != nil {
		d.temporal.Close()
	}
	if d.pgPool != nil {
		d.pgPool.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
	if d.natsConn != nil {
		d.natsConn.Close()
	}
}

// initDependencies connects to NATS, Qdrant, Postgres, Temporal, and the
// embedding and generation services.
//
// Postgres and Temporal are optional: without a database DSN persona
// lookups are disabled, and without a reachable Temporal cluster the
// knowledge endpoint reports unavailable.
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	d := &dependencies{}

	nc, err := nats.Connect(cfg.Queue.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.Queue.URL, err)
	}
	d.natsConn = nc
	logger.Info("Connected to NATS", zap.String("url", cfg.Queue.URL))

	js, err := nc.JetStream()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	d.js = js

	if err := queue.EnsureStream(js, cfg.Queue); err != nil {
		d.Close()
		return nil, err
	}

	d.mainQueue, err = queue.NewNATSTransport(js, cfg.Queue.Subject)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.dlq, err = queue.NewNATSTransport(js, cfg.Queue.DLQSubject)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.store, err = newVectorStore(ctx, cfg.VectorStore, logger)
	if err != nil {
		d.Close()
		return nil, err
	}
	logger.Info("Vector store ready",
		zap.String("mode", cfg.VectorStore.Mode),
		zap.String("collection", cfg.VectorStore.Collection))

	provider, err := newEmbeddingProvider(cfg.Embedding)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	d.embedder, err = embeddings.NewClient(cfg.Embedding, provider, logger.Named("embeddings"))
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}

	d.generator, err = rag.NewChatGenerator(rag.GeneratorConfig{
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		APIKey:      cfg.Generation.APIKey.Value(),
		Temperature: cfg.Generation.Temperature,
	})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("creating generator: %w", err)
	}

	if cfg.Database.DSN.IsSet() {
		pool, err := pgxpool.New(ctx, cfg.Database.DSN.Value())
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("connecting to Postgres: %w", err)
		}
		d.pgPool = pool
		d.personas, err = persona.NewPostgresRepository(pool)
		if err != nil {
			d.Close()
			return nil, err
		}
		logger.Info("Persona repository ready")
	} else {
		logger.Warn("No database DSN configured, persona lookups disabled")
	}

	tc, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Workflow.HostPort,
		Namespace: cfg.Workflow.Namespace,
	})
	if err != nil {
		logger.Warn("Temporal unavailable, knowledge ingest disabled", zap.Error(err))
	} else {
		d.temporal = tc
		d.ingest, err = workflows.NewTemporalStarter(tc, cfg.Workflow.TaskQueue)
		if err != nil {
			d.Close()
			return nil, err
		}
		logger.Info("Temporal client ready", zap.String("task_queue", cfg.Workflow.TaskQueue))
	}

	return d, nil
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
