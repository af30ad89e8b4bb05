package workflows

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
)

// Starter launches knowledge ingest workflows.
type Starter interface {
	StartIngest(ctx context.Context, input KnowledgeIngestInput) (string, error)
}

// TemporalStarter starts ingest workflows on a Temporal cluster.
type TemporalStarter struct {
	client    client.Client
	taskQueue string
}

// NewTemporalStarter wraps a Temporal client. An empty task queue uses the
// package default.
func NewTemporalStarter(c client.Client, taskQueue string) (*TemporalStarter, error) {
	if c == nil {
		return nil, fmt.Errorf("temporal client is required")
	}
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	return &TemporalStarter{client: c, taskQueue: taskQueue}, nil
}

// StartIngest launches a KnowledgeIngestWorkflow and returns its workflow
// id without waiting for completion.
func (s *TemporalStarter) StartIngest(ctx context.Context, input KnowledgeIngestInput) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:        "knowledge-ingest-" + uuid.NewString(),
		TaskQueue: s.taskQueue,
	}
	run, err := s.client.ExecuteWorkflow(ctx, opts, KnowledgeIngestWorkflow, input)
	if err != nil {
		return "", fmt.Errorf("starting ingest workflow: %w", err)
	}
	return run.GetID(), nil
}
