// Package workflows holds the Temporal workflows and activities for
// knowledge-base ingestion.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// TaskQueue is the default Temporal task queue for ingest workers.
const TaskQueue = "knowledge-ingest"

const defaultMaxAttempts = 3

// KnowledgeIngestInput starts a knowledge ingest run for one tenant.
type KnowledgeIngestInput struct {
	BusinessID string         `json:"business_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	// MaxAttempts overrides the per-step retry ceiling. Zero uses the
	// default of 3.
	MaxAttempts int32 `json:"max_attempts,omitempty"`
}

// KnowledgeIngestResult reports the stored entry.
type KnowledgeIngestResult struct {
	EntryID  string `json:"entry_id"`
	VectorID string `json:"vector_id"`
}

// KnowledgeIngestWorkflow ingests one knowledge entry and announces it.
//
// Two ordered steps, each independently retried by Temporal:
//  1. Process: embed the content and upsert it into the tenant's
//     knowledge base. The entry id is derived from the content, so a
//     wholesale step retry overwrites rather than duplicates.
//  2. Notify: enqueue a chat system message announcing the entry.
//
// A step that exhausts its retry policy fails the workflow.
func KnowledgeIngestWorkflow(ctx workflow.Context, input KnowledgeIngestInput) (*KnowledgeIngestResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting knowledge ingest", "business_id", input.BusinessID)

	maxAttempts := input.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: maxAttempts,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *Activities

	var processed ProcessKnowledgeResult
	err := workflow.ExecuteActivity(ctx, a.ProcessKnowledge, ProcessKnowledgeInput{
		BusinessID: input.BusinessID,
		Content:    input.Content,
		Metadata:   input.Metadata,
	}).Get(ctx, &processed)
	if err != nil {
		return nil, err
	}

	logger.Info("Knowledge entry stored", "entry_id", processed.EntryID)

	err = workflow.ExecuteActivity(ctx, a.Notify, NotifyInput{
		BusinessID: input.BusinessID,
		EntryID:    processed.EntryID,
	}).Get(ctx, nil)
	if err != nil {
		return nil, err
	}

	return &KnowledgeIngestResult{
		EntryID:  processed.EntryID,
		VectorID: processed.VectorID,
	}, nil
}
