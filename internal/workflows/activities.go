package workflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/channel"
	"github.com/fyrsmithlabs/supportd/internal/rag"
)

// KnowledgeAdder stores a knowledge entry. Implemented by rag.Orchestrator.
type KnowledgeAdder interface {
	AddKnowledge(ctx context.Context, entry *rag.KnowledgeEntry) error
}

// Enqueuer submits a message to the support queue. Implemented by
// queue.Producer.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg channel.Message) error
}

// ProcessKnowledgeInput is the payload for the process step.
type ProcessKnowledgeInput struct {
	BusinessID string         `json:"business_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ProcessKnowledgeResult identifies the stored entry.
type ProcessKnowledgeResult struct {
	EntryID  string `json:"entry_id"`
	VectorID string `json:"vector_id"`
}

// NotifyInput is the payload for the notify step.
type NotifyInput struct {
	BusinessID string `json:"business_id"`
	EntryID    string `json:"entry_id"`
}

// Activities holds the ingest workflow's activity implementations.
type Activities struct {
	knowledge KnowledgeAdder
	producer  Enqueuer
	logger    *zap.Logger
}

// NewActivities creates the activity set.
func NewActivities(knowledge KnowledgeAdder, producer Enqueuer, logger *zap.Logger) (*Activities, error) {
	if knowledge == nil {
		return nil, fmt.Errorf("knowledge adder is required")
	}
	if producer == nil {
		return nil, fmt.Errorf("producer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activities{knowledge: knowledge, producer: producer, logger: logger}, nil
}

// ProcessKnowledge embeds and stores a knowledge entry.
//
// The entry id is a UUID derived from the tenant and content, so Temporal
// retrying the whole step overwrites the same vector store point instead
// of duplicating it.
func (a *Activities) ProcessKnowledge(ctx context.Context, input ProcessKnowledgeInput) (*ProcessKnowledgeResult, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, fmt.Errorf("knowledge content is empty")
	}
	if input.BusinessID == "" {
		return nil, fmt.Errorf("business id is required")
	}

	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(input.BusinessID+":"+input.Content)).String()

	entry := &rag.KnowledgeEntry{
		ID:         id,
		BusinessID: input.BusinessID,
		Content:    input.Content,
		Metadata:   input.Metadata,
	}
	if err := a.knowledge.AddKnowledge(ctx, entry); err != nil {
		return nil, fmt.Errorf("adding knowledge entry: %w", err)
	}

	a.logger.Info("knowledge entry processed",
		zap.String("entry_id", id),
		zap.String("business_id", input.BusinessID))

	return &ProcessKnowledgeResult{EntryID: id, VectorID: entry.VectorID}, nil
}

// Notify enqueues a chat system message announcing the new entry.
func (a *Activities) Notify(ctx context.Context, input NotifyInput) error {
	now := time.Now().UTC()
	msg := channel.Message{
		ID:         uuid.NewString(),
		BusinessID: input.BusinessID,
		Channel:    channel.Chat,
		Content:    "A new knowledge base entry has been added.",
		Metadata: map[string]string{
			channel.MetaEvent: "knowledge_added",
			"entry_id":        input.EntryID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := a.producer.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueuing knowledge notification: %w", err)
	}
	return nil
}
