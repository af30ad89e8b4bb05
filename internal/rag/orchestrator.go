package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/persona"
	"github.com/fyrsmithlabs/supportd/internal/vectorstore"
)

// Common errors.
var (
	// ErrEmptyQuery indicates an empty or whitespace-only query. Caller
	// error, never retried.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrNoRelevantContext indicates the tenant's knowledge base produced
	// no matches. Recoverable; callers should substitute fallback text.
	ErrNoRelevantContext = errors.New("no relevant context found")

	// ErrGenerationFailed wraps a text-generation failure.
	ErrGenerationFailed = errors.New("response generation failed")

	// ErrInvalidConfig indicates missing orchestrator dependencies.
	ErrInvalidConfig = errors.New("invalid orchestrator config")
)

// basePrompt frames every generated response regardless of persona.
const basePrompt = `You are a helpful customer support agent.
Your goal is to assist users by providing accurate and relevant information.
Always be professional, clear, and concise in your responses.`

const (
	defaultTopK       = 5
	defaultGenTimeout = 30 * time.Second
)

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces a completion from a system and user prompt pair.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Response is a generated support answer with its provenance.
type Response struct {
	Text       string `json:"text"`
	BusinessID string `json:"business_id"`
	PersonaID  string `json:"persona_id,omitempty"`
	// ContextUsed lists the ids of the knowledge matches fed into the
	// prompt, in descending score order.
	ContextUsed []string `json:"context_used,omitempty"`
}

// KnowledgeEntry is a knowledge-base document to ingest for a tenant.
type KnowledgeEntry struct {
	ID         string         `json:"id"`
	BusinessID string         `json:"business_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	// VectorID references the vector store point backing this entry. Set
	// by AddKnowledge.
	VectorID string `json:"vector_id,omitempty"`
}

// Config holds orchestrator dependencies and tuning.
type Config struct {
	Embedder  Embedder
	Store     vectorstore.Store
	Personas  persona.Repository
	Generator Generator
	// TopK is the number of knowledge matches retrieved per query.
	TopK int
	// GenerateTimeout bounds a single generation call.
	GenerateTimeout time.Duration
	Logger          *zap.Logger
}

// Orchestrator answers support queries against a tenant's knowledge base.
type Orchestrator struct {
	embedder   Embedder
	store      vectorstore.Store
	personas   persona.Repository
	generator  Generator
	topK       int
	genTimeout time.Duration
	logger     *zap.Logger
}

// New creates an orchestrator. Embedder, Store, and Generator are required;
// Personas may be nil, in which case every response uses the generic prompt.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", ErrInvalidConfig)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: store required", ErrInvalidConfig)
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("%w: generator required", ErrInvalidConfig)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = defaultGenTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Orchestrator{
		embedder:   cfg.Embedder,
		store:      cfg.Store,
		personas:   cfg.Personas,
		generator:  cfg.Generator,
		topK:       cfg.TopK,
		genTimeout: cfg.GenerateTimeout,
		logger:     cfg.Logger,
	}, nil
}

// GenerateResponse answers a customer query using the tenant's knowledge
// base and persona.
//
// Persona lookup is best-effort: a missing persona falls back to the
// generic prompt and is never an error. An empty knowledge base surfaces
// ErrNoRelevantContext so callers can substitute fallback text.
func (o *Orchestrator) GenerateResponse(ctx context.Context, query, businessID, personaID string) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if businessID == "" {
		return nil, vectorstore.ErrMissingTenant
	}

	vector, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := o.store.Query(ctx, vector, businessID, o.topK)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge base: %w", err)
	}
	if len(matches) == 0 {
		return nil, ErrNoRelevantContext
	}

	systemPrompt := o.buildSystemPrompt(ctx, personaID, businessID)

	contextParts := make([]string, 0, len(matches))
	contextIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Content != "" {
			contextParts = append(contextParts, m.Content)
		}
		contextIDs = append(contextIDs, m.ID)
	}
	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", strings.Join(contextParts, "\n\n"), query)

	genCtx, cancel := context.WithTimeout(ctx, o.genTimeout)
	defer cancel()

	text, err := o.generator.Generate(genCtx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	return &Response{
		Text:        text,
		BusinessID:  businessID,
		PersonaID:   personaID,
		ContextUsed: contextIDs,
	}, nil
}

// AddKnowledge embeds an entry's content and upserts it into the tenant's
// knowledge base. Safe to retry wholesale; upsert of the same id overwrites.
func (o *Orchestrator) AddKnowledge(ctx context.Context, entry *KnowledgeEntry) error {
	if entry == nil || strings.TrimSpace(entry.Content) == "" {
		return fmt.Errorf("%w: knowledge content required", ErrEmptyQuery)
	}
	if entry.BusinessID == "" {
		return vectorstore.ErrMissingTenant
	}
	if entry.ID == "" {
		return fmt.Errorf("%w: knowledge entry id required", ErrInvalidConfig)
	}

	vector, err := o.embedder.Embed(ctx, entry.Content)
	if err != nil {
		return fmt.Errorf("embedding knowledge content: %w", err)
	}

	if err := o.store.Upsert(ctx, entry.ID, vector, entry.BusinessID, entry.Content, entry.Metadata); err != nil {
		return fmt.Errorf("upserting knowledge entry %s: %w", entry.ID, err)
	}
	entry.VectorID = entry.ID

	o.logger.Info("knowledge entry added",
		zap.String("id", entry.ID),
		zap.String("business_id", entry.BusinessID))
	return nil
}

// buildSystemPrompt extends the base prompt with the tenant persona when
// one resolves. Lookup failures fall back to the generic prompt.
func (o *Orchestrator) buildSystemPrompt(ctx context.Context, personaID, businessID string) string {
	if personaID == "" || o.personas == nil {
		return basePrompt
	}

	p, err := o.personas.Get(ctx, personaID, businessID)
	if err != nil {
		if !errors.Is(err, persona.ErrNotFound) {
			o.logger.Warn("persona lookup failed",
				zap.String("persona_id", personaID),
				zap.Error(err))
		}
		return basePrompt
	}

	prompt := basePrompt + "\nPersonality: " + p.Name
	if len(p.PromptConfig) > 0 {
		if cfg, err := json.MarshalIndent(p.PromptConfig, "", "  "); err == nil {
			prompt += "\nConfiguration: " + string(cfg)
		}
	}
	return prompt
}
