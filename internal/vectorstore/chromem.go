package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/config"
)

// Tracer for the embedded store.
var chromemTracer = otel.Tracer("supportd.vectorstore.chromem")

// ChromemStore is a Store implementation over chromem-go, an embeddable
// pure-Go vector database persisted to disk. It backs the local deployment
// mode, where no Qdrant service is available.
//
// Tenant isolation follows the same contract as QdrantStore: a mandatory
// business_id metadata filter on every query, the field stamped on every
// upsert, and fail-closed ErrMissingTenant when the tenant is absent.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	vectorSize int
	logger     *zap.Logger
}

// NewChromemStore opens or creates the persistent database at cfg.Path and
// ensures the knowledge collection exists.
func NewChromemStore(cfg config.VectorStoreConfig, logger *zap.Logger) (*ChromemStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: path required", ErrInvalidConfig)
	}
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	if err := ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	path, err := expandHome(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem db: %v", ErrConnectionFailed, err)
	}

	// Vectors are always supplied by the caller; a collection must never
	// fall back to chromem's default remote embedder.
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, rejectTextEmbedding)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", cfg.Collection, err)
	}

	logger.Info("chromem store initialized",
		zap.String("path", path),
		zap.String("collection", cfg.Collection),
		zap.Int("vector_size", cfg.VectorSize))

	return &ChromemStore{
		db:         db,
		collection: collection,
		name:       cfg.Collection,
		vectorSize: cfg.VectorSize,
		logger:     logger,
	}, nil
}

// rejectTextEmbedding is the collection embedding hook. All store entry
// points carry precomputed vectors, so reaching it is a wiring bug.
func rejectTextEmbedding(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("text embedding is handled upstream of the store")
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Close releases the store. chromem persists on every write, so there is
// nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}

// Upsert inserts or overwrites a knowledge point. Re-adding an id replaces
// the stored document.
func (s *ChromemStore) Upsert(ctx context.Context, id string, vector []float32, businessID, content string, metadata map[string]interface{}) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("collection", s.name))

	if businessID == "" {
		span.SetStatus(codes.Error, ErrMissingTenant.Error())
		return ErrMissingTenant
	}
	if len(vector) != s.vectorSize {
		return fmt.Errorf("%w: vector length %d, collection expects %d", ErrInvalidConfig, len(vector), s.vectorSize)
	}

	meta := stringifyMetadata(metadata)
	// Reserved fields always win over caller metadata.
	meta["id"] = id
	meta[businessIDKey] = businessID

	err := s.collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   content,
		Metadata:  meta,
		Embedding: vector,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding document %s: %w", id, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query performs tenant-scoped nearest-neighbor search.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, businessID string, topK int) ([]Match, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.name),
		attribute.Int("top_k", topK),
	)

	if businessID == "" {
		span.SetStatus(codes.Error, ErrMissingTenant.Error())
		return nil, ErrMissingTenant
	}
	topK = clampTopK(topK)

	// chromem caps the result count at the collection size.
	docCount := s.collection.Count()
	if docCount == 0 {
		span.SetStatus(codes.Ok, "empty collection")
		return nil, nil
	}
	if topK > docCount {
		topK = docCount
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, topK, map[string]string{businessIDKey: businessID}, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.name, err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		meta := make(map[string]interface{}, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			meta[k] = v
		}
		meta[MetadataContentKey] = r.Content
		matches[i] = Match{
			ID:       r.ID,
			Score:    r.Similarity,
			Content:  r.Content,
			Metadata: meta,
		}
	}

	span.SetAttributes(attribute.Int("match_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Delete removes points by knowledge entry id.
func (s *ChromemStore) Delete(ctx context.Context, ids []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Delete")
	defer span.End()
	span.SetAttributes(attribute.Int("id_count", len(ids)))

	if len(ids) == 0 {
		return nil
	}
	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting documents: %w", err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteByBusiness removes all points for a tenant. Unlike the Qdrant
// implementation this is a single filtered delete, not a paged scroll.
func (s *ChromemStore) DeleteByBusiness(ctx context.Context, businessID string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteByBusiness")
	defer span.End()

	if businessID == "" {
		span.SetStatus(codes.Error, ErrMissingTenant.Error())
		return ErrMissingTenant
	}
	if err := s.collection.Delete(ctx, map[string]string{businessIDKey: businessID}, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting tenant documents: %w", err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// stringifyMetadata converts metadata to chromem's string map form.
func stringifyMetadata(metadata map[string]interface{}) map[string]string {
	result := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = fmt.Sprintf("%d", val)
		case int64:
			result[k] = fmt.Sprintf("%d", val)
		case float64:
			result[k] = fmt.Sprintf("%f", val)
		case bool:
			result[k] = fmt.Sprintf("%t", val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

var _ Store = (*ChromemStore)(nil)
