package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/supportd/internal/config"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("supportd.vectorstore.qdrant")

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// deleteByBusinessPageSize bounds how many points a single DeleteByBusiness
// call collects before bulk-deleting.
const deleteByBusinessPageSize = 1000

// ValidateCollectionName validates a collection name.
// Rejects uppercase, special characters, and path traversal.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidConfig, name)
	}
	return nil
}

// IsTransientError reports whether a gRPC error should be retried.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore is a Store implementation over Qdrant's native gRPC client.
//
// Tenant isolation is enforced by a mandatory business_id payload filter on
// every query and a business_id payload field stamped on every upsert.
type QdrantStore struct {
	client       *qdrant.Client
	collection   string
	vectorSize   uint64
	maxRetries   int
	retryBackoff time.Duration
}

// NewQdrantStore connects to Qdrant, ensures the knowledge collection
// exists, and returns a ready store.
func NewQdrantStore(ctx context.Context, cfg config.VectorStoreConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, cfg.Port)
	}
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	if err := ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{
		client:       client,
		collection:   cfg.Collection,
		vectorSize:   uint64(cfg.VectorSize),
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff.Duration(),
	}
	if s.maxRetries == 0 {
		s.maxRetries = 3
	}
	if s.retryBackoff == 0 {
		s.retryBackoff = time.Second
	}

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ensureCollection creates the knowledge collection if it does not exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}
	return nil
}

// retryOperation retries an operation with exponential backoff on
// transient transport errors.
func (s *QdrantStore) retryOperation(ctx context.Context, name string, op func() error) error {
	backoff := s.retryBackoff
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", name, err)
		}
		lastErr = err
		if attempt == s.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", name, s.maxRetries, lastErr)
}

// pointID maps a knowledge entry id to a stable Qdrant point id.
// Deterministic so re-upserting the same entry id overwrites its point.
func pointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// Upsert inserts or overwrites a knowledge point.
func (s *QdrantStore) Upsert(ctx context.Context, id string, vector []float32, businessID, content string, metadata map[string]interface{}) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("collection", s.collection))

	if businessID == "" {
		span.SetStatus(codes.Error, ErrMissingTenant.Error())
		return ErrMissingTenant
	}
	if len(vector) != int(s.vectorSize) {
		return fmt.Errorf("%w: vector length %d, collection expects %d", ErrInvalidConfig, len(vector), s.vectorSize)
	}

	payload := make(map[string]*qdrant.Value)
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		case int:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
		case int64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
		case float64:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
		case bool:
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
		}
	}
	// Reserved fields always win over caller metadata.
	payload["id"] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: id}}
	payload[businessIDKey] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: businessID}}
	payload[MetadataContentKey] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: content}}

	point := &qdrant.PointStruct{
		Id:      pointID(id),
		Vectors: qdrant.NewVectors(vector...),
		Payload: payload,
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         []*qdrant.PointStruct{point},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query performs tenant-scoped nearest-neighbor search.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, businessID string, topK int) ([]Match, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.collection),
		attribute.Int("top_k", topK),
	)

	if businessID == "" {
		span.SetStatus(codes.Error, ErrMissingTenant.Error())
		return nil, ErrMissingTenant
	}
	topK = clampTopK(topK)

	filter := tenantFilter(businessID)

	var results []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	matches := make([]Match, len(results))
	for i, point := range results {
		matches[i] = Match{Score: point.Score, Metadata: decodePayload(point.Payload)}
		if id, ok := matches[i].Metadata["id"].(string); ok {
			matches[i].ID = id
		}
		if content, ok := matches[i].Metadata[MetadataContentKey].(string); ok {
			matches[i].Content = content
		}
	}

	span.SetAttributes(attribute.Int("match_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Delete removes points by knowledge entry id.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Delete")
	defer span.End()
	span.SetAttributes(attribute.Int("id_count", len(ids)))

	if len(ids) == 0 {
		return nil
	}

	err := s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: &qdrant.Filter{
						Must: []*qdrant.Condition{
							{
								ConditionOneOf: &qdrant.Condition_Field{
									Field: &qdrant.FieldCondition{
										Key: "id",
										Match: &qdrant.Match{
											MatchValue: &qdrant.Match_Keywords{
												Keywords: &qdrant.RepeatedStrings{Strings: ids},
											},
										},
									},
								},
							},
						},
					},
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteByBusiness removes all points for a tenant.
//
// Collects one page of matching point ids then bulk-deletes them. A tenant
// with more than deleteByBusinessPageSize points needs repeated calls.
func (s *QdrantStore) DeleteByBusiness(ctx context.Context, businessID string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteByBusiness")
	defer span.End()

	if businessID == "" {
		span.SetStatus(codes.Error, ErrMissingTenant.Error())
		return ErrMissingTenant
	}

	filter := tenantFilter(businessID)

	var points []*qdrant.RetrievedPoint
	err := s.retryOperation(ctx, "scroll", func() error {
		res, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(uint32(deleteByBusinessPageSize)),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if len(points) == 0 {
		span.SetStatus(codes.Ok, "no points")
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(points))
	for i, p := range points {
		pointIDs[i] = p.Id
	}

	err = s.retryOperation(ctx, "delete_by_business", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{Ids: pointIDs},
				},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.Int("deleted", len(pointIDs)))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// tenantFilter builds the mandatory business_id filter.
func tenantFilter(businessID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: businessIDKey,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: businessID},
						},
					},
				},
			},
		},
	}
}

// decodePayload converts a Qdrant payload into plain metadata.
func decodePayload(payload map[string]*qdrant.Value) map[string]interface{} {
	if payload == nil {
		return nil
	}
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch val := v.Kind.(type) {
		case *qdrant.Value_StringValue:
			out[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			out[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			out[k] = val.BoolValue
		}
	}
	return out
}
