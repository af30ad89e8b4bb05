// Package vectorstore provides tenant-scoped vector storage.
//
// Every operation is scoped by business ID. The scoping filter is part of the
// Store contract, not an optional parameter: operations with an empty business
// ID fail closed with ErrMissingTenant rather than running unfiltered, so
// cross-tenant leakage is structurally impossible at this layer.
package vectorstore

import (
	"context"
	"errors"
)

// Metadata key under which the tenant identifier is stored on every point.
const businessIDKey = "business_id"

// MetadataContentKey is the metadata key carrying the original document text.
const MetadataContentKey = "content"

var (
	// ErrMissingTenant is returned when an operation is attempted without a
	// business ID. Fail closed: no unfiltered queries, no empty results.
	ErrMissingTenant = errors.New("business ID missing")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the backing index is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector store")
)

// Match is a single nearest-neighbor result. Ephemeral: produced per query,
// never persisted.
type Match struct {
	// ID is the knowledge entry identifier.
	ID string

	// Score is the similarity score in [0,1], higher is more similar.
	Score float32

	// Content is the stored document text.
	Content string

	// Metadata holds the stored payload, including business_id.
	Metadata map[string]interface{}
}

// BusinessID returns the tenant identifier from the match metadata.
func (m Match) BusinessID() string {
	id, _ := m.Metadata[businessIDKey].(string)
	return id
}

// Store is the tenant-scoped vector index.
//
// Implementations must apply the business ID filter on every query and
// stamp it into the payload on every upsert; the external index is the only
// shared state, so no local caching is permitted.
type Store interface {
	// Upsert inserts or overwrites the vector stored under id. Idempotent:
	// re-upserting the same id replaces the previous point.
	Upsert(ctx context.Context, id string, vector []float32, businessID, content string, metadata map[string]interface{}) error

	// Query returns up to topK matches for the vector, ordered by descending
	// score, restricted to points whose business_id equals businessID.
	// topK values below 1 are clamped to 1.
	Query(ctx context.Context, vector []float32, businessID string, topK int) ([]Match, error)

	// Delete removes the points with the given ids.
	Delete(ctx context.Context, ids []string) error

	// DeleteByBusiness removes all points belonging to businessID.
	//
	// Implementations collect a single page of matching ids and bulk-delete
	// them. Tenants with more points than one page require repeated calls;
	// this is a known scalability caveat, kept rather than silently fixed.
	DeleteByBusiness(ctx context.Context, businessID string) error

	// Close releases the store connection.
	Close() error
}

// clampTopK bounds topK to [1, maxTopK].
func clampTopK(topK int) int {
	const maxTopK = 1000
	if topK < 1 {
		return 1
	}
	if topK > maxTopK {
		return maxTopK
	}
	return topK
}
