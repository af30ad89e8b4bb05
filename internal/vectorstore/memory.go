package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a test double: an in-process Store backed by exact cosine
// similarity, with no persistence. It obeys the same mandatory tenant
// filter as the production stores. Deployments wanting an embedded store
// use ChromemStore instead.
type MemoryStore struct {
	mu     sync.RWMutex
	points map[string]memoryPoint
	seq    int
}

type memoryPoint struct {
	id         string
	vector     []float32
	businessID string
	content    string
	metadata   map[string]interface{}
	// seq orders points by insertion recency for score tie-breaking.
	seq int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[string]memoryPoint)}
}

// Upsert inserts or overwrites a point. Idempotent by id.
func (s *MemoryStore) Upsert(_ context.Context, id string, vector []float32, businessID, content string, metadata map[string]interface{}) error {
	if businessID == "" {
		return ErrMissingTenant
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]interface{}, len(metadata)+2)
	for k, v := range metadata {
		copied[k] = v
	}
	copied[businessIDKey] = businessID
	copied[MetadataContentKey] = content

	s.seq++
	s.points[id] = memoryPoint{
		id:         id,
		vector:     append([]float32(nil), vector...),
		businessID: businessID,
		content:    content,
		metadata:   copied,
		seq:        s.seq,
	}
	return nil
}

// Query returns the topK most similar points for the tenant, descending by
// score, ties broken by insertion recency.
func (s *MemoryStore) Query(_ context.Context, vector []float32, businessID string, topK int) ([]Match, error) {
	if businessID == "" {
		return nil, ErrMissingTenant
	}
	topK = clampTopK(topK)

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		match Match
		seq   int
	}
	var results []scored
	for _, p := range s.points {
		if p.businessID != businessID {
			continue
		}
		results = append(results, scored{
			match: Match{
				ID:       p.id,
				Score:    cosineSimilarity(vector, p.vector),
				Content:  p.content,
				Metadata: p.metadata,
			},
			seq: p.seq,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].match.Score != results[j].match.Score {
			return results[i].match.Score > results[j].match.Score
		}
		return results[i].seq > results[j].seq
	})

	if len(results) > topK {
		results = results[:topK]
	}
	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = r.match
	}
	return matches, nil
}

// Delete removes points by id. nonexistent ids are ignored.
func (s *MemoryStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.points, id)
	}
	return nil
}

// DeleteByBusiness removes all points for a tenant.
func (s *MemoryStore) DeleteByBusiness(_ context.Context, businessID string) error {
	if businessID == "" {
		return ErrMissingTenant
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.points {
		if p.businessID == businessID {
			delete(s.points, id)
		}
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored points.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// cosineSimilarity computes the cosine similarity between two vectors,
// normalized into [0,1]. Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return float32((cos + 1) / 2)
}
