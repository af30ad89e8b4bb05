package persona

import (
	"context"
	"sync"
)

// MemoryRepository is an in-memory Repository for tests and local mode.
type MemoryRepository struct {
	mu       sync.RWMutex
	personas map[string]Persona
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{personas: make(map[string]Persona)}
}

// Put stores a persona, keyed by id.
func (r *MemoryRepository) Put(p Persona) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.personas[p.ID] = p
}

// Get returns the persona for id within the tenant, or ErrNotFound.
func (r *MemoryRepository) Get(_ context.Context, id, businessID string) (*Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.personas[id]
	if !ok || p.BusinessID != businessID {
		return nil, ErrNotFound
	}
	out := p
	return &out, nil
}
