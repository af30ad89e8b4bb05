// Package persona provides read-only access to per-tenant support personas.
//
// A persona carries the name and free-form prompt configuration (tone,
// temperature, response format) that shape generated responses. Lookups are
// always scoped by business id; a persona belonging to another tenant is
// indistinguishable from one that does not exist.
package persona

import (
	"context"
	"errors"
)

// ErrNotFound indicates no persona exists for the id within the tenant.
var ErrNotFound = errors.New("persona not found")

// Persona configures the voice of generated responses for one tenant.
type Persona struct {
	ID           string         `json:"id"`
	BusinessID   string         `json:"business_id"`
	Name         string         `json:"name"`
	PromptConfig map[string]any `json:"prompt_config,omitempty"`
}

// Repository looks up personas. Implementations must scope every lookup by
// business id.
type Repository interface {
	Get(ctx context.Context, id, businessID string) (*Persona, error)
}
