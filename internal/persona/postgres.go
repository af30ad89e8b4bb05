package persona

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const getPersonaSQL = `SELECT id, business_id, name, prompt_config
	FROM personas
	WHERE id = $1 AND business_id = $2`

// PostgresRepository reads personas from PostgreSQL.
//
// Safe for concurrent use; pgxpool handles connection management.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a persona repository over an existing pool.
func NewPostgresRepository(pool *pgxpool.Pool) (*PostgresRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresRepository{pool: pool}, nil
}

// Get fetches a persona by id within a tenant. Both id and business id must
// match; a persona owned by another tenant returns ErrNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id, businessID string) (*Persona, error) {
	if id == "" || businessID == "" {
		return nil, ErrNotFound
	}

	var p Persona
	err := r.pool.QueryRow(ctx, getPersonaSQL, id, businessID).
		Scan(&p.ID, &p.BusinessID, &p.Name, &p.PromptConfig)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("querying persona %s: %w", id, err)
	}
	return &p, nil
}
