// internal/stores/weights.go
package stores

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresWeightStore keeps weight overrides as one row per criterion.
type PostgresWeightStore struct {
	db    *sql.DB
	table string
}

func NewPostgresWeightStore(db *sql.DB, table string) *PostgresWeightStore {
	if table == "" {
		table = "matching_weights"
	}
	return &PostgresWeightStore{db: db, table: pq.QuoteIdentifier(table)}
}

// EnsureSchema creates the overrides table when it does not exist.
func (s *PostgresWeightStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name       TEXT PRIMARY KEY,
			value      DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, s.table))
	if err != nil {
		return fmt.Errorf("create weights table: %w", err)
	}
	return nil
}

// LoadWeights returns every stored override. Interpreting the keys is left to the provider.
func (s *PostgresWeightStore) LoadWeights(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT name, value FROM %s`, s.table))
	if err != nil {
		return nil, queryError(ctx, "load_weights", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			name  string
			value float64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, queryError(ctx, "load_weights", err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(ctx, "load_weights", err)
	}
	return out, nil
}

// SaveWeight upserts a single key.
func (s *PostgresWeightStore) SaveWeight(ctx context.Context, name string, value float64) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (name, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, s.table),
		name, value,
	)
	if err != nil {
		return queryError(ctx, "save_weight:"+name, err)
	}
	return nil
}
