package numerator

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	corenumerator "commesse/internal/core/numerator"
)

// Querier interface for database operations.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps the counters in a ddt_counters table.
// Each statement is a single UPSERT ... RETURNING, so a missing row is created on first access.
type PostgresStore struct {
	querier Querier
}

// Ensure compile-time interface compliance.
var _ corenumerator.CounterStore = (*PostgresStore)(nil)

// NewPostgresStore creates a new counter store on top of a pool or connection.
func NewPostgresStore(querier Querier) *PostgresStore {
	return &PostgresStore{querier: querier}
}

// EnsureSchema creates the counters table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.querier.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ddt_counters (
			class       TEXT PRIMARY KEY,
			progressivo INTEGER NOT NULL CHECK (progressivo >= 1)
		)
	`)
	if err != nil {
		return fmt.Errorf("create ddt_counters: %w", err)
	}
	return nil
}

// Peek implements CounterStore.
func (s *PostgresStore) Peek(ctx context.Context, class corenumerator.Class) (int, error) {
	var n int
	err := s.querier.QueryRow(ctx, `
		INSERT INTO ddt_counters (class, progressivo)
		VALUES ($1, 1)
		ON CONFLICT (class) DO UPDATE SET progressivo = GREATEST(ddt_counters.progressivo, 1)
		RETURNING progressivo
	`, string(class)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("peek %s: %w", class, err)
	}
	return n, nil
}

// Advance implements CounterStore.
func (s *PostgresStore) Advance(ctx context.Context, class corenumerator.Class) (int, error) {
	var n int
	err := s.querier.QueryRow(ctx, `
		INSERT INTO ddt_counters (class, progressivo)
		VALUES ($1, 2)
		ON CONFLICT (class) DO UPDATE SET progressivo = GREATEST(ddt_counters.progressivo, 1) + 1
		RETURNING progressivo - 1
	`, string(class)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("advance %s: %w", class, err)
	}
	return n, nil
}

// ForceTo implements CounterStore.
func (s *PostgresStore) ForceTo(ctx context.Context, class corenumerator.Class, candidateNext int) (int, error) {
	var n int
	err := s.querier.QueryRow(ctx, `
		INSERT INTO ddt_counters (class, progressivo)
		VALUES ($1, GREATEST($2::integer, 1))
		ON CONFLICT (class) DO UPDATE SET progressivo = GREATEST(ddt_counters.progressivo, EXCLUDED.progressivo)
		RETURNING progressivo
	`, string(class), candidateNext).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("force %s: %w", class, err)
	}
	return n, nil
}
