package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Migrate creates the tables when they do not exist yet. Statements are
// idempotent so it runs on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	// no arguments: pgx sends this over the simple protocol, which accepts
	// several statements in one call
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
