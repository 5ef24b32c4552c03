// Package db provides the shared database access seam for the Postgres
// store. The Pool interface captures the subset of pgxpool.Pool the store
// uses, so tests can substitute a pgxmock pool.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Pool is satisfied by *pgxpool.Pool and by pgxmock.PgxPoolIface.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}
