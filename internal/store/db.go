// Package store is the pgx-backed repository. Every method routes through
// conn(ctx) so callers can compose operations inside a WithTx transaction.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/accord-chat/accord/internal/snowflake"
)

type Store struct {
	pool *pgxpool.Pool
	ids  *snowflake.Generator
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, ids: snowflake.NewGenerator()}
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// NewID mints a snowflake for a new row.
func (s *Store) NewID() string {
	return s.ids.Next()
}

type txKey struct{}

// WithTx runs fn inside a transaction. Nested calls reuse the outer
// transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := txFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	ctx = context.WithValue(ctx, txKey{}, tx)

	if err := fn(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) conn(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
