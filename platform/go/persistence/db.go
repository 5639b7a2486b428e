package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type dbPool interface {
	Querier
	txBeginner
}

// Transactor runs fn inside one unit of work. Stores called with the ctx passed to fn
// take part in it.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// DB wraps a pgx pool and carries the active transaction on the context so every store
// touched inside WithTx writes through the same tx.
type DB struct {
	pool dbPool
}

func NewDB(pool *pgxpool.Pool) *DB {
	if pool == nil {
		panic("DB requires pool")
	}
	return &DB{pool: pool}
}

// WithTx executes fn inside a transaction. A nested call joins the outer transaction.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Querier returns the transaction on ctx, or the pool when there is none.
func (db *DB) Querier(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db.pool
}

// InTx reports whether ctx carries a transaction opened by WithTx.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(pgx.Tx)
	return ok
}

// DirectTransactor runs fn straight away. Each store call is atomic on its own and nothing
// holds a read through a later write, so it only suits single-caller tools and tests.
type DirectTransactor struct{}

func (DirectTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type serialKey struct{}

// SerialTransactor runs one unit of work at a time and backs the in-memory stores. A
// GetForUpdate inside fn stays valid until fn returns, as a row lock would. Nested calls
// join the outer unit. There is no rollback.
type SerialTransactor struct {
	mu sync.Mutex
}

func NewSerialTransactor() *SerialTransactor {
	return &SerialTransactor{}
}

func (t *SerialTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if held, _ := ctx.Value(serialKey{}).(*SerialTransactor); held == t {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(context.WithValue(ctx, serialKey{}, t))
}
