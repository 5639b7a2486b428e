package persistence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// fakeTx satisfies pgx.Tx and records Exec statements and the commit/rollback outcome.
type fakeTx struct {
	stmts      []string
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) Commit(ctx context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}
func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}
func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (f *fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return &pgconn.StatementDescription{}, errors.New("not implemented")
}
func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	return pgconn.CommandTag{}, nil
}
func (f *fakeTx) Conn() *pgx.Conn { return nil }

// fakePool hands out a preconstructed transaction and records direct Exec calls.
type fakePool struct {
	tx     *fakeTx
	begins int
	stmts  []string
}

func (p *fakePool) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	p.begins++
	return p.tx, nil
}
func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.stmts = append(p.stmts, sql)
	return pgconn.CommandTag{}, nil
}
func (p *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (p *fakePool) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func TestDBWithTxRoutesQueriesThroughTransaction(t *testing.T) {
	ftx := &fakeTx{}
	pool := &fakePool{tx: ftx}
	db := &DB{pool: pool}

	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		require.True(t, InTx(ctx))
		_, err := db.Querier(ctx).Exec(ctx, "UPDATE leads SET status = 'applied'")
		return err
	})
	require.NoError(t, err)
	require.True(t, ftx.committed)
	require.Len(t, ftx.stmts, 1)
	require.Empty(t, pool.stmts)
}

func TestDBWithTxRollsBackOnError(t *testing.T) {
	ftx := &fakeTx{}
	db := &DB{pool: &fakePool{tx: ftx}}
	boom := errors.New("boom")

	err := db.WithTx(context.Background(), func(ctx context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, ftx.committed)
	require.True(t, ftx.rolledBack)
}

func TestDBWithTxNestedCallJoinsOuter(t *testing.T) {
	ftx := &fakeTx{}
	pool := &fakePool{tx: ftx}
	db := &DB{pool: pool}

	err := db.WithTx(context.Background(), func(ctx context.Context) error {
		return db.WithTx(ctx, func(inner context.Context) error {
			_, err := db.Querier(inner).Exec(inner, "SELECT 1")
			return err
		})
	})
	require.NoError(t, err)
	require.Equal(t, 1, pool.begins)
	require.Len(t, ftx.stmts, 1)
}

func TestDBWithTxReportsCommitFailure(t *testing.T) {
	ftx := &fakeTx{commitErr: errors.New("serialization failure")}
	db := &DB{pool: &fakePool{tx: ftx}}

	err := db.WithTx(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	require.Contains(t, err.Error(), "commit tx")
}

func TestDBQuerierWithoutTxUsesPool(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	db := &DB{pool: pool}

	_, err := db.Querier(context.Background()).Exec(context.Background(), "SELECT 1")
	require.NoError(t, err)
	require.Len(t, pool.stmts, 1)
	require.False(t, InTx(context.Background()))
}

func TestDirectTransactorRunsInline(t *testing.T) {
	called := false
	err := DirectTransactor{}.WithTx(context.Background(), func(ctx context.Context) error {
		called = true
		require.False(t, InTx(ctx))
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
}

func TestSerialTransactorJoinsNestedCalls(t *testing.T) {
	tx := NewSerialTransactor()
	depth := 0
	err := tx.WithTx(context.Background(), func(ctx context.Context) error {
		depth++
		return tx.WithTx(ctx, func(ctx context.Context) error {
			depth++
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, 2, depth)
}

func TestSerialTransactorRunsOneUnitAtATime(t *testing.T) {
	tx := NewSerialTransactor()

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		overlap atomic.Bool
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tx.WithTx(context.Background(), func(ctx context.Context) error {
				if inside.Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	require.False(t, overlap.Load())
}

func TestSerialTransactorReturnsError(t *testing.T) {
	boom := errors.New("boom")
	err := NewSerialTransactor().WithTx(context.Background(), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
}
