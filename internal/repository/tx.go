package repository

import (
	"context"
	"database/sql"
)

type txKey struct{}

// querier is the subset of *sql.DB and *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxManager starts transactions and carries them through the context so
// every repository call made inside fn joins the same *sql.Tx.
type TxManager struct {
	db *sql.DB
}

// NewTxManager returns a TxManager that opens transactions on db.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// WithTx runs fn in a READ COMMITTED transaction.  Locking reads
// (SELECT ... FOR UPDATE) serialize writers on a room or screening, and
// READ COMMITTED makes the plain reads that follow the lock see rows
// committed by the previous holder.  A nested call reuses the outer tx.
func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func txFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// conn returns the transaction in ctx, or db when there is none.
func conn(ctx context.Context, db *sql.DB) querier {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return db
}
