package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/erpledger/internal/usecase"
)

var errForeignTx = errors.New("postgres: transaction was not started by this package")

type txBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TxManager implements usecase.TransactionManager. Writers are serialized by
// the row and advisory locks the repositories take, so READ COMMITTED is the
// default isolation level.
type TxManager struct {
	db   txBeginner
	opts pgx.TxOptions
}

// TxOption configures a TxManager.
type TxOption func(*TxManager)

// WithIsolation runs every transaction at level.
func WithIsolation(level pgx.TxIsoLevel) TxOption {
	return func(m *TxManager) {
		m.opts.IsoLevel = level
	}
}

// NewTxManager creates a TxManager over pool.
func NewTxManager(pool *pgxpool.Pool, opts ...TxOption) *TxManager {
	return newTxManager(pool, opts...)
}

func newTxManager(db txBeginner, opts ...TxOption) *TxManager {
	m := &TxManager{db: db, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin starts a transaction.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	tx, err := m.db.BeginTx(ctx, m.opts)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &pgTx{Tx: tx}, nil
}

// pgTx is the usecase.Transaction handed out by TxManager.
type pgTx struct {
	pgx.Tx
	done bool
}

// Commit commits the transaction.
func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.Tx.Commit(ctx); err != nil {
		return err
	}
	t.done = true
	return nil
}

// Rollback aborts the transaction. It is a no-op once the transaction has
// been committed, so callers may always defer it.
func (t *pgTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	if err := t.Tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// inTx returns the querier behind a transaction started by TxManager.
func inTx(tx usecase.Transaction) (querier, error) {
	t, ok := tx.(*pgTx)
	if !ok || t == nil {
		return nil, errForeignTx
	}
	return t.Tx, nil
}
