package usecase

import "context"

// inTx runs fn in a fresh transaction, retrying the whole unit on transient
// conflicts. fn must not keep state across attempts.
func inTx(ctx context.Context, txManager TransactionManager, retrier Retrier, fn func(ctx context.Context, tx Transaction) error) error {
	return retrier.Retry(ctx, func() error {
		tx, err := txManager.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(ctx, tx); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
}
