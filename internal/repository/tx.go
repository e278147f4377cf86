package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// inTx runs fn in a transaction. Domain errors from fn pass through unchanged,
// any other failure before commit becomes a retryable StorageError, and a
// failed commit becomes an ambiguous one because the server may have applied it.
func (r *GormProductRepository) inTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return &StorageError{Op: op, Err: fmt.Errorf("begin: %w", tx.Error)}
	}
	done := false
	defer func() {
		if !done {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		if isDomainError(err) {
			return err
		}
		return &StorageError{Op: op, Err: err}
	}
	if err := r.commit(tx); err != nil {
		return &StorageError{Op: op, Err: fmt.Errorf("commit: %w", err), Ambiguous: true}
	}
	done = true
	return nil
}

func (r *GormProductRepository) applyLockTimeout(tx *gorm.DB) error {
	if r.cfg.LockTimeout <= 0 || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.cfg.LockTimeout.Milliseconds())).Error
}
