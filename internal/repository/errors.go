package repository

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrProductConflict   = errors.New("product conflicts with an existing record")
	ErrProductConstraint = errors.New("product violates a storage constraint")
	ErrInvalidQuantity   = errors.New("purchase quantity must be positive")

	// ErrStorage matches any *StorageError through errors.Is.
	ErrStorage = errors.New("storage failure")
)

// InsufficientStockError reports the stock observed under the row lock.
type InsufficientStockError struct {
	ProductID uint
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// StorageError wraps a driver or transaction failure. Ambiguous is set when the
// commit itself failed and the write may or may not have been applied.
type StorageError struct {
	Op        string
	Err       error
	Ambiguous bool
}

func (e *StorageError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("%s: outcome unknown: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Retryable reports whether the failed operation is known to have made no change.
func (e *StorageError) Retryable() bool { return !e.Ambiguous }

func isDomainError(err error) bool {
	var stock *InsufficientStockError
	switch {
	case errors.As(err, &stock):
		return true
	case errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrProductConflict),
		errors.Is(err, ErrProductConstraint),
		errors.Is(err, ErrInvalidQuantity):
		return true
	}
	return false
}

// isCheckViolation also catches sqlite CHECK failures, which the sqlite
// dialector leaves untranslated.
func isCheckViolation(err error) bool {
	if errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return true
	}
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintCheck
}
