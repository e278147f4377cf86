package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sandeepkv93/storefront-inventory-service/internal/domain"
	"github.com/sandeepkv93/storefront-inventory-service/internal/observability"
)

type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	FindByID(ctx context.Context, id uint) (*domain.Product, error)
	ListAll(ctx context.Context) ([]domain.Product, error)
	// Purchase decrements stock under a row lock. The read, the stock check and
	// the write happen in one transaction, so concurrent purchases of the same
	// product serialize and stock never goes negative.
	Purchase(ctx context.Context, id uint, quantity int) (PurchaseReceipt, error)
}

type PurchaseReceipt struct {
	ProductID         uint
	ProductName       string
	QuantityPurchased int
	NewStock          int
	UpdatedAt         time.Time
}

type StoreConfig struct {
	// StatementTimeout bounds each repository call. Zero disables the bound.
	StatementTimeout time.Duration
	// LockTimeout bounds how long Purchase waits for a contended row lock on
	// postgres. Zero leaves the server default.
	LockTimeout time.Duration
}

type GormProductRepository struct {
	db     *gorm.DB
	cfg    StoreConfig
	now    func() time.Time
	commit func(tx *gorm.DB) error
}

func NewProductRepository(db *gorm.DB, cfg StoreConfig) ProductRepository {
	return newGormProductRepository(db, cfg)
}

func newGormProductRepository(db *gorm.DB, cfg StoreConfig) *GormProductRepository {
	return &GormProductRepository{
		db:     db,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		commit: func(tx *gorm.DB) error { return tx.Commit().Error },
	}
}

func (r *GormProductRepository) Create(ctx context.Context, product *domain.Product) error {
	ctx, cancel := r.withStatementTimeout(ctx)
	defer cancel()

	err := r.db.WithContext(ctx).Create(product).Error
	switch {
	case err == nil:
		observability.RecordRepositoryOperation(ctx, "product", "create", "success")
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		observability.RecordRepositoryOperation(ctx, "product", "create", "conflict")
		return ErrProductConflict
	case isCheckViolation(err):
		observability.RecordRepositoryOperation(ctx, "product", "create", "constraint")
		return ErrProductConstraint
	default:
		observability.RecordRepositoryOperation(ctx, "product", "create", "error")
		return &StorageError{Op: "create product", Err: err}
	}
}

func (r *GormProductRepository) FindByID(ctx context.Context, id uint) (*domain.Product, error) {
	ctx, cancel := r.withStatementTimeout(ctx)
	defer cancel()

	var product domain.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "product", "find_by_id", "not_found")
			return nil, ErrProductNotFound
		}
		observability.RecordRepositoryOperation(ctx, "product", "find_by_id", "error")
		return nil, &StorageError{Op: "find product", Err: err}
	}
	observability.RecordRepositoryOperation(ctx, "product", "find_by_id", "success")
	return &product, nil
}

func (r *GormProductRepository) ListAll(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := r.withStatementTimeout(ctx)
	defer cancel()

	products := make([]domain.Product, 0)
	if err := r.db.WithContext(ctx).Order("id asc").Find(&products).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "product", "list_all", "error")
		return nil, &StorageError{Op: "list products", Err: err}
	}
	if products == nil {
		products = []domain.Product{}
	}
	observability.RecordRepositoryOperation(ctx, "product", "list_all", "success")
	return products, nil
}

func (r *GormProductRepository) Purchase(ctx context.Context, id uint, quantity int) (PurchaseReceipt, error) {
	if quantity <= 0 {
		observability.RecordRepositoryOperation(ctx, "product", "purchase", "invalid")
		return PurchaseReceipt{}, ErrInvalidQuantity
	}
	ctx, cancel := r.withStatementTimeout(ctx)
	defer cancel()

	var (
		receipt  PurchaseReceipt
		lockedAt time.Time
	)
	err := r.inTx(ctx, "purchase", func(tx *gorm.DB) error {
		if err := r.applyLockTimeout(tx); err != nil {
			return err
		}
		var product domain.Product
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "name", "stock").
			Where("id = ?", id).
			Take(&product).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return err
		}
		lockedAt = time.Now()

		if product.Stock < quantity {
			return &InsufficientStockError{ProductID: id, Requested: quantity, Available: product.Stock}
		}

		now := r.now()
		newStock := product.Stock - quantity
		res := tx.Model(&domain.Product{}).
			Where("id = ?", id).
			Updates(map[string]any{"stock": newStock, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errors.New("locked product row was not updated")
		}
		receipt = PurchaseReceipt{
			ProductID:         product.ID,
			ProductName:       product.Name,
			QuantityPurchased: quantity,
			NewStock:          newStock,
			UpdatedAt:         now,
		}
		return nil
	})
	outcome := purchaseOutcome(err)
	if !lockedAt.IsZero() {
		observability.RecordPurchaseLockHold(ctx, outcome, time.Since(lockedAt))
	}
	observability.RecordRepositoryOperation(ctx, "product", "purchase", outcome)
	if err != nil {
		return PurchaseReceipt{}, err
	}
	return receipt, nil
}

func (r *GormProductRepository) withStatementTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.StatementTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.cfg.StatementTimeout)
}

func purchaseOutcome(err error) string {
	var (
		stock   *InsufficientStockError
		storage *StorageError
	)
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrProductNotFound):
		return "not_found"
	case errors.As(err, &stock):
		return "insufficient_stock"
	case errors.As(err, &storage) && storage.Ambiguous:
		return "outcome_unknown"
	default:
		return "error"
	}
}
