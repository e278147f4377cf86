package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sandeepkv93/storefront-inventory-service/internal/domain"
	"github.com/sandeepkv93/storefront-inventory-service/internal/repository"
)

type stubProductRepo struct {
	mu     sync.Mutex
	items  map[uint]domain.Product
	nextID uint
	calls  int

	createErr   error
	purchaseErr error
}

func (s *stubProductRepo) Create(_ context.Context, product *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.createErr != nil {
		return s.createErr
	}
	if s.items == nil {
		s.items = map[uint]domain.Product{}
	}
	for _, existing := range s.items {
		if existing.Name == product.Name {
			return repository.ErrProductConflict
		}
	}
	s.nextID++
	now := time.Now().UTC()
	product.ID = s.nextID
	product.CreatedAt, product.UpdatedAt = now, now
	s.items[product.ID] = *product
	return nil
}

func (s *stubProductRepo) FindByID(_ context.Context, id uint) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	product, ok := s.items[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := product
	return &cp, nil
}

func (s *stubProductRepo) ListAll(context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := make([]domain.Product, 0, len(s.items))
	for id := uint(1); id <= s.nextID; id++ {
		if p, ok := s.items[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubProductRepo) Purchase(_ context.Context, id uint, quantity int) (repository.PurchaseReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.purchaseErr != nil {
		return repository.PurchaseReceipt{}, s.purchaseErr
	}
	p, ok := s.items[id]
	if !ok {
		return repository.PurchaseReceipt{}, repository.ErrProductNotFound
	}
	if p.Stock < quantity {
		return repository.PurchaseReceipt{}, &repository.InsufficientStockError{ProductID: id, Requested: quantity, Available: p.Stock}
	}
	p.Stock -= quantity
	p.UpdatedAt = time.Now().UTC()
	s.items[id] = p
	return repository.PurchaseReceipt{ProductID: id, ProductName: p.Name, QuantityPurchased: quantity, NewStock: p.Stock, UpdatedAt: p.UpdatedAt}, nil
}

func (s *stubProductRepo) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newServiceDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&domain.Product{}, &domain.IdempotencyRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
