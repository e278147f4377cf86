package repository

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sandeepkv93/storefront-inventory-service/internal/domain"
)

// newRepositoryDBForTest opens a migrated in-memory sqlite database. A single
// connection means transactions run one at a time, which is how sqlite gives
// the purchase path the same serialization postgres gets from row locks.
func newRepositoryDBForTest(t *testing.T) *gorm.DB {
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

	if err := db.AutoMigrate(&domain.Product{}); err != nil {
		t.Fatalf("migrate product: %v", err)
	}
	return db
}

func mustCreateProduct(t *testing.T, repo ProductRepository, name string, price string, stock int) *domain.Product {
	t.Helper()
	p := &domain.Product{
		Name:     name,
		Category: "Test",
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
	}
	if err := repo.Create(t.Context(), p); err != nil {
		t.Fatalf("create product %q: %v", name, err)
	}
	return p
}
