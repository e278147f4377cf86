package database

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newDatabaseTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func TestMigrateCreatesTablesAndPendingTablesEmpties(t *testing.T) {
	db := newDatabaseTestDB(t)

	pending, err := PendingTables(db)
	if err != nil {
		t.Fatalf("pending tables: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending tables before migrate, got %v", pending)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pending, err = PendingTables(db)
	if err != nil {
		t.Fatalf("pending tables after migrate: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending tables after migrate, got %v", pending)
	}
}

func TestSeedSampleCatalogIsIdempotent(t *testing.T) {
	db := newDatabaseTestDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()

	first, err := SeedSampleCatalog(ctx, db)
	if err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if first.CreatedProducts != len(SampleProducts()) || first.Noop {
		t.Fatalf("unexpected first seed report: %+v", first)
	}

	second, err := SeedSampleCatalog(ctx, db)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if second.CreatedProducts != 0 || !second.Noop || second.ExistingSkipped != len(SampleProducts()) {
		t.Fatalf("expected noop second seed, got %+v", second)
	}
}

func TestReadCatalogStats(t *testing.T) {
	db := newDatabaseTestDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()

	empty, err := ReadCatalogStats(ctx, db)
	if err != nil {
		t.Fatalf("stats on empty catalog: %v", err)
	}
	if empty.Products != 0 || empty.TotalStock != 0 || !empty.MaxPrice.IsZero() {
		t.Fatalf("unexpected empty stats: %+v", empty)
	}

	if _, err := SeedSampleCatalog(ctx, db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	stats, err := ReadCatalogStats(ctx, db)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}

	var wantStock int64
	categories := map[string]struct{}{}
	minPrice, maxPrice := SampleProducts()[0].Price, SampleProducts()[0].Price
	for _, p := range SampleProducts() {
		wantStock += int64(p.Stock)
		categories[p.Category] = struct{}{}
		minPrice = decimal.Min(minPrice, p.Price)
		maxPrice = decimal.Max(maxPrice, p.Price)
	}
	if stats.Products != int64(len(SampleProducts())) || stats.Categories != int64(len(categories)) {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.TotalStock != wantStock {
		t.Fatalf("total stock mismatch: got %d want %d", stats.TotalStock, wantStock)
	}
	if !stats.MinPrice.Equal(minPrice) || !stats.MaxPrice.Equal(maxPrice) {
		t.Fatalf("price range mismatch: got %s..%s want %s..%s", stats.MinPrice, stats.MaxPrice, minPrice, maxPrice)
	}
	if !stats.AvgPrice.GreaterThan(minPrice) || !stats.AvgPrice.LessThan(maxPrice) {
		t.Fatalf("average price %s outside range", stats.AvgPrice)
	}
}
