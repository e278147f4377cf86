package migrate

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sandeepkv93/storefront-inventory-service/internal/config"
	"github.com/sandeepkv93/storefront-inventory-service/internal/database"
	"github.com/sandeepkv93/storefront-inventory-service/internal/di"
	"github.com/sandeepkv93/storefront-inventory-service/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestPlanThenUpThenStatus(t *testing.T) {
	runner := di.NewMigrationRunner(&config.Config{}, newTestDB(t))
	ctx := context.Background()

	details, err := plan(ctx, runner)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	joined := strings.Join(details, "\n")
	if !strings.Contains(joined, "would create table products") || !strings.Contains(joined, "would create table idempotency_records") {
		t.Fatalf("expected both tables in plan, got %q", joined)
	}

	details, err = status(ctx, runner)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(strings.Join(details, "\n"), "pending tables") {
		t.Fatalf("expected pending tables before up, got %+v", details)
	}

	if _, err := up(ctx, runner); err != nil {
		t.Fatalf("up: %v", err)
	}
	details, err = status(ctx, runner)
	if err != nil {
		t.Fatalf("status after up: %v", err)
	}
	if !strings.Contains(strings.Join(details, "\n"), "migrations: up to date") {
		t.Fatalf("expected up to date after migrate, got %+v", details)
	}

	details, err = up(ctx, runner)
	if err != nil {
		t.Fatalf("second up: %v", err)
	}
	if !strings.Contains(strings.Join(details, "\n"), "already present") {
		t.Fatalf("expected idempotent up, got %+v", details)
	}
}

func TestUpSeedsSampleCatalogWhenEnabled(t *testing.T) {
	db := newTestDB(t)
	runner := di.NewMigrationRunner(&config.Config{SeedSampleCatalog: true}, db)

	details, err := up(context.Background(), runner)
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	joined := strings.Join(details, "\n")
	if !strings.Contains(joined, "created tables: ") || !strings.Contains(joined, "sample catalog seeded") {
		t.Fatalf("expected schema and seed steps, got %q", joined)
	}
	var count int64
	if err := db.Model(&domain.Product{}).Count(&count).Error; err != nil {
		t.Fatalf("count products: %v", err)
	}
	if count != int64(len(database.SampleProducts())) {
		t.Fatalf("expected %d products, got %d", len(database.SampleProducts()), count)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"up", "status", "plan"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Fatalf("missing subcommand %s: %v", name, err)
		}
	}
}
