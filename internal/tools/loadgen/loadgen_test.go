package loadgen

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sandeepkv93/storefront-inventory-service/internal/database"
	"github.com/sandeepkv93/storefront-inventory-service/internal/http/handler"
	"github.com/sandeepkv93/storefront-inventory-service/internal/http/middleware"
	"github.com/sandeepkv93/storefront-inventory-service/internal/http/router"
	"github.com/sandeepkv93/storefront-inventory-service/internal/repository"
	"github.com/sandeepkv93/storefront-inventory-service/internal/service"
)

func newCatalogServer(t *testing.T, purchasePerMin int) *httptest.Server {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := repository.NewProductRepository(db, repository.StoreConfig{StatementTimeout: 10 * time.Second})
	idem := middleware.NewIdempotencyMiddleware(service.NewDBIdempotencyStore(db), time.Hour)
	h := router.NewRouter(router.Dependencies{
		ProductHandler:          handler.NewProductHandler(service.NewCatalogService(repo), service.NewIngestionService(repo)),
		PurchaseHandler:         handler.NewPurchaseHandler(service.NewPurchaseService(repo)),
		APIRateLimitPerMin:      100000,
		PurchaseRateLimitPerMin: purchasePerMin,
		Idempotency:             idem.Middleware,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestRaceDoesNotOversell(t *testing.T) {
	srv := newCatalogServer(t, 100000)
	res, err := Race(context.Background(), RaceConfig{BaseURL: srv.URL, Stock: 5, Buyers: 8, Quantity: 2, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("race: %v (result %+v)", err, res)
	}
	if res.Succeeded != 2 || res.Insufficient != 6 {
		t.Fatalf("expected 2 successes and 6 rejections, got %+v", res)
	}
	if res.FinalStock != 1 {
		t.Fatalf("expected final stock 1, got %d", res.FinalStock)
	}
}

func TestRaceCountsRateLimitedBuyers(t *testing.T) {
	srv := newCatalogServer(t, 3)
	res, err := Race(context.Background(), RaceConfig{BaseURL: srv.URL, Stock: 10, Buyers: 6, Quantity: 1, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("race: %v", err)
	}
	if res.RateLimited != 3 || res.Succeeded != 3 || res.FinalStock != 7 {
		t.Fatalf("unexpected result with throttling: %+v", res)
	}
}

func TestRaceRejectsInvalidConfig(t *testing.T) {
	if _, err := Race(context.Background(), RaceConfig{Stock: 1, Buyers: 0, Quantity: 1}); err == nil {
		t.Fatal("expected error for zero buyers")
	}
}

func TestRaceResultVerify(t *testing.T) {
	tests := []struct {
		name string
		res  RaceResult
		ok   bool
	}{
		{"exact", RaceResult{Stock: 10, Quantity: 3, Buyers: 5, Succeeded: 3, FinalStock: 1}, true},
		{"oversold", RaceResult{Stock: 10, Quantity: 3, Buyers: 5, Succeeded: 4, FinalStock: -2}, false},
		{"lost update", RaceResult{Stock: 10, Quantity: 3, Buyers: 5, Succeeded: 3, FinalStock: 4}, false},
		{"under served", RaceResult{Stock: 10, Quantity: 3, Buyers: 5, Succeeded: 2, FinalStock: 4}, false},
		{"throttled", RaceResult{Stock: 10, Quantity: 3, Buyers: 5, Succeeded: 2, RateLimited: 1, FinalStock: 4}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.res.Verify(); (err == nil) != tc.ok {
				t.Fatalf("Verify() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestRunMixedProfileAgainstCatalog(t *testing.T) {
	srv := newCatalogServer(t, 100000)
	client := newAPIClient(srv.URL, srv.Client())
	if _, err := client.createProduct(context.Background(), "Desk Lamp", "Home", "19.99", 1000); err != nil {
		t.Fatalf("create product: %v", err)
	}

	res, err := Run(context.Background(), Config{
		BaseURL:     srv.URL,
		Profile:     "purchase-heavy",
		Duration:    300 * time.Millisecond,
		RPS:         100,
		Concurrency: 4,
		Seed:        7,
		HTTPClient:  srv.Client(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.TotalRequests == 0 || res.Status2xx == 0 {
		t.Fatalf("expected successful traffic, got %+v", res)
	}
	if res.Status5xx != 0 {
		t.Fatalf("unexpected server errors: %+v", res)
	}
}

func TestRunRejectsUnknownProfile(t *testing.T) {
	if _, err := Run(context.Background(), Config{Profile: "auth"}); err == nil || !strings.Contains(err.Error(), "unknown profile") {
		t.Fatalf("expected unknown profile error, got %v", err)
	}
}

func TestNextJobErrorHeavyTargetsRejectedPaths(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for range 50 {
		j := nextJob("error-heavy", []uint{1}, rng)
		if j.idempotencyKey != "" {
			t.Fatalf("error-heavy jobs should not carry idempotency keys: %+v", j)
		}
		if j.method == http.MethodPost && !strings.HasSuffix(j.path, "/purchase") {
			t.Fatalf("unexpected post path: %s", j.path)
		}
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{200: "2xx", 201: "2xx", 404: "4xx", 429: "4xx", 503: "5xx", 302: "other"}
	for status, want := range cases {
		if got := statusClass(status); got != want {
			t.Fatalf("statusClass(%d) = %s, want %s", status, got, want)
		}
	}
}
