package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sandeepkv93/storefront-inventory-service/internal/database"
	"github.com/sandeepkv93/storefront-inventory-service/internal/health"
	"github.com/sandeepkv93/storefront-inventory-service/internal/http/handler"
	"github.com/sandeepkv93/storefront-inventory-service/internal/http/middleware"
	"github.com/sandeepkv93/storefront-inventory-service/internal/repository"
	"github.com/sandeepkv93/storefront-inventory-service/internal/service"
)

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
	Meta struct {
		RequestID string `json:"request_id"`
	} `json:"meta"`
}

func newRouterTestDB(t *testing.T) *gorm.DB {
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
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestRouter(t *testing.T, db *gorm.DB, withIdempotency bool) http.Handler {
	t.Helper()
	repo := repository.NewProductRepository(db, repository.StoreConfig{StatementTimeout: 10 * time.Second})
	dep := Dependencies{
		ProductHandler:          handler.NewProductHandler(service.NewCatalogService(repo), service.NewIngestionService(repo)),
		PurchaseHandler:         handler.NewPurchaseHandler(service.NewPurchaseService(repo)),
		CORSOrigins:             []string{"http://shop.local"},
		APIRateLimitPerMin:      1000,
		PurchaseRateLimitPerMin: 1000,
		Readiness:               health.NewProbeRunner(time.Second, 0, health.NewDBChecker(db)),
	}
	if withIdempotency {
		dep.Idempotency = middleware.NewIdempotencyMiddleware(service.NewDBIdempotencyStore(db), time.Hour).Middleware
	}
	return NewRouter(dep)
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.5:4000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env testEnvelope
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode envelope: %v (body %s)", method, path, err, rr.Body.String())
		}
	}
	return rr, env
}

func createProduct(t *testing.T, h http.Handler, name string, stock int) uint {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q,"category":"Electronics","price":49.90,"stock":%d}`, name, stock)
	rr, env := doRequest(t, h, http.MethodPost, "/api/v1/products", body, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create %s: expected 201, got %d: %s", name, rr.Code, rr.Body.String())
	}
	var data struct {
		Product struct {
			ID uint `json:"id"`
		} `json:"product"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode created product: %v", err)
	}
	return data.Product.ID
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestRouter(t, newRouterTestDB(t), false)

	rr, env := doRequest(t, h, http.MethodGet, "/health/live", "", nil)
	if rr.Code != http.StatusOK || !env.Success {
		t.Fatalf("live: %d %s", rr.Code, rr.Body.String())
	}
	rr, env = doRequest(t, h, http.MethodGet, "/health/ready", "", nil)
	if rr.Code != http.StatusOK || !env.Success {
		t.Fatalf("ready: %d %s", rr.Code, rr.Body.String())
	}
	if env.Meta.RequestID == "" {
		t.Fatal("expected request id in meta")
	}
}

func TestReadyReportsMissingSchema(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	h := NewRouter(Dependencies{Readiness: health.NewProbeRunner(time.Second, 0, health.NewDBChecker(db)), APIRateLimitPerMin: 10, PurchaseRateLimitPerMin: 10})
	rr, env := doRequest(t, h, http.MethodGet, "/health/ready", "", nil)
	if rr.Code != http.StatusServiceUnavailable || env.Error == nil || env.Error.Code != "DEPENDENCY_UNREADY" {
		t.Fatalf("expected 503 DEPENDENCY_UNREADY, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestCatalogLifecycle(t *testing.T) {
	h := newTestRouter(t, newRouterTestDB(t), false)

	first := createProduct(t, h, "Mechanical Keyboard", 3)
	second := createProduct(t, h, "Wireless Mouse", 0)

	rr, env := doRequest(t, h, http.MethodGet, "/api/v1/products", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d", rr.Code)
	}
	var products []struct {
		ID    uint   `json:"id"`
		Name  string `json:"name"`
		Price string `json:"price"`
		Stock int    `json:"stock"`
	}
	if err := json.Unmarshal(env.Data, &products); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(products) != 2 || products[0].ID != first || products[1].ID != second {
		t.Fatalf("expected products ordered by id, got %+v", products)
	}
	if products[0].Price != "49.9" {
		t.Fatalf("expected decimal price string, got %q", products[0].Price)
	}

	rr, _ = doRequest(t, h, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", first), "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: %d", rr.Code)
	}

	rr, env = doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/v1/products/%d/purchase", first), `{"quantity":2}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("purchase: %d %s", rr.Code, rr.Body.String())
	}
	var receipt struct {
		Message           string `json:"message"`
		ProductID         uint   `json:"product_id"`
		QuantityPurchased int    `json:"quantity_purchased"`
		NewStock          int    `json:"new_stock"`
	}
	if err := json.Unmarshal(env.Data, &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receipt.ProductID != first || receipt.QuantityPurchased != 2 || receipt.NewStock != 1 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if !strings.Contains(receipt.Message, "Mechanical Keyboard") {
		t.Fatalf("expected product name in message, got %q", receipt.Message)
	}

	rr, env = doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/v1/products/%d/purchase", first), `{"quantity":2}`, nil)
	if rr.Code != http.StatusConflict || env.Error == nil || env.Error.Code != "INSUFFICIENT_STOCK" {
		t.Fatalf("expected insufficient stock, got %d %s", rr.Code, rr.Body.String())
	}
	if env.Error.Details["available"] != float64(1) || env.Error.Details["requested"] != float64(2) {
		t.Fatalf("unexpected details: %+v", env.Error.Details)
	}

	rr, _ = doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/v1/products/%d/purchase", first), "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected default quantity purchase to succeed, got %d %s", rr.Code, rr.Body.String())
	}
	rr, env = doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/v1/products/%d/purchase", first), "", nil)
	if rr.Code != http.StatusConflict || env.Error.Details["available"] != float64(0) {
		t.Fatalf("expected sold out, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestCreateRejectsDuplicateAndInvalid(t *testing.T) {
	h := newTestRouter(t, newRouterTestDB(t), false)
	createProduct(t, h, "Yoga Mat", 5)

	rr, env := doRequest(t, h, http.MethodPost, "/api/v1/products", `{"name":"Yoga Mat","category":"Sports","price":"22.00","stock":1}`, nil)
	if rr.Code != http.StatusConflict || env.Error.Code != "CONFLICT" {
		t.Fatalf("expected duplicate conflict, got %d %s", rr.Code, rr.Body.String())
	}
	rr, env = doRequest(t, h, http.MethodPost, "/api/v1/products", `{"name":"Mat","category":"Sports","price":0,"stock":1}`, nil)
	if rr.Code != http.StatusBadRequest || env.Error.Details["field"] != "price" {
		t.Fatalf("expected price validation error, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRoutingErrors(t *testing.T) {
	h := newTestRouter(t, newRouterTestDB(t), false)

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		headers map[string]string
		status  int
		code    string
	}{
		{"unknown route", http.MethodGet, "/api/v1/unknown", "", nil, http.StatusNotFound, "NOT_FOUND"},
		{"missing product", http.MethodGet, "/api/v1/products/999", "", nil, http.StatusNotFound, "NOT_FOUND"},
		{"bad id", http.MethodGet, "/api/v1/products/abc", "", nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"zero id", http.MethodPost, "/api/v1/products/0/purchase", "", nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"purchase missing", http.MethodPost, "/api/v1/products/999/purchase", "", nil, http.StatusNotFound, "NOT_FOUND"},
		{"method", http.MethodDelete, "/api/v1/products/1", "", nil, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"media type", http.MethodPost, "/api/v1/products", "name=x", map[string]string{"Content-Type": "application/x-www-form-urlencoded"}, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr, env := doRequest(t, h, tc.method, tc.path, tc.body, tc.headers)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if env.Success || env.Error == nil || env.Error.Code != tc.code {
				t.Fatalf("expected error code %s, got %s", tc.code, rr.Body.String())
			}
		})
	}
}

func TestPurchaseIdempotentReplay(t *testing.T) {
	h := newTestRouter(t, newRouterTestDB(t), true)
	id := createProduct(t, h, "Espresso Machine", 5)
	path := fmt.Sprintf("/api/v1/products/%d/purchase", id)
	key := map[string]string{"Idempotency-Key": "order-7781"}

	rr1, env1 := doRequest(t, h, http.MethodPost, path, `{"quantity":2}`, key)
	rr2, env2 := doRequest(t, h, http.MethodPost, path, `{"quantity":2}`, key)
	if rr1.Code != http.StatusOK || rr2.Code != http.StatusOK {
		t.Fatalf("expected both 200, got %d and %d", rr1.Code, rr2.Code)
	}
	if rr2.Header().Get("X-Idempotency-Replayed") != "true" {
		t.Fatal("expected replay header on retry")
	}
	if !bytes.Equal(env1.Data, env2.Data) {
		t.Fatalf("expected identical replay, got %s vs %s", env1.Data, env2.Data)
	}

	rr3, env3 := doRequest(t, h, http.MethodPost, path, `{"quantity":1}`, key)
	if rr3.Code != http.StatusConflict || env3.Error.Code != "CONFLICT" {
		t.Fatalf("expected key reuse conflict, got %d %s", rr3.Code, rr3.Body.String())
	}

	rr, env := doRequest(t, h, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", id), "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: %d", rr.Code)
	}
	var p struct {
		Stock int `json:"stock"`
	}
	_ = json.Unmarshal(env.Data, &p)
	if p.Stock != 3 {
		t.Fatalf("expected a single decrement, stock=%d", p.Stock)
	}
}

func TestConcurrentPurchasesNeverOversell(t *testing.T) {
	h := newTestRouter(t, newRouterTestDB(t), false)
	const stock, buyers, qty = 7, 12, 2
	id := createProduct(t, h, "Limited Edition Print", stock)
	path := fmt.Sprintf("/api/v1/products/%d/purchase", id)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	start := make(chan struct{})
	for range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(fmt.Sprintf(`{"quantity":%d}`, qty)))
			req.Header.Set("Content-Type", "application/json")
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			mu.Lock()
			defer mu.Unlock()
			switch rr.Code {
			case http.StatusOK:
				succeeded++
			case http.StatusConflict:
				rejected++
			default:
				t.Errorf("unexpected status %d: %s", rr.Code, rr.Body.String())
			}
		}()
	}
	close(start)
	wg.Wait()

	if succeeded != stock/qty || rejected != buyers-stock/qty {
		t.Fatalf("expected %d successes, got %d (rejected %d)", stock/qty, succeeded, rejected)
	}
	_, env := doRequest(t, h, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", id), "", nil)
	var p struct {
		Stock int `json:"stock"`
	}
	_ = json.Unmarshal(env.Data, &p)
	if p.Stock != stock-(stock/qty)*qty {
		t.Fatalf("expected final stock %d, got %d", stock-(stock/qty)*qty, p.Stock)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(t, newRouterTestDB(t), false)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products", nil)
	req.Header.Set("Origin", "http://shop.local")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://shop.local" {
		t.Fatalf("unexpected allow origin: %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}
