package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/storefront-inventory-service/internal/health"
	"github.com/sandeepkv93/storefront-inventory-service/internal/http/handler"
	"github.com/sandeepkv93/storefront-inventory-service/internal/http/middleware"
	"github.com/sandeepkv93/storefront-inventory-service/internal/http/response"
)

const (
	// PurchaseIdempotencyScope namespaces Idempotency-Key values for the purchase route.
	PurchaseIdempotencyScope = "products.purchase"

	maxRequestBodyBytes = 64 << 10
)

type Dependencies struct {
	ProductHandler          *handler.ProductHandler
	PurchaseHandler         *handler.PurchaseHandler
	CORSOrigins             []string
	APIRateLimitPerMin      int
	PurchaseRateLimitPerMin int
	GlobalRateLimiter       GlobalRateLimiterFunc
	PurchaseRateLimiter     PurchaseRateLimiterFunc
	Idempotency             IdempotencyMiddlewareFactory
	Readiness               *health.ProbeRunner
	EnableOTelHTTP          bool
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler
type PurchaseRateLimiterFunc func(http.Handler) http.Handler
type IdempotencyMiddlewareFactory func(scope string) func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(maxRequestBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	globalLimiter := dep.GlobalRateLimiter
	if globalLimiter == nil {
		globalLimiter = middleware.NewRateLimiter(dep.APIRateLimitPerMin, time.Minute, "api").Middleware()
	}
	purchaseLimiter := dep.PurchaseRateLimiter
	if purchaseLimiter == nil {
		purchaseLimiter = middleware.NewRateLimiter(dep.PurchaseRateLimitPerMin, time.Minute, "purchase").Middleware()
	}

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Use(globalLimiter)
		r.Use(middleware.RequireJSON)

		r.Get("/", dep.ProductHandler.List)
		r.Post("/", dep.ProductHandler.Create)
		r.Get("/{id}", dep.ProductHandler.GetByID)

		purchaseChain := []func(http.Handler) http.Handler{purchaseLimiter}
		if dep.Idempotency != nil {
			purchaseChain = append(purchaseChain, dep.Idempotency(PurchaseIdempotencyScope))
		}
		r.With(purchaseChain...).Post("/{id}/purchase", dep.PurchaseHandler.Purchase)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
