package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/storefront-inventory-service/internal/app"
	"github.com/sandeepkv93/storefront-inventory-service/internal/config"
	"github.com/sandeepkv93/storefront-inventory-service/internal/database"
	"github.com/sandeepkv93/storefront-inventory-service/internal/health"
	"github.com/sandeepkv93/storefront-inventory-service/internal/http/handler"
	"github.com/sandeepkv93/storefront-inventory-service/internal/http/middleware"
	"github.com/sandeepkv93/storefront-inventory-service/internal/http/router"
	"github.com/sandeepkv93/storefront-inventory-service/internal/observability"
	"github.com/sandeepkv93/storefront-inventory-service/internal/repository"
	"github.com/sandeepkv93/storefront-inventory-service/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeDB,
	provideRedisClient,
	provideReadinessProbeRunner,
)

var RepositorySet = wire.NewSet(
	provideStoreConfig,
	repository.NewProductRepository,
)

var ServiceSet = wire.NewSet(
	service.NewCatalogService,
	service.NewIngestionService,
	service.NewPurchaseService,
	service.NewDBIdempotencyStore,
	wire.Bind(new(service.CatalogService), new(*service.CatalogServiceImpl)),
	wire.Bind(new(service.IngestionService), new(*service.IngestionServiceImpl)),
	wire.Bind(new(service.PurchaseService), new(*service.PurchaseServiceImpl)),
	wire.Bind(new(service.IdempotencyStore), new(*service.DBIdempotencyStore)),
)

var HTTPSet = wire.NewSet(
	handler.NewProductHandler,
	handler.NewPurchaseHandler,
	provideGlobalRateLimiter,
	providePurchaseRateLimiter,
	provideIdempotencyFactory,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(provideIdempotencyJanitor, provideApp)

// MigrationRunner backs `migrate up`: schema first, then the sample catalog
// when SEED_SAMPLE_CATALOG is set.
type MigrationRunner struct {
	cfg *config.Config
	db  *gorm.DB
}

func NewMigrationRunner(cfg *config.Config, db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{cfg: cfg, db: db}
}

func (m *MigrationRunner) DB() *gorm.DB { return m.db }

// Run returns one human-readable line per step it applied.
func (m *MigrationRunner) Run(ctx context.Context) ([]string, error) {
	db := m.db.WithContext(ctx)
	pending, err := database.PendingTables(db)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	details := []string{"schema migration applied"}
	if len(pending) > 0 {
		details = append(details, "created tables: "+strings.Join(pending, ", "))
	} else {
		details = append(details, "all tables already present; columns and indexes reconciled")
	}
	if m.cfg != nil && m.cfg.SeedSampleCatalog {
		report, err := database.SeedSampleCatalog(ctx, m.db)
		if err != nil {
			return nil, err
		}
		details = append(details, fmt.Sprintf("sample catalog seeded: created=%d skipped=%d", report.CreatedProducts, report.ExistingSkipped))
	}
	return details, nil
}

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	return observability.InitRuntime(context.Background(), cfg, bootstrapLogger)
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	return observability.InitLogger(cfg, runtime.LoggerProvider)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

func provideRuntimeDB(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	if cfg.SeedSampleCatalog {
		report, err := database.SeedSampleCatalog(context.Background(), db)
		if err != nil {
			return nil, err
		}
		logger.Info("sample catalog seeded", "created", report.CreatedProducts, "skipped", report.ExistingSkipped)
	}
	return db, nil
}

func provideRedisClient(cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	if !cfg.RateLimitRedisEnabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	observability.InstrumentRedisClient(client, logger)
	return client
}

func provideStoreConfig(cfg *config.Config) repository.StoreConfig {
	return repository.StoreConfig{
		StatementTimeout: cfg.DBStatementTimeout,
		LockTimeout:      cfg.DBLockTimeout,
	}
}

func provideGlobalRateLimiter(cfg *config.Config, redisClient redis.UniversalClient) router.GlobalRateLimiterFunc {
	return buildRateLimiter(cfg, redisClient, "api", cfg.APIRateLimitPerMin, middleware.FailOpen)
}

// Purchases fail closed: a blind spot in the limiter must not open the write path.
func providePurchaseRateLimiter(cfg *config.Config, redisClient redis.UniversalClient) router.PurchaseRateLimiterFunc {
	return buildRateLimiter(cfg, redisClient, "purchase", cfg.PurchaseRateLimitPerMin, middleware.FailClosed)
}

func buildRateLimiter(
	cfg *config.Config,
	redisClient redis.UniversalClient,
	scope string,
	perMin int,
	mode middleware.FailureMode,
) func(http.Handler) http.Handler {
	if cfg.RateLimitRedisEnabled && redisClient != nil {
		redisLimiter := middleware.NewRedisFixedWindowLimiter(redisClient, cfg.RateLimitRedisPrefix+":"+scope)
		return middleware.NewDistributedRateLimiter(redisLimiter, perMin, time.Minute, mode, scope).Middleware()
	}
	return middleware.NewRateLimiter(perMin, time.Minute, scope).Middleware()
}

func provideIdempotencyFactory(cfg *config.Config, store service.IdempotencyStore) router.IdempotencyMiddlewareFactory {
	if !cfg.IdempotencyEnabled {
		return nil
	}
	return middleware.NewIdempotencyMiddleware(store, cfg.IdempotencyTTL).Middleware
}

func provideRouterDependencies(
	productHandler *handler.ProductHandler,
	purchaseHandler *handler.PurchaseHandler,
	globalRateLimiter router.GlobalRateLimiterFunc,
	purchaseRateLimiter router.PurchaseRateLimiterFunc,
	idempotency router.IdempotencyMiddlewareFactory,
	readiness *health.ProbeRunner,
	cfg *config.Config,
) router.Dependencies {
	return router.Dependencies{
		ProductHandler:          productHandler,
		PurchaseHandler:         purchaseHandler,
		CORSOrigins:             cfg.CORSAllowedOrigins,
		APIRateLimitPerMin:      cfg.APIRateLimitPerMin,
		PurchaseRateLimitPerMin: cfg.PurchaseRateLimitPerMin,
		GlobalRateLimiter:       globalRateLimiter,
		PurchaseRateLimiter:     purchaseRateLimiter,
		Idempotency:             idempotency,
		Readiness:               readiness,
		EnableOTelHTTP:          cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideReadinessProbeRunner(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) *health.ProbeRunner {
	checkers := make([]health.Checker, 0, 2)
	if c := health.NewDBChecker(db); c != nil {
		checkers = append(checkers, c)
	}
	if cfg.RateLimitRedisEnabled {
		if c := health.NewRedisChecker(redisClient); c != nil {
			checkers = append(checkers, c)
		}
	}
	return health.NewProbeRunner(cfg.ReadinessProbeTimeout, cfg.ServerStartGracePeriod, checkers...)
}

func provideIdempotencyJanitor(cfg *config.Config, store *service.DBIdempotencyStore) app.IdempotencyJanitor {
	if !cfg.IdempotencyEnabled || !cfg.IdempotencyDBCleanupEnabled {
		return nil
	}
	return store
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	readiness *health.ProbeRunner,
	janitor app.IdempotencyJanitor,
) *app.App {
	return app.New(cfg, logger, server, runtime, db, redisClient, readiness, janitor)
}
