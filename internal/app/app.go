package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/sandeepkv93/storefront-inventory-service/internal/config"
	"github.com/sandeepkv93/storefront-inventory-service/internal/health"
	"github.com/sandeepkv93/storefront-inventory-service/internal/observability"
)

// IdempotencyJanitor purges expired idempotency records until ctx is done.
type IdempotencyJanitor interface {
	RunCleanupLoop(ctx context.Context, interval time.Duration, batchSize int, logger *slog.Logger)
}

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	DB            *gorm.DB
	Redis         redis.UniversalClient
	Readiness     *health.ProbeRunner
	Janitor       IdempotencyJanitor
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	readiness *health.ProbeRunner,
	janitor IdempotencyJanitor,
) *App {
	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		DB:            db,
		Redis:         redisClient,
		Readiness:     readiness,
		Janitor:       janitor,
	}
}

// Run serves HTTP until ctx is cancelled or the listener fails, then drains.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		a.Logger.Info("server starting", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if a.Janitor != nil && a.Config != nil && a.Config.IdempotencyDBCleanupEnabled {
		g.Go(func() error {
			a.Janitor.RunCleanupLoop(gctx, a.Config.IdempotencyDBCleanupInterval, a.Config.IdempotencyDBCleanupBatch, a.Logger)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(gctx), a.shutdownTimeout())
		defer shutdownCancel()
		return a.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown drains HTTP first, then flushes telemetry and closes the stores.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	httpTimeout := 10 * time.Second
	if a.Config != nil && a.Config.ShutdownHTTPDrainTimeout > 0 {
		httpTimeout = a.Config.ShutdownHTTPDrainTimeout
	}
	httpCtx, httpCancel := context.WithTimeout(ctx, httpTimeout)
	if err := a.Server.Shutdown(httpCtx); err != nil {
		a.Logger.Error("failed to shutdown http server", "error", err)
		errs = append(errs, err)
	}
	httpCancel()

	if a.Observability != nil {
		obsTimeout := 8 * time.Second
		if a.Config != nil && a.Config.ShutdownObservabilityTimeout > 0 {
			obsTimeout = a.Config.ShutdownObservabilityTimeout
		}
		obsCtx, obsCancel := context.WithTimeout(ctx, obsTimeout)
		if err := a.Observability.Shutdown(obsCtx); err != nil {
			a.Logger.Error("failed to shutdown observability", "error", err)
			errs = append(errs, err)
		}
		obsCancel()
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("failed to close redis client", "error", err)
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Logger.Error("failed to close database connection", "error", err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (a *App) shutdownTimeout() time.Duration {
	if a.Config != nil && a.Config.ShutdownTimeout > 0 {
		return a.Config.ShutdownTimeout
	}
	return 20 * time.Second
}
