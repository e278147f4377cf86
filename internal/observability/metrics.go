package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sandeepkv93/storefront-inventory-service/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/exemplar"
)

const meterName = "storefront-inventory-service"

type AppMetrics struct {
	productOperationCounter   metric.Int64Counter
	productOperationDuration  metric.Float64Histogram
	repositoryOpsCounter      metric.Int64Counter
	purchaseOutcomeCounter    metric.Int64Counter
	purchaseUnits             metric.Float64Histogram
	purchaseLockHold          metric.Float64Histogram
	idempotencyCounter        metric.Int64Counter
	idempotencyCleanupCounter metric.Int64Counter
	idempotencyCleanupDeleted metric.Float64Histogram
	rateLimitDecisionCounter  metric.Int64Counter
	rateLimitRetryAfter       metric.Float64Histogram
	httpMiddlewareValidation  metric.Int64Counter
	healthCheckResultCounter  metric.Int64Counter
	healthCheckDuration       metric.Float64Histogram
	databaseStartupCounter    metric.Int64Counter
	databaseStartupDuration   metric.Float64Histogram
	toolCommandRuns           metric.Int64Counter
	toolCommandDuration       metric.Float64Histogram
	loadgenRequestsCounter    metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	latencyView := func(name string) sdkmetric.View {
		return sdkmetric.NewView(
			sdkmetric.Instrument{Name: name},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyBuckets}},
		)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithExemplarFilter(exemplar.TraceBasedFilter),
		sdkmetric.WithView(latencyView("product.operation.duration"), latencyView("purchase.lock_hold.duration")),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var (
		m    AppMetrics
		errs []error
	)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			errs = append(errs, fmt.Errorf("counter %s: %w", name, err))
		}
		return c
	}
	seconds := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name, metric.WithUnit("s"), metric.WithDescription(desc))
		if err != nil {
			errs = append(errs, fmt.Errorf("histogram %s: %w", name, err))
		}
		return h
	}
	plain := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name, metric.WithDescription(desc))
		if err != nil {
			errs = append(errs, fmt.Errorf("histogram %s: %w", name, err))
		}
		return h
	}

	m.productOperationCounter = counter("product.operation.events", "Catalog and purchase service operations by outcome")
	m.productOperationDuration = seconds("product.operation.duration", "Duration of catalog and purchase service operations in seconds")
	m.repositoryOpsCounter = counter("repository.operations", "Repository operations by outcome")
	m.purchaseOutcomeCounter = counter("purchase.outcomes", "Purchase results by outcome")
	m.purchaseUnits = plain("purchase.units", "Units requested per purchase attempt")
	m.purchaseLockHold = seconds("purchase.lock_hold.duration", "Time a purchase transaction held the product row lock")
	m.idempotencyCounter = counter("http.idempotency.events", "Idempotency middleware decisions")
	m.idempotencyCleanupCounter = counter("idempotency.cleanup.runs", "Expired idempotency record cleanup runs")
	m.idempotencyCleanupDeleted = plain("idempotency.cleanup.deleted_rows", "Rows deleted per idempotency cleanup run")
	m.rateLimitDecisionCounter = counter("http.rate_limit.decisions", "Rate limiter decisions")
	m.rateLimitRetryAfter = seconds("http.rate_limit.retry_after", "Retry-after duration in seconds for throttled requests")
	m.httpMiddlewareValidation = counter("http.middleware.validation.events", "Request validation results in middleware")
	m.healthCheckResultCounter = counter("health.check.results", "Health dependency check results")
	m.healthCheckDuration = seconds("health.check.duration", "Duration of health dependency checks in seconds")
	m.databaseStartupCounter = counter("database.startup.events", "Database connect, migrate and seed events")
	m.databaseStartupDuration = seconds("database.startup.duration", "Duration of database startup phases in seconds")
	m.toolCommandRuns = counter("tool.command.runs", "Operator tool command runs")
	m.toolCommandDuration = seconds("tool.command.duration", "Duration of operator tool commands in seconds")
	m.loadgenRequestsCounter = counter("loadgen.requests", "Requests issued by the load generator")

	if len(errs) > 0 {
		return nil, errs[0]
	}
	return &m, nil
}

func loadMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordProductOperation(ctx context.Context, operation, outcome string, duration time.Duration) {
	m := loadMetrics()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.productOperationCounter.Add(ctx, 1, attrs)
	m.productOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

func RecordRepositoryOperation(ctx context.Context, repository, operation, outcome string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.repositoryOpsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repository),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordPurchaseOutcome(ctx context.Context, outcome string, quantity int) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.purchaseOutcomeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if quantity > 0 {
		m.purchaseUnits.Record(ctx, float64(quantity), metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func RecordPurchaseLockHold(ctx context.Context, outcome string, duration time.Duration) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.purchaseLockHold.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordIdempotencyEvent(ctx context.Context, scope, outcome string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.idempotencyCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
	))
}

func RecordIdempotencyCleanupRun(ctx context.Context, status string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.idempotencyCleanupCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordIdempotencyCleanupDeletedRows(ctx context.Context, rows int64) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.idempotencyCleanupDeleted.Record(ctx, float64(rows))
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome, mode, keyType string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.rateLimitDecisionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
		attribute.String("mode", mode),
		attribute.String("key_type", keyType),
	))
}

func RecordRateLimitRetryAfter(ctx context.Context, scope, reason string, retryAfter time.Duration) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.rateLimitRetryAfter.Record(ctx, retryAfter.Seconds(), metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("reason", reason),
	))
}

func RecordMiddlewareValidationEvent(ctx context.Context, validator, outcome string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.httpMiddlewareValidation.Add(ctx, 1, metric.WithAttributes(
		attribute.String("validator", validator),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckResult(ctx context.Context, check, outcome string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.healthCheckResultCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckDuration(ctx context.Context, check string, duration time.Duration) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.healthCheckDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("check", check),
	))
}

func RecordDatabaseStartupEvent(ctx context.Context, phase, outcome string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.databaseStartupCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("outcome", outcome),
	))
}

func RecordDatabaseStartupDuration(ctx context.Context, phase string, duration time.Duration) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.databaseStartupDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("phase", phase),
	))
}

func RecordToolCommandRun(ctx context.Context, tool, command, status string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.toolCommandRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("command", command),
		attribute.String("status", status),
	))
}

func RecordToolCommandDuration(ctx context.Context, tool, command, status string, duration time.Duration) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.toolCommandDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("command", command),
		attribute.String("status", status),
	))
}

func RecordLoadgenRequest(ctx context.Context, statusClass, profile string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.loadgenRequestsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status_class", statusClass),
		attribute.String("profile", profile),
	))
}
