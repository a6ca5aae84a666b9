package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kitchenops/sessionbridge/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type appMetricsSet struct {
	signInCounter     metric.Int64Counter
	signOutCounter    metric.Int64Counter
	refreshCounter    metric.Int64Counter
	storeSyncCounter  metric.Int64Counter
	tokenStoreCounter metric.Int64Counter
	directoryCounter  metric.Int64Counter
	guardCounter      metric.Int64Counter
	rateLimitCounter  metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *appMetricsSet
)

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

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("sessionbridge")
	signIn, err := meter.Int64Counter("auth.signin.attempts")
	if err != nil {
		return nil, err
	}
	signOut, err := meter.Int64Counter("auth.signout.attempts")
	if err != nil {
		return nil, err
	}
	refresh, err := meter.Int64Counter("session.refresh.attempts")
	if err != nil {
		return nil, err
	}
	storeSync, err := meter.Int64Counter("store.sync.events")
	if err != nil {
		return nil, err
	}
	tokenStore, err := meter.Int64Counter("token_store.operations")
	if err != nil {
		return nil, err
	}
	directory, err := meter.Int64Counter("directory.lookups")
	if err != nil {
		return nil, err
	}
	guard, err := meter.Int64Counter("auth.guard.decisions")
	if err != nil {
		return nil, err
	}
	rateLimit, err := meter.Int64Counter("http.rate_limit.decisions")
	if err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = &appMetricsSet{
		signInCounter:     signIn,
		signOutCounter:    signOut,
		refreshCounter:    refresh,
		storeSyncCounter:  storeSync,
		tokenStoreCounter: tokenStore,
		directoryCounter:  directory,
		guardCounter:      guard,
		rateLimitCounter:  rateLimit,
	}
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func current() *appMetricsSet {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordSignIn(method, status string) {
	m := current()
	if m == nil {
		return
	}
	m.signInCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("status", status),
		),
	)
}

func RecordSignOut(status string) {
	m := current()
	if m == nil {
		return
	}
	m.signOutCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordSessionRefresh(status string) {
	m := current()
	if m == nil {
		return
	}
	m.refreshCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordStoreSync(action string) {
	m := current()
	if m == nil {
		return
	}
	m.storeSyncCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("action", action)))
}

func RecordTokenStoreOperation(ctx context.Context, backend, op, status string) {
	m := current()
	if m == nil {
		return
	}
	m.tokenStoreCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("operation", op),
			attribute.String("status", status),
		),
	)
}

func RecordGuardDecision(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.guardCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("outcome", outcome),
		),
	)
}

func RecordDirectoryLookup(ctx context.Context, entity, status string) {
	m := current()
	if m == nil {
		return
	}
	m.directoryCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("status", status),
		),
	)
}
