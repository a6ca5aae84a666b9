package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/kitchenops/sessionbridge/internal/config"
	"github.com/kitchenops/sessionbridge/internal/health"
	"github.com/kitchenops/sessionbridge/internal/observability"
)

// App bundles the assembled process: the HTTP server, the observability
// runtime and the handles needed for an orderly shutdown.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	DB            *gorm.DB
	Redis         redis.UniversalClient
	Readiness     *health.ProbeRunner

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	startBackground func(context.Context) error
	stopBackground  func()
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	readiness *health.ProbeRunner,
	startBackground func(context.Context) error,
	stopBackground func(),
) *App {
	return &App{
		Config:                       cfg,
		Logger:                       logger,
		Server:                       server,
		Observability:                runtime,
		DB:                           db,
		Redis:                        redisClient,
		Readiness:                    readiness,
		ShutdownTimeout:              cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout:     cfg.ShutdownHTTPDrainTimeout,
		ShutdownObservabilityTimeout: cfg.ShutdownObservabilityTimeout,
		startBackground:              startBackground,
		stopBackground:               stopBackground,
	}
}

// StartBackgroundTasks restores a persisted session and starts the refresh
// ticker. A missing or dead session is not an error; the service just comes
// up signed out.
func (a *App) StartBackgroundTasks(ctx context.Context) error {
	if a.startBackground == nil {
		return nil
	}
	return a.startBackground(ctx)
}

// StopBackgroundTasks cancels the refresh ticker and detaches the provider
// listener. Safe to call more than once.
func (a *App) StopBackgroundTasks() {
	if a.stopBackground != nil {
		a.stopBackground()
	}
}

// Run restores any persisted session, then serves HTTP until the context is
// cancelled and shuts down in order: drain HTTP, stop background tasks,
// close stores, flush observability.
func (a *App) Run(ctx context.Context) error {
	if err := a.StartBackgroundTasks(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return a.Shutdown()
}

func (a *App) Shutdown() error {
	a.Logger.Info("shutting down",
		"drain_timeout", a.ShutdownHTTPDrainTimeout,
		"total_timeout", a.ShutdownTimeout,
	)
	ctx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
	defer cancel()

	var errs []error

	drainCtx, drainCancel := context.WithTimeout(ctx, a.ShutdownHTTPDrainTimeout)
	if err := a.Server.Shutdown(drainCtx); err != nil {
		errs = append(errs, err)
	}
	drainCancel()

	a.StopBackgroundTasks()

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	obsCtx, obsCancel := context.WithTimeout(ctx, a.ShutdownObservabilityTimeout)
	if err := a.Observability.Shutdown(obsCtx); err != nil {
		errs = append(errs, err)
	}
	obsCancel()

	return errors.Join(errs...)
}
