package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/kitchenops/sessionbridge/internal/bridge"
	"github.com/kitchenops/sessionbridge/internal/config"
	"github.com/kitchenops/sessionbridge/internal/facade"
	"github.com/kitchenops/sessionbridge/internal/health"
	"github.com/kitchenops/sessionbridge/internal/http/handler"
	"github.com/kitchenops/sessionbridge/internal/http/router"
	"github.com/kitchenops/sessionbridge/internal/provider"
	"github.com/kitchenops/sessionbridge/internal/repository"
	"github.com/kitchenops/sessionbridge/internal/service"
	"github.com/kitchenops/sessionbridge/internal/store"
	"github.com/kitchenops/sessionbridge/internal/tokenstore"
)

func ProvideProviderClient(cfg *config.Config) *provider.HTTPClient {
	return provider.NewHTTPClient(cfg.AuthBaseURL, cfg.AuthAPIKey, cfg.ProviderTimeout)
}

func ProvideAuthClient(client *provider.HTTPClient) provider.Client {
	return client
}

// ProvideOAuthBroker returns nil when Google OAuth is not configured; the
// handler serves 501 for the google routes in that case.
func ProvideOAuthBroker(cfg *config.Config, client *provider.HTTPClient) *provider.OAuthBroker {
	if cfg.GoogleClientID == "" {
		return nil
	}
	return provider.NewOAuthBroker(client, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
}

// ProvideRedis returns nil when no address is configured; the token store
// falls back to process memory.
func ProvideRedis(cfg *config.Config) redis.UniversalClient {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
}

func ProvideTokenStore(cfg *config.Config, redisClient redis.UniversalClient) tokenstore.Store {
	if redisClient != nil {
		return tokenstore.NewRedisStore(redisClient, cfg.StoragePrefix, cfg.TokenMaxAge)
	}
	return tokenstore.NewInMemoryStore(cfg.StoragePrefix, cfg.TokenMaxAge)
}

func ProvideDatabase(cfg *config.Config) (*gorm.DB, error) {
	return repository.OpenDatabase(cfg.DatabaseDriver, cfg.DatabaseDSN)
}

// ProvideDirectory layers the absence cache over the gorm repository so
// refresh ticks do not re-query rows known to be missing. Redis backs the
// cache when available; otherwise it stays process-local.
func ProvideDirectory(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) repository.DirectoryRepository {
	inner := repository.NewDirectoryRepository(db)
	if cfg.DirectoryAbsenceTTL <= 0 {
		return inner
	}
	var cache repository.AbsenceCache
	if redisClient != nil {
		cache = repository.NewRedisAbsenceCache(redisClient, cfg.StoragePrefix+"_absence")
	} else {
		cache = repository.NewInMemoryAbsenceCache()
	}
	return repository.NewCachedDirectory(inner, cache, cfg.DirectoryAbsenceTTL, nil)
}

func ProvideSessionStore() *store.SessionStore {
	return store.NewSessionStore()
}

func ProvideLegacyStore() *store.LegacyStore {
	return store.NewLegacyStore()
}

func ProvideFactory(directory repository.DirectoryRepository, tokens tokenstore.Store, logger *slog.Logger) *service.SessionFactory {
	return service.NewSessionFactory(directory, tokens, logger)
}

func ProvideValidator(client provider.Client, factory *service.SessionFactory, tokens tokenstore.Store, logger *slog.Logger) *service.SessionValidator {
	return service.NewSessionValidator(client, factory, tokens, logger)
}

func ProvideAuthService(
	cfg *config.Config,
	client provider.Client,
	factory *service.SessionFactory,
	validator *service.SessionValidator,
	tokens tokenstore.Store,
	sessions *store.SessionStore,
	legacy *store.LegacyStore,
	logger *slog.Logger,
) *service.AuthService {
	return service.NewAuthService(client, factory, validator, tokens, sessions, legacy, cfg.SessionRefreshInterval, logger)
}

func ProvideBridge(sessions *store.SessionStore, legacy *store.LegacyStore, factory *service.SessionFactory, logger *slog.Logger) *bridge.Bridge {
	return bridge.New(sessions, legacy, factory, nil, logger)
}

func ProvideFacade(sessions *store.SessionStore, auth *service.AuthService) *facade.Facade {
	return facade.New(sessions, auth)
}

func ProvideReadiness(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) *health.ProbeRunner {
	readiness := health.NewProbeRunner(2*cfg.ProviderTimeout, 5*cfg.ProviderTimeout)
	readiness.Register("database", health.DatabaseCheck(db))
	if redisClient != nil {
		readiness.Register("redis", health.RedisCheck(redisClient))
	}
	readiness.Register("provider", health.ProviderCheck(nil, cfg.AuthBaseURL, cfg.AuthAPIKey))
	return readiness
}

func ProvideAuthHandler(
	f *facade.Facade,
	auth *service.AuthService,
	br *bridge.Bridge,
	broker *provider.OAuthBroker,
	tokens tokenstore.Store,
	logger *slog.Logger,
) *handler.AuthHandler {
	return handler.NewAuthHandler(f, auth, br, broker, tokens, logger)
}

func ProvideRouter(cfg *config.Config, authHandler *handler.AuthHandler, f *facade.Facade, readiness *health.ProbeRunner) http.Handler {
	return router.NewRouter(router.Dependencies{
		AuthHandler:      authHandler,
		Views:            f,
		IsPublicRoute:    cfg.IsPublicRoute,
		APIRateLimitRPM:  cfg.APIRateLimitRPM,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		Readiness:        readiness,
		EnableOTelHTTP:   cfg.OTELTracesEnabled,
	})
}

// ProvideStartBackground is the startup hook wired into App: it restores a
// persisted session, if one is still live, before traffic is served.
func ProvideStartBackground(auth *service.AuthService) func(context.Context) error {
	return auth.Initialize
}

// ProvideStopBackground is the shutdown hook wired into App: it detaches
// the provider listener and stops the refresh ticker.
func ProvideStopBackground(auth *service.AuthService) func() {
	return auth.Close
}

func ProvideServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
