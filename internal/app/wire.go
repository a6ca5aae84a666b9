//go:build wireinject
// +build wireinject

package app

import (
	"context"
	"log/slog"

	"github.com/google/wire"

	"github.com/kitchenops/sessionbridge/internal/config"
	"github.com/kitchenops/sessionbridge/internal/observability"
)

func InitializeApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	wire.Build(
		observability.InitRuntime,
		ProvideProviderClient,
		ProvideAuthClient,
		ProvideOAuthBroker,
		ProvideRedis,
		ProvideTokenStore,
		ProvideDatabase,
		ProvideDirectory,
		ProvideSessionStore,
		ProvideLegacyStore,
		ProvideFactory,
		ProvideValidator,
		ProvideAuthService,
		ProvideBridge,
		ProvideFacade,
		ProvideReadiness,
		ProvideAuthHandler,
		ProvideRouter,
		ProvideServer,
		ProvideStartBackground,
		ProvideStopBackground,
		New,
	)
	return nil, nil
}
