//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/LLINLU/memory-ai-v3-sub002/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogging,
	ProvideLogger,
	ProvideDomainConfig,
	ProvideCollector,
	ProvideAWSConfig,
	ProvideSessionStore,
	ProvideSessionRepository,
	ProvideHealthCheckers,
	ProvideSupabaseClient,
	ProvideTreeRepository,
	ProvideTreeGenerator,
	ProvideEventPublisher,
	ProvideCommandBus,
	ProvideQueryBus,
	ProvideJWTValidator,
	ProvideRateLimiter,
	ProvideErrorHandler,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
