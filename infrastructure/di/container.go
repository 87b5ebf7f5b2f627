package di

import (
	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/application/commands/bus"
	"github.com/LLINLU/memory-ai-v3-sub002/application/ports"
	querybus "github.com/LLINLU/memory-ai-v3-sub002/application/queries/bus"
	"github.com/LLINLU/memory-ai-v3-sub002/infrastructure/config"
	"github.com/LLINLU/memory-ai-v3-sub002/interfaces/http/rest"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/auth"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logging    *Logging
	Logger     *zap.Logger
	Sessions   ports.SessionRepository
	Trees      ports.TreeRepository
	Publisher  ports.EventPublisher
	Generator  ports.TreeGenerator
	CommandBus *bus.CommandBus
	QueryBus   *querybus.QueryBus
	Metrics    *observability.Collector
	Limiter    *auth.KeyedLimiter
	Router     *rest.Router
}
