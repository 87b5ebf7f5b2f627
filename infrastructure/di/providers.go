package di

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/application/commands/bus"
	commandhandlers "github.com/LLINLU/memory-ai-v3-sub002/application/commands/handlers"
	"github.com/LLINLU/memory-ai-v3-sub002/application/ports"
	querybus "github.com/LLINLU/memory-ai-v3-sub002/application/queries/bus"
	queryhandlers "github.com/LLINLU/memory-ai-v3-sub002/application/queries/handlers"
	domainconfig "github.com/LLINLU/memory-ai-v3-sub002/domain/config"
	"github.com/LLINLU/memory-ai-v3-sub002/infrastructure/config"
	"github.com/LLINLU/memory-ai-v3-sub002/infrastructure/generation"
	"github.com/LLINLU/memory-ai-v3-sub002/infrastructure/messaging"
	"github.com/LLINLU/memory-ai-v3-sub002/infrastructure/messaging/eventbridge"
	"github.com/LLINLU/memory-ai-v3-sub002/infrastructure/persistence/dynamodb"
	"github.com/LLINLU/memory-ai-v3-sub002/infrastructure/persistence/memory"
	supabaserepo "github.com/LLINLU/memory-ai-v3-sub002/infrastructure/persistence/supabase"
	"github.com/LLINLU/memory-ai-v3-sub002/interfaces/http/rest"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/auth"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/observability"
)

// ServiceName identifies the service in metrics and traces
const ServiceName = "techtree-exploration"

// Logging bundles the logger with its adjustable level
type Logging struct {
	Logger *zap.Logger
	Level  zap.AtomicLevel
}

// SessionStore is a session repository that can report readiness
type SessionStore interface {
	ports.SessionRepository
	ports.HealthChecker
}

// HealthCheckers are pinged by the readiness endpoint
type HealthCheckers map[string]ports.HealthChecker

// ProvideLogging creates the logger; the cleanup flushes it
func ProvideLogging(cfg *config.Config) (*Logging, func(), error) {
	logger, level, err := config.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = logger.Sync() }
	return &Logging{Logger: logger, Level: level}, cleanup, nil
}

// ProvideLogger extracts the logger
func ProvideLogger(l *Logging) *zap.Logger {
	return l.Logger
}

// ProvideDomainConfig derives the exploration rules
func ProvideDomainConfig(cfg *config.Config) *domainconfig.DomainConfig {
	return cfg.DomainConfig()
}

// ProvideCollector creates the metrics collector
func ProvideCollector() *observability.Collector {
	return observability.NewCollector("techtree")
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideSessionStore picks the session repository named by the config
func ProvideSessionStore(
	cfg *config.Config,
	awsCfg aws.Config,
	domain *domainconfig.DomainConfig,
	collector *observability.Collector,
	logger *zap.Logger,
) (SessionStore, error) {
	switch cfg.SessionStore {
	case "memory":
		logger.Info("Using in-memory session store")
		return memory.NewSessionRepository(domain), nil
	case "dynamodb":
		client := awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
			if cfg.DynamoDBEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
			}
		})
		logger.Info("Using DynamoDB session store",
			zap.String("table", cfg.DynamoDBTable),
			zap.String("index", cfg.UserIndexName),
		)
		return dynamodb.NewSessionRepository(client, cfg.DynamoDBTable, cfg.UserIndexName, domain, collector, logger), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
}

// ProvideSessionRepository exposes the store as a repository port
func ProvideSessionRepository(store SessionStore) ports.SessionRepository {
	return store
}

// ProvideHealthCheckers lists the dependencies checked by /ready
func ProvideHealthCheckers(store SessionStore) HealthCheckers {
	return HealthCheckers{"sessions": store}
}

// ProvideSupabaseClient creates the Supabase client, nil when not configured
func ProvideSupabaseClient(cfg *config.Config) (*supabase.Client, error) {
	if !cfg.SupabaseEnabled() {
		return nil, nil
	}
	return supabaserepo.NewClient(cfg.SupabaseURL, cfg.SupabaseKey)
}

// ProvideTreeRepository stores saved trees in Supabase when configured
func ProvideTreeRepository(
	client *supabase.Client,
	cfg *config.Config,
	collector *observability.Collector,
	logger *zap.Logger,
) ports.TreeRepository {
	if client == nil {
		return memory.NewTreeRepository()
	}
	return supabaserepo.NewTreeRepository(client, cfg.TreesTable, collector, logger)
}

// ProvideTreeGenerator calls the generation edge function when configured
func ProvideTreeGenerator(cfg *config.Config, logger *zap.Logger) ports.TreeGenerator {
	if !cfg.SupabaseEnabled() {
		logger.Warn("Tree generation is not configured")
		return generation.Disabled{}
	}
	return generation.NewEdgeClient(generation.Config{
		BaseURL:     cfg.SupabaseURL,
		APIKey:      cfg.SupabaseKey,
		Function:    cfg.GenerateFunction,
		MaxFailures: cfg.GeneratorFailures,
		Cooldown:    cfg.GeneratorCooldown,
	}, &http.Client{}, logger)
}

// ProvideEventPublisher publishes to EventBridge when a bus is
// configured, in process otherwise
func ProvideEventPublisher(awsCfg aws.Config, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	if cfg.EventBusName == "" {
		return messaging.NewLocalPublisher(logger)
	}
	return eventbridge.NewPublisher(awseventbridge.NewFromConfig(awsCfg), cfg.EventBusName, logger)
}

// ProvideCommandBus creates a command bus with registered handlers
func ProvideCommandBus(
	sessions ports.SessionRepository,
	trees ports.TreeRepository,
	generator ports.TreeGenerator,
	publisher ports.EventPublisher,
	collector *observability.Collector,
	domain *domainconfig.DomainConfig,
	logger *zap.Logger,
) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(
		bus.TracingMiddleware(),
		bus.MetricsMiddleware(collector),
		bus.LoggingMiddleware(logger),
	)

	registrars := []interface{ Register(*bus.CommandBus) error }{
		commandhandlers.NewSessionHandler(sessions, trees, publisher, collector, domain, logger),
		commandhandlers.NewNodeHandler(sessions, publisher, collector, domain, logger),
		commandhandlers.NewGenerationHandler(sessions, generator, trees, publisher, collector, domain, logger),
	}
	for _, r := range registrars {
		if err := r.Register(commandBus); err != nil {
			return nil, err
		}
	}
	return commandBus, nil
}

// ProvideQueryBus creates a query bus with registered handlers
func ProvideQueryBus(
	sessions ports.SessionRepository,
	collector *observability.Collector,
	logger *zap.Logger,
) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus(
		querybus.TracingMiddleware(),
		querybus.MetricsMiddleware(collector),
		querybus.LoggingMiddleware(logger),
	)
	if err := queryhandlers.NewSessionQueryHandler(sessions, logger).Register(queryBus); err != nil {
		return nil, err
	}
	return queryBus, nil
}

// ProvideJWTValidator creates the token validator, nil when
// authentication is disabled
func ProvideJWTValidator(cfg *config.Config, logger *zap.Logger) (*auth.JWTValidator, error) {
	if !cfg.AuthEnabled() {
		logger.Warn("Authentication disabled, trusting the X-User-ID header")
		return nil, nil
	}
	var audience []string
	if cfg.JWTAudience != "" {
		audience = []string{cfg.JWTAudience}
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     cfg.JWTSecret,
		Issuer:        cfg.JWTIssuer,
		Audience:      audience,
	})
}

// ProvideRateLimiter creates the per-IP limiter
func ProvideRateLimiter(cfg *config.Config) *auth.KeyedLimiter {
	return auth.NewKeyedLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
}

// ProvideErrorHandler creates the HTTP error renderer
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *pkgerrors.ErrorHandler {
	return pkgerrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideRouter creates the HTTP router
func ProvideRouter(
	cfg *config.Config,
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errs *pkgerrors.ErrorHandler,
	validator *auth.JWTValidator,
	limiter *auth.KeyedLimiter,
	collector *observability.Collector,
	health HealthCheckers,
	logger *zap.Logger,
) *rest.Router {
	opts := rest.Options{
		ServiceName:    ServiceName,
		AllowedOrigins: cfg.AllowedOrigins,
		Validator:      validator,
		Tracing:        cfg.EnableTracing,
		Health:         health,
	}
	if cfg.RateLimitPerMinute > 0 {
		opts.Limiter = limiter
	}
	if cfg.EnableMetrics {
		opts.Metrics = collector
	}
	return rest.NewRouter(commandBus, queryBus, errs, opts, logger)
}
