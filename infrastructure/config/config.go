package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domainconfig "github.com/LLINLU/memory-ai-v3-sub002/domain/config"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment"`
	LogLevel      string `yaml:"log_level"`

	// Session storage: "memory" or "dynamodb"
	SessionStore     string `yaml:"session_store"`
	AWSRegion        string `yaml:"aws_region"`
	DynamoDBTable    string `yaml:"dynamodb_table"`
	DynamoDBEndpoint string `yaml:"dynamodb_endpoint"`
	UserIndexName    string `yaml:"user_index_name"` // GSI1: user, most recent first

	// Outbound events, in-process when EventBusName is empty
	EventBusName string `yaml:"event_bus_name"`

	// Supabase backend tables and edge functions
	SupabaseURL       string        `yaml:"supabase_url"`
	SupabaseKey       string        `yaml:"supabase_key"`
	TreesTable        string        `yaml:"trees_table"`
	GenerateFunction  string        `yaml:"generate_function"`
	GeneratorFailures uint32        `yaml:"generator_failures"` // consecutive failures that open the breaker
	GeneratorCooldown time.Duration `yaml:"generator_cooldown"`

	// Authentication
	JWTSecret   string `yaml:"jwt_secret"`
	JWTIssuer   string `yaml:"jwt_issuer"`
	JWTAudience string `yaml:"jwt_audience"`

	// Rate limiting per client IP
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
	RateLimitBurst     int `yaml:"rate_limit_burst"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	// Exploration rules
	MaxDepth           int           `yaml:"max_depth"`
	DetailLevel        int           `yaml:"detail_level"`
	MaxHistoryEntries  int           `yaml:"max_history_entries"`
	GenerationTimeout  time.Duration `yaml:"generation_timeout"`
	MaxConflictRetries int           `yaml:"max_conflict_retries"`

	// Feature flags
	EnableMetrics bool    `yaml:"enable_metrics"`
	EnableTracing bool    `yaml:"enable_tracing"`
	OTLPEndpoint  string  `yaml:"otlp_endpoint"`
	SampleRate    float64 `yaml:"sample_rate"`

	// File the YAML overlay was read from, empty when none
	File string `yaml:"-"`
}

// defaults returns the configuration used when nothing else is set
func defaults() *Config {
	domain := domainconfig.DefaultDomainConfig()
	return &Config{
		ServerAddress:      ":8080",
		Environment:        "development",
		LogLevel:           "info",
		SessionStore:       "memory",
		AWSRegion:          "us-east-1",
		DynamoDBTable:      "exploration-sessions",
		UserIndexName:      "GSI1",
		TreesTable:         "technology_trees",
		GenerateFunction:   "generate-tree",
		GeneratorFailures:  5,
		GeneratorCooldown:  30 * time.Second,
		JWTAudience:        "authenticated",
		RateLimitPerMinute: 120,
		RateLimitBurst:     30,
		AllowedOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		MaxDepth:           domain.MaxDepth,
		DetailLevel:        domain.DetailLevel,
		MaxHistoryEntries:  domain.MaxHistoryEntries,
		GenerationTimeout:  domain.GenerationTimeout,
		MaxConflictRetries: domain.MaxConflictRetries,
		SampleRate:         1.0,
	}
}

// LoadConfig loads configuration from defaults, the optional YAML file
// named by CONFIG_FILE and environment variables, in that order
func LoadConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.File = path
	return nil
}

func (c *Config) overlayEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.SessionStore = getEnv("SESSION_STORE", c.SessionStore)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.DynamoDBTable = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", c.DynamoDBTable))
	c.DynamoDBEndpoint = getEnv("DYNAMODB_ENDPOINT", c.DynamoDBEndpoint)
	c.UserIndexName = getEnv("USER_INDEX_NAME", c.UserIndexName)
	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)

	c.SupabaseURL = getEnv("SUPABASE_URL", c.SupabaseURL)
	c.SupabaseKey = getEnv("SUPABASE_SERVICE_ROLE_KEY", getEnv("SUPABASE_ANON_KEY", c.SupabaseKey))
	c.TreesTable = getEnv("TREES_TABLE", c.TreesTable)
	c.GenerateFunction = getEnv("GENERATE_FUNCTION", c.GenerateFunction)
	c.GeneratorFailures = uint32(getEnvInt("GENERATOR_FAILURES", int(c.GeneratorFailures)))
	c.GeneratorCooldown = getEnvDuration("GENERATOR_COOLDOWN", c.GeneratorCooldown)

	c.JWTSecret = getEnv("SUPABASE_JWT_SECRET", getEnv("JWT_SECRET", c.JWTSecret))
	c.JWTIssuer = getEnv("JWT_ISSUER", c.JWTIssuer)
	c.JWTAudience = getEnv("JWT_AUDIENCE", c.JWTAudience)

	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)
	c.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", c.RateLimitBurst)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}

	c.MaxDepth = getEnvInt("MAX_DEPTH", c.MaxDepth)
	c.DetailLevel = getEnvInt("DETAIL_LEVEL", c.DetailLevel)
	c.MaxHistoryEntries = getEnvInt("MAX_HISTORY_ENTRIES", c.MaxHistoryEntries)
	c.GenerationTimeout = getEnvDuration("GENERATION_TIMEOUT", c.GenerationTimeout)
	c.MaxConflictRetries = getEnvInt("MAX_CONFLICT_RETRIES", c.MaxConflictRetries)

	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.SessionStore {
	case "memory", "dynamodb":
	default:
		return fmt.Errorf("unknown session store %q", c.SessionStore)
	}
	if c.SessionStore == "dynamodb" && c.DynamoDBTable == "" {
		return fmt.Errorf("DYNAMODB_TABLE is required for the dynamodb session store")
	}
	if c.RateLimitPerMinute < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limits cannot be negative")
	}

	if c.IsProduction() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.SessionStore == "memory" {
			return fmt.Errorf("the memory session store is not allowed in production")
		}
	}

	return c.DomainConfig().Validate()
}

// DomainConfig derives the exploration rules
func (c *Config) DomainConfig() *domainconfig.DomainConfig {
	domain := domainconfig.LoadDomainConfig(c.Environment)
	domain.MaxDepth = c.MaxDepth
	domain.DetailLevel = c.DetailLevel
	domain.MaxHistoryEntries = c.MaxHistoryEntries
	domain.GenerationTimeout = c.GenerationTimeout
	domain.MaxConflictRetries = c.MaxConflictRetries
	return domain
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AuthEnabled reports whether bearer tokens are checked
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// SupabaseEnabled reports whether the backend tables and edge functions
// are reachable
func (c *Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
