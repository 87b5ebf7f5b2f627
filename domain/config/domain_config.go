package config

import (
	"fmt"
	"time"
)

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Hierarchy constraints
	MaxDepth    int // Deepest level a tree may have (level 1 is the root list)
	DetailLevel int // Selecting a node at this level requests the detail panel; 0 disables

	// Node constraints
	MaxNodesPerLevel     int
	MaxNameLength        int
	MaxDescriptionLength int
	MaxInfoLength        int

	// History constraints
	MaxHistoryEntries int // 0 means unbounded

	// Generation
	GenerationTimeout  time.Duration
	MaxConflictRetries int
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		MaxDepth:    10,
		DetailLevel: 3,

		MaxNodesPerLevel:     200,
		MaxNameLength:        200,
		MaxDescriptionLength: 4000,
		MaxInfoLength:        500,

		MaxHistoryEntries: 0,

		GenerationTimeout:  90 * time.Second,
		MaxConflictRetries: 3,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// Bound memory per session in production
	config.MaxHistoryEntries = 500
	config.MaxNodesPerLevel = 100

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()
	config.GenerationTimeout = 3 * time.Minute
	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	if c.MaxDepth < 1 {
		return fmt.Errorf("max depth must be at least 1, got %d", c.MaxDepth)
	}
	if c.DetailLevel < 0 || c.DetailLevel > c.MaxDepth {
		return fmt.Errorf("detail level %d outside [0, %d]", c.DetailLevel, c.MaxDepth)
	}
	if c.MaxNodesPerLevel < 1 {
		return fmt.Errorf("max nodes per level must be positive")
	}
	if c.MaxHistoryEntries < 0 {
		return fmt.Errorf("max history entries cannot be negative")
	}
	if c.MaxConflictRetries < 0 {
		return fmt.Errorf("max conflict retries cannot be negative")
	}
	return nil
}
