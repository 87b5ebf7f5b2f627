package ports

import (
	"context"
	"time"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/events"
)

// SessionRepository defines the interface for session persistence
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type SessionRepository interface {
	// Save persists a session. The stored version must equal
	// session.Version(); on success the session is marked persisted.
	// A mismatch returns a conflict error.
	Save(ctx context.Context, session *aggregates.Session) error

	// GetByID retrieves a session by its ID
	GetByID(ctx context.Context, id valueobjects.SessionID) (*aggregates.Session, error)

	// ListByUser retrieves the most recently updated sessions of a user
	ListByUser(ctx context.Context, userID string, limit int) ([]*aggregates.Session, error)

	// Delete removes a session
	Delete(ctx context.Context, id valueobjects.SessionID) error
}

// SavedTree is a generated tree stored in the backend tables
type SavedTree struct {
	ID        valueobjects.TreeID
	UserID    string
	Query     string
	Mode      valueobjects.GenerationMode
	Levels    []aggregates.LevelEntry
	CreatedAt time.Time
}

// TreeRepository stores generated trees so sessions can reopen them
type TreeRepository interface {
	// SaveTree inserts or replaces a tree
	SaveTree(ctx context.Context, tree *SavedTree) error

	// GetTree retrieves a tree by its ID
	GetTree(ctx context.Context, id valueobjects.TreeID) (*SavedTree, error)
}

// GenerationRequest asks the generation service for a tree or a subtree
type GenerationRequest struct {
	Query string
	Mode  valueobjects.GenerationMode
	Scope aggregates.GenerationScope

	// Names of the selected ancestors down to the expanded node, level 1
	// first. Empty for a full tree.
	Context []string
}

// TreeGenerator is the external tree generation service
type TreeGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (aggregates.GenerationResult, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// HealthChecker is implemented by adapters that can report readiness
type HealthChecker interface {
	Ping(ctx context.Context) error
}
