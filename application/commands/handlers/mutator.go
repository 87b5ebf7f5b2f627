package handlers

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/application/commands/bus"
	"github.com/LLINLU/memory-ai-v3-sub002/application/ports"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// Metrics is the subset of the collector the handlers report to
type Metrics interface {
	IncrementCounter(name string)
	RecordGeneration(scope, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) IncrementCounter(string)         {}
func (noopMetrics) RecordGeneration(string, string) {}

// SessionState is the navigation state returned by navigation commands
type SessionState struct {
	SessionID string   `json:"sessionId"`
	Path      []string `json:"path"`
	CanUndo   bool     `json:"canUndo"`
	CanRedo   bool     `json:"canRedo"`
	Version   int      `json:"version"`
}

func stateOf(s *aggregates.Session) SessionState {
	return SessionState{
		SessionID: s.ID().String(),
		Path:      s.Path().Strings(),
		CanUndo:   s.CanUndo(),
		CanRedo:   s.CanRedo(),
		Version:   s.Version(),
	}
}

// mutation applies a domain operation to a loaded session
type mutation func(s *aggregates.Session) (interface{}, error)

// mutator runs the load, apply, save, publish cycle shared by every
// command that changes a session.
type mutator struct {
	sessions  ports.SessionRepository
	publisher ports.EventPublisher
	retries   int
	logger    *zap.Logger
}

// mutate loads the session owned by userID and applies fn. A version
// conflict on save reloads the session and applies fn again, up to the
// configured number of retries. A session fn left unchanged is neither
// saved nor published.
//
// When fn fails after it already changed the session (a selection that
// cleared deeper levels before reporting a missing node), the partial
// change is saved and published and fn's error is returned afterwards.
func (m *mutator) mutate(ctx context.Context, sessionID, userID string, fn mutation) (interface{}, error) {
	id, err := valueobjects.ParseSessionID(sessionID)
	if err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}

	for attempt := 0; ; attempt++ {
		session, err := m.load(ctx, id, userID)
		if err != nil {
			return nil, err
		}

		result, opErr := fn(session)
		if !session.HasChanges() {
			if opErr != nil {
				return nil, opErr
			}
			return result, nil
		}

		if err := m.sessions.Save(ctx, session); err != nil {
			if errors.Is(err, aggregates.ErrVersionConflict) && attempt < m.retries {
				m.logger.Debug("Session version conflict, retrying",
					zap.String("sessionID", sessionID),
					zap.Int("attempt", attempt+1),
				)
				continue
			}
			return nil, err
		}

		m.publish(ctx, session)
		if opErr != nil {
			return nil, opErr
		}
		return result, nil
	}
}

func (m *mutator) load(ctx context.Context, id valueobjects.SessionID, userID string) (*aggregates.Session, error) {
	session, err := m.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Sessions of other users are reported as missing
	if !session.IsOwnedBy(userID) {
		return nil, pkgerrors.NewNotFoundError("session")
	}
	return session, nil
}

// publish sends the session's pending events. Failures are logged and
// never fail the command; the session state is already saved.
func (m *mutator) publish(ctx context.Context, session *aggregates.Session) {
	pending := session.GetUncommittedEvents()
	if len(pending) > 0 && m.publisher != nil {
		if err := m.publisher.PublishBatch(ctx, pending); err != nil {
			m.logger.Warn("Failed to publish events",
				zap.String("sessionID", session.ID().String()),
				zap.Int("count", len(pending)),
				zap.Error(err),
			)
		}
	}
	session.MarkEventsAsCommitted()
}

type binding struct {
	cmd bus.Command
	fn  bus.CommandHandlerFunc
}

func register(b *bus.CommandBus, bindings []binding) error {
	for _, bd := range bindings {
		if err := b.Register(bd.cmd, bd.fn); err != nil {
			return err
		}
	}
	return nil
}

// parentID converts a client supplied parent id. Level 1 has no parent.
func parentID(level valueobjects.Level, raw string) (valueobjects.NodeID, error) {
	if level == valueobjects.RootLevel || raw == "" {
		return valueobjects.NodeID{}, nil
	}
	id, err := valueobjects.NewNodeIDFromString(raw)
	if err != nil {
		return valueobjects.NodeID{}, pkgerrors.NewValidationError(err.Error())
	}
	return id, nil
}

func nodeID(raw string) (valueobjects.NodeID, error) {
	id, err := valueobjects.NewNodeIDFromString(raw)
	if err != nil {
		return valueobjects.NodeID{}, pkgerrors.NewValidationError(err.Error())
	}
	return id, nil
}
