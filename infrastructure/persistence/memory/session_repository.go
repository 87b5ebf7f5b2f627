package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/config"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// SessionRepository keeps session snapshots in process memory. Every
// read restores a fresh aggregate, so callers never share state.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[valueobjects.SessionID]aggregates.SessionSnapshot
	cfg      *config.DomainConfig
}

// NewSessionRepository creates an empty in-memory session repository
func NewSessionRepository(cfg *config.DomainConfig) *SessionRepository {
	return &SessionRepository{
		sessions: make(map[valueobjects.SessionID]aggregates.SessionSnapshot),
		cfg:      cfg,
	}
}

// Save stores the session if the stored version still equals the
// version the session was loaded at
func (r *SessionRepository) Save(ctx context.Context, session *aggregates.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	snap := session.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.sessions[session.ID()]
	current := 0
	if exists {
		current = stored.Version
	}
	if current != session.Version() {
		return aggregates.VersionConflict(session.ID(), session.Version())
	}

	snap.Version = current + 1
	r.sessions[session.ID()] = snap
	session.MarkPersisted()
	return nil
}

// GetByID retrieves a session by its ID
func (r *SessionRepository) GetByID(ctx context.Context, id valueobjects.SessionID) (*aggregates.Session, error) {
	r.mu.RLock()
	snap, exists := r.sessions[id]
	r.mu.RUnlock()

	if !exists {
		return nil, pkgerrors.NewNotFoundError("session")
	}
	return aggregates.RestoreSession(snap, r.cfg)
}

// ListByUser returns the user's sessions, most recently updated first
func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*aggregates.Session, error) {
	r.mu.RLock()
	snaps := make([]aggregates.SessionSnapshot, 0)
	for _, snap := range r.sessions {
		if snap.UserID == userID {
			snaps = append(snaps, snap)
		}
	}
	r.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].UpdatedAt.Equal(snaps[j].UpdatedAt) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].UpdatedAt.After(snaps[j].UpdatedAt)
	})
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}

	sessions := make([]*aggregates.Session, 0, len(snaps))
	for _, snap := range snaps {
		s, err := aggregates.RestoreSession(snap, r.cfg)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// Delete removes a session
func (r *SessionRepository) Delete(ctx context.Context, id valueobjects.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return pkgerrors.NewNotFoundError("session")
	}
	delete(r.sessions, id)
	return nil
}

// Ping always succeeds
func (r *SessionRepository) Ping(ctx context.Context) error {
	return nil
}
