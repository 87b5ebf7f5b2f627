package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/application/ports"
	"github.com/LLINLU/memory-ai-v3-sub002/application/queries"
	"github.com/LLINLU/memory-ai-v3-sub002/application/queries/bus"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/entities"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/services"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

const defaultListLimit = 20

// SessionQueryHandler answers read-only questions about sessions
type SessionQueryHandler struct {
	sessions ports.SessionRepository
	resolver *services.NodeInfoResolver
	logger   *zap.Logger
}

// NewSessionQueryHandler creates a new session query handler
func NewSessionQueryHandler(sessions ports.SessionRepository, logger *zap.Logger) *SessionQueryHandler {
	return &SessionQueryHandler{
		sessions: sessions,
		resolver: services.NewNodeInfoResolver(),
		logger:   logger,
	}
}

// Register binds the handler's queries on the bus
func (h *SessionQueryHandler) Register(b *bus.QueryBus) error {
	bindings := []struct {
		query bus.Query
		fn    bus.QueryHandlerFunc
	}{
		{queries.GetSessionQuery{}, func(ctx context.Context, q bus.Query) (interface{}, error) {
			return h.HandleGetSession(ctx, q.(queries.GetSessionQuery))
		}},
		{queries.GetLevelViewQuery{}, func(ctx context.Context, q bus.Query) (interface{}, error) {
			return h.HandleGetLevelView(ctx, q.(queries.GetLevelViewQuery))
		}},
		{queries.GetNodeInfoQuery{}, func(ctx context.Context, q bus.Query) (interface{}, error) {
			return h.HandleGetNodeInfo(ctx, q.(queries.GetNodeInfoQuery))
		}},
		{queries.ListSessionsQuery{}, func(ctx context.Context, q bus.Query) (interface{}, error) {
			return h.HandleListSessions(ctx, q.(queries.ListSessionsQuery))
		}},
	}
	for _, bd := range bindings {
		if err := b.Register(bd.query, bd.fn); err != nil {
			return err
		}
	}
	return nil
}

func (h *SessionQueryHandler) load(ctx context.Context, sessionID, userID string) (*aggregates.Session, error) {
	id, err := valueobjects.ParseSessionID(sessionID)
	if err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}
	session, err := h.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.IsOwnedBy(userID) {
		return nil, pkgerrors.NewNotFoundError("session")
	}
	return session, nil
}

// HandleGetSession returns the navigation state of a session
func (h *SessionQueryHandler) HandleGetSession(ctx context.Context, query queries.GetSessionQuery) (*queries.SessionView, error) {
	session, err := h.load(ctx, query.SessionID, query.UserID)
	if err != nil {
		return nil, err
	}

	pending := make([]queries.PendingGeneration, 0)
	for _, t := range session.Pending() {
		pending = append(pending, queries.PendingGeneration{Scope: t.Scope, Sequence: t.Sequence, IssuedAt: t.IssuedAt})
	}

	return &queries.SessionView{
		ID:          session.ID().String(),
		TreeID:      session.TreeID().String(),
		Query:       session.Query(),
		Mode:        session.Mode().String(),
		Path:        session.Path().Strings(),
		CanUndo:     session.CanUndo(),
		CanRedo:     session.CanRedo(),
		NodeCount:   session.Store().NodeCount(),
		OrphanLists: len(session.Store().Orphans()),
		Pending:     pending,
		Version:     session.Version(),
		CreatedAt:   session.CreatedAt(),
		UpdatedAt:   session.UpdatedAt(),
	}, nil
}

// HandleGetLevelView returns the reordered lists along the current path.
// A level that cannot be shown yet (its parent level is unselected) is
// an empty result, not an error.
func (h *SessionQueryHandler) HandleGetLevelView(ctx context.Context, query queries.GetLevelViewQuery) (*queries.GetLevelViewResult, error) {
	session, err := h.load(ctx, query.SessionID, query.UserID)
	if err != nil {
		return nil, err
	}

	store := session.Store()
	var views []services.LevelView
	if query.Level == 0 {
		views = services.ProjectPath(store, session.Path())
	} else {
		level := valueobjects.Level(query.Level)
		if !level.Valid(store.MaxDepth()) {
			return nil, pkgerrors.NewValidationError("level out of range").WithCode("INVALID_LEVEL")
		}
		if view, ok := services.ViewLevel(store, session.Path(), level); ok {
			views = append(views, view)
		}
	}

	result := &queries.GetLevelViewResult{
		SessionID: session.ID().String(),
		Levels:    make([]queries.LevelViewResult, 0, len(views)),
	}
	for _, v := range views {
		result.Levels = append(result.Levels, queries.LevelViewResult{
			Level:    v.Level.Int(),
			ParentID: v.Parent.String(),
			Selected: v.Selected.String(),
			Nodes:    entities.NodesToData(v.Nodes),
		})
	}
	return result, nil
}

// HandleGetNodeInfo resolves the detail panel content
func (h *SessionQueryHandler) HandleGetNodeInfo(ctx context.Context, query queries.GetNodeInfoQuery) (*queries.NodeInfoResult, error) {
	session, err := h.load(ctx, query.SessionID, query.UserID)
	if err != nil {
		return nil, err
	}

	info := h.resolver.Resolve(session.Store(), session.Path())
	if info.IsEmpty() && !session.Path().IsEmpty() {
		h.logger.Debug("No selected node resolved",
			zap.String("sessionID", query.SessionID),
			zap.Strings("path", session.Path().Strings()),
		)
	}
	return &queries.NodeInfoResult{
		Level:       info.Level.Int(),
		NodeID:      info.NodeID.String(),
		Title:       info.Title,
		Description: info.Description,
		Info:        info.Info,
		IsCustom:    info.IsCustom,
	}, nil
}

// HandleListSessions lists the caller's sessions
func (h *SessionQueryHandler) HandleListSessions(ctx context.Context, query queries.ListSessionsQuery) (*queries.ListSessionsResult, error) {
	limit := query.Limit
	if limit == 0 {
		limit = defaultListLimit
	}

	sessions, err := h.sessions.ListByUser(ctx, query.UserID, limit)
	if err != nil {
		return nil, err
	}

	result := &queries.ListSessionsResult{Sessions: make([]queries.SessionSummary, 0, len(sessions))}
	for _, s := range sessions {
		result.Sessions = append(result.Sessions, queries.SessionSummary{
			ID:        s.ID().String(),
			TreeID:    s.TreeID().String(),
			Query:     s.Query(),
			Depth:     s.Path().Depth(),
			UpdatedAt: s.UpdatedAt(),
		})
	}
	result.Total = len(result.Sessions)
	return result, nil
}
