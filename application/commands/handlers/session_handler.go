package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/application/commands"
	"github.com/LLINLU/memory-ai-v3-sub002/application/commands/bus"
	"github.com/LLINLU/memory-ai-v3-sub002/application/ports"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/config"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/entities"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// StartSessionResult is returned by StartSessionCommand
type StartSessionResult struct {
	SessionID string `json:"sessionId"`
	TreeID    string `json:"treeId,omitempty"`
	Version   int    `json:"version"`
}

// NavigationResult is returned by NavigateHistoryCommand. Moved is false
// when there was nothing to undo or redo.
type NavigationResult struct {
	SessionState
	Moved bool `json:"moved"`
}

// SessionHandler handles session lifecycle and navigation commands
type SessionHandler struct {
	mutator
	trees   ports.TreeRepository
	cfg     *config.DomainConfig
	metrics Metrics
}

// NewSessionHandler creates a new session handler. trees may be nil when
// saved trees are not configured.
func NewSessionHandler(
	sessions ports.SessionRepository,
	trees ports.TreeRepository,
	publisher ports.EventPublisher,
	metrics Metrics,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *SessionHandler {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &SessionHandler{
		mutator: mutator{
			sessions:  sessions,
			publisher: publisher,
			retries:   cfg.MaxConflictRetries,
			logger:    logger,
		},
		trees:   trees,
		cfg:     cfg,
		metrics: metrics,
	}
}

// Register binds the handler's commands on the bus
func (h *SessionHandler) Register(b *bus.CommandBus) error {
	return register(b, []binding{
		{commands.StartSessionCommand{}, func(ctx context.Context, cmd bus.Command) (interface{}, error) {
			return h.HandleStart(ctx, cmd.(commands.StartSessionCommand))
		}},
		{commands.DeleteSessionCommand{}, func(ctx context.Context, cmd bus.Command) (interface{}, error) {
			return nil, h.HandleDelete(ctx, cmd.(commands.DeleteSessionCommand))
		}},
		{commands.SelectNodeCommand{}, func(ctx context.Context, cmd bus.Command) (interface{}, error) {
			return h.HandleSelect(ctx, cmd.(commands.SelectNodeCommand))
		}},
		{commands.ClearSelectionCommand{}, func(ctx context.Context, cmd bus.Command) (interface{}, error) {
			return h.HandleClear(ctx, cmd.(commands.ClearSelectionCommand))
		}},
		{commands.NavigateHistoryCommand{}, func(ctx context.Context, cmd bus.Command) (interface{}, error) {
			return h.HandleNavigate(ctx, cmd.(commands.NavigateHistoryCommand))
		}},
	})
}

// HandleStart creates a session, optionally loading a saved tree into it
func (h *SessionHandler) HandleStart(ctx context.Context, cmd commands.StartSessionCommand) (StartSessionResult, error) {
	session, err := aggregates.NewSession(cmd.UserID, h.cfg)
	if err != nil {
		return StartSessionResult{}, err
	}

	if cmd.TreeID != "" {
		if h.trees == nil {
			return StartSessionResult{}, pkgerrors.NewUnavailableError("saved trees")
		}
		tree, err := h.trees.GetTree(ctx, valueobjects.TreeID(cmd.TreeID))
		if err != nil {
			return StartSessionResult{}, err
		}
		if tree.UserID != "" && tree.UserID != cmd.UserID {
			return StartSessionResult{}, pkgerrors.NewNotFoundError("tree")
		}
		levels, err := LevelsFromEntries(tree.Levels)
		if err != nil {
			return StartSessionResult{}, err
		}
		if err := session.LoadTree(tree.ID, tree.Query, tree.Mode, levels); err != nil {
			return StartSessionResult{}, err
		}
	}

	if err := h.sessions.Save(ctx, session); err != nil {
		return StartSessionResult{}, err
	}
	h.publish(ctx, session)
	h.metrics.IncrementCounter("sessions_started")

	h.logger.Info("Session started",
		zap.String("sessionID", session.ID().String()),
		zap.String("userID", cmd.UserID),
		zap.String("treeID", cmd.TreeID),
	)

	return StartSessionResult{
		SessionID: session.ID().String(),
		TreeID:    session.TreeID().String(),
		Version:   session.Version(),
	}, nil
}

// HandleDelete removes a session owned by the caller
func (h *SessionHandler) HandleDelete(ctx context.Context, cmd commands.DeleteSessionCommand) error {
	id, err := valueobjects.ParseSessionID(cmd.SessionID)
	if err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	if _, err := h.load(ctx, id, cmd.UserID); err != nil {
		return err
	}
	if err := h.sessions.Delete(ctx, id); err != nil {
		return err
	}

	h.logger.Info("Session deleted",
		zap.String("sessionID", cmd.SessionID),
		zap.String("userID", cmd.UserID),
	)
	return nil
}

// HandleSelect selects a node and clears deeper levels
func (h *SessionHandler) HandleSelect(ctx context.Context, cmd commands.SelectNodeCommand) (SessionState, error) {
	id, err := nodeID(cmd.NodeID)
	if err != nil {
		return SessionState{}, err
	}

	result, err := h.mutate(ctx, cmd.SessionID, cmd.UserID, func(s *aggregates.Session) (interface{}, error) {
		if err := s.Select(valueobjects.Level(cmd.Level), id); err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return SessionState{}, err
	}
	h.metrics.IncrementCounter("selections")
	return stateOf(result.(*aggregates.Session)), nil
}

// HandleClear clears the selection from a level down
func (h *SessionHandler) HandleClear(ctx context.Context, cmd commands.ClearSelectionCommand) (SessionState, error) {
	result, err := h.mutate(ctx, cmd.SessionID, cmd.UserID, func(s *aggregates.Session) (interface{}, error) {
		level := valueobjects.Level(cmd.FromLevel)
		if !level.Valid(h.cfg.MaxDepth) {
			return nil, pkgerrors.NewValidationError("level out of range").WithCode("INVALID_LEVEL")
		}
		s.ClearSelection(level)
		return s, nil
	})
	if err != nil {
		return SessionState{}, err
	}
	return stateOf(result.(*aggregates.Session)), nil
}

// HandleNavigate undoes or redoes one navigation step
func (h *SessionHandler) HandleNavigate(ctx context.Context, cmd commands.NavigateHistoryCommand) (NavigationResult, error) {
	var moved bool
	result, err := h.mutate(ctx, cmd.SessionID, cmd.UserID, func(s *aggregates.Session) (interface{}, error) {
		if cmd.Direction == commands.DirectionUndo {
			moved = s.Undo()
		} else {
			moved = s.Redo()
		}
		return s, nil
	})
	if err != nil {
		return NavigationResult{}, err
	}
	return NavigationResult{SessionState: stateOf(result.(*aggregates.Session)), Moved: moved}, nil
}

// LevelsFromEntries converts stored level entries into generated levels
func LevelsFromEntries(entries []aggregates.LevelEntry) ([]aggregates.GeneratedLevel, error) {
	levels := make([]aggregates.GeneratedLevel, 0, len(entries))
	for _, entry := range entries {
		level := valueobjects.Level(entry.Level)
		parent, err := parentID(level, entry.ParentID)
		if err != nil {
			return nil, err
		}
		nodes := make([]*entities.Node, 0, len(entry.Nodes))
		for _, data := range entry.Nodes {
			node, err := entities.ReconstructNode(data)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		}
		levels = append(levels, aggregates.GeneratedLevel{Level: level, Parent: parent, Nodes: nodes})
	}
	return levels, nil
}
