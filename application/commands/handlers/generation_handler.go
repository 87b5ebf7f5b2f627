package handlers

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/LLINLU/memory-ai-v3-sub002/application/commands"
	"github.com/LLINLU/memory-ai-v3-sub002/application/commands/bus"
	"github.com/LLINLU/memory-ai-v3-sub002/application/ports"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/config"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// GenerationResponse is returned by GenerateTreeCommand and ExpandNodeCommand
type GenerationResponse struct {
	Outcome aggregates.MergeOutcome `json:"outcome"`
	TreeID  string                  `json:"treeId,omitempty"`
	State   SessionState            `json:"state"`
}

// GenerationHandler runs tree generation requests against the external
// generator. A request takes a ticket, calls the generator without
// holding the session, then merges the result under the ticket.
type GenerationHandler struct {
	mutator
	generator ports.TreeGenerator
	trees     ports.TreeRepository
	metrics   Metrics
	cfg       *config.DomainConfig
}

// NewGenerationHandler creates a new generation handler. trees may be nil,
// in which case generated trees are not saved.
func NewGenerationHandler(
	sessions ports.SessionRepository,
	generator ports.TreeGenerator,
	trees ports.TreeRepository,
	publisher ports.EventPublisher,
	metrics Metrics,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *GenerationHandler {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &GenerationHandler{
		mutator: mutator{
			sessions:  sessions,
			publisher: publisher,
			retries:   cfg.MaxConflictRetries,
			logger:    logger,
		},
		generator: generator,
		trees:     trees,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// Register binds the handler's commands on the bus
func (h *GenerationHandler) Register(b *bus.CommandBus) error {
	return register(b, []binding{
		{commands.GenerateTreeCommand{}, func(ctx context.Context, cmd bus.Command) (interface{}, error) {
			return h.HandleGenerateTree(ctx, cmd.(commands.GenerateTreeCommand))
		}},
		{commands.ExpandNodeCommand{}, func(ctx context.Context, cmd bus.Command) (interface{}, error) {
			return h.HandleExpandNode(ctx, cmd.(commands.ExpandNodeCommand))
		}},
	})
}

// HandleGenerateTree generates a full tree and loads it into the session
func (h *GenerationHandler) HandleGenerateTree(ctx context.Context, cmd commands.GenerateTreeCommand) (GenerationResponse, error) {
	mode, err := valueobjects.ParseGenerationMode(cmd.Mode)
	if err != nil {
		return GenerationResponse{}, pkgerrors.NewValidationError(err.Error())
	}

	ticket, err := h.begin(ctx, cmd.SessionID, cmd.UserID, func(*aggregates.Session) (aggregates.GenerationScope, error) {
		return aggregates.TreeScope, nil
	})
	if err != nil {
		return GenerationResponse{}, err
	}

	result, err := h.generate(ctx, ports.GenerationRequest{
		Query: cmd.Query,
		Mode:  mode,
		Scope: aggregates.TreeScope,
	})
	if err != nil {
		return GenerationResponse{}, err
	}
	if result.Query == "" {
		result.Query = cmd.Query
	}
	if result.Mode == "" {
		result.Mode = mode
	}
	if result.TreeID == "" {
		result.TreeID = valueobjects.NewTreeID()
	}

	resp, session, err := h.apply(ctx, cmd.SessionID, cmd.UserID, ticket, result)
	if err != nil {
		return GenerationResponse{}, err
	}
	if cmd.Save && !resp.Outcome.Discarded {
		h.saveTree(ctx, session)
	}

	h.logger.Info("Tree generated",
		zap.String("sessionID", cmd.SessionID),
		zap.String("treeID", resp.TreeID),
		zap.Bool("discarded", resp.Outcome.Discarded),
		zap.Int("merged", resp.Outcome.Merged),
		zap.Int("skipped", resp.Outcome.Skipped),
	)
	return resp, nil
}

// HandleExpandNode generates the children of one node
func (h *GenerationHandler) HandleExpandNode(ctx context.Context, cmd commands.ExpandNodeCommand) (GenerationResponse, error) {
	level := valueobjects.Level(cmd.Level)
	parent, err := parentID(level, cmd.ParentID)
	if err != nil {
		return GenerationResponse{}, err
	}
	id, err := nodeID(cmd.NodeID)
	if err != nil {
		return GenerationResponse{}, err
	}

	var req ports.GenerationRequest
	ticket, err := h.begin(ctx, cmd.SessionID, cmd.UserID, func(s *aggregates.Session) (aggregates.GenerationScope, error) {
		node, ok := s.Store().FindNode(level, parent, id)
		if !ok {
			return aggregates.GenerationScope{}, pkgerrors.NewNotFoundError("node").
				WithCode("NODE_NOT_FOUND").
				WithCause(aggregates.ErrNodeNotFound)
		}
		scope := aggregates.GenerationScope{Level: level.Next(), Parent: id}
		req = ports.GenerationRequest{
			Query:   s.Query(),
			Mode:    s.Mode(),
			Scope:   scope,
			Context: lineage(s, level, parent, node.DisplayName()),
		}
		return scope, nil
	})
	if err != nil {
		return GenerationResponse{}, err
	}

	result, err := h.generate(ctx, req)
	if err != nil {
		return GenerationResponse{}, err
	}

	resp, _, err := h.apply(ctx, cmd.SessionID, cmd.UserID, ticket, result)
	if err != nil {
		return GenerationResponse{}, err
	}

	h.logger.Info("Node expanded",
		zap.String("sessionID", cmd.SessionID),
		zap.String("scope", ticket.Scope),
		zap.Bool("discarded", resp.Outcome.Discarded),
		zap.Int("merged", resp.Outcome.Merged),
		zap.Int("skipped", resp.Outcome.Skipped),
	)
	return resp, nil
}

func (h *GenerationHandler) begin(
	ctx context.Context,
	sessionID, userID string,
	scopeOf func(*aggregates.Session) (aggregates.GenerationScope, error),
) (aggregates.GenerationTicket, error) {
	result, err := h.mutate(ctx, sessionID, userID, func(s *aggregates.Session) (interface{}, error) {
		scope, err := scopeOf(s)
		if err != nil {
			return nil, err
		}
		return s.BeginGeneration(scope)
	})
	if err != nil {
		return aggregates.GenerationTicket{}, err
	}
	return result.(aggregates.GenerationTicket), nil
}

func (h *GenerationHandler) generate(ctx context.Context, req ports.GenerationRequest) (aggregates.GenerationResult, error) {
	if h.generator == nil {
		return aggregates.GenerationResult{}, pkgerrors.NewUnavailableError("tree generator")
	}
	if h.cfg.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.GenerationTimeout)
		defer cancel()
	}

	result, err := h.generator.Generate(ctx, req)
	if err == nil {
		return result, nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return result, pkgerrors.NewTimeoutError("tree generation").WithCause(err)
	case pkgerrors.GetAppError(err) != nil:
		return result, err
	default:
		return result, pkgerrors.NewExternalError("tree generator", err)
	}
}

func (h *GenerationHandler) apply(
	ctx context.Context,
	sessionID, userID string,
	ticket aggregates.GenerationTicket,
	result aggregates.GenerationResult,
) (GenerationResponse, *aggregates.Session, error) {
	var outcome aggregates.MergeOutcome
	applied, err := h.mutate(ctx, sessionID, userID, func(s *aggregates.Session) (interface{}, error) {
		var err error
		outcome, err = s.ApplyGeneration(ticket, result)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return GenerationResponse{}, nil, err
	}

	if outcome.Dropped > 0 {
		h.logger.Warn("Generation result contained lists outside its scope",
			zap.String("sessionID", sessionID),
			zap.String("scope", ticket.Scope),
			zap.Int("dropped", outcome.Dropped),
		)
	}

	status := "merged"
	if outcome.Discarded {
		status = "discarded"
	}
	scope := "level"
	if ticket.Scope == aggregates.TreeScope.Key() {
		scope = "tree"
	}
	h.metrics.RecordGeneration(scope, status)

	session := applied.(*aggregates.Session)
	return GenerationResponse{
		Outcome: outcome,
		TreeID:  session.TreeID().String(),
		State:   stateOf(session),
	}, session, nil
}

// saveTree stores the session's tree. A failure only costs the ability to
// reopen the tree later, so it is logged.
func (h *GenerationHandler) saveTree(ctx context.Context, session *aggregates.Session) {
	if h.trees == nil {
		return
	}
	tree := &ports.SavedTree{
		ID:        session.TreeID(),
		UserID:    session.UserID(),
		Query:     session.Query(),
		Mode:      session.Mode(),
		Levels:    session.Store().Snapshot(),
		CreatedAt: session.UpdatedAt(),
	}
	if err := h.trees.SaveTree(ctx, tree); err != nil {
		h.logger.Warn("Failed to save generated tree",
			zap.String("treeID", tree.ID.String()),
			zap.Error(err),
		)
	}
}

// lineage lists the names from level 1 down to the expanded node when the
// current path leads to it; otherwise only the node's own name.
func lineage(s *aggregates.Session, level valueobjects.Level, parent valueobjects.NodeID, name string) []string {
	path := s.Path()
	if level > valueobjects.RootLevel {
		if selected, ok := path.Get(level.Parent()); !ok || !selected.Equals(parent) {
			return []string{name}
		}
	}

	names := make([]string, 0, level.Int())
	var above valueobjects.NodeID
	for l := valueobjects.RootLevel; l < level; l++ {
		id, _ := path.Get(l)
		node, ok := s.Store().FindNode(l, above, id)
		if !ok {
			return []string{name}
		}
		names = append(names, node.DisplayName())
		above = id
	}
	return append(names, name)
}
