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
)

// RemoveNodeResult is returned by RemoveNodeCommand
type RemoveNodeResult struct {
	Removed      bool `json:"removed"`
	DroppedLists int  `json:"droppedLists"`
}

// PruneResult is returned by PruneOrphansCommand
type PruneResult struct {
	Dropped int `json:"dropped"`
}

// NodeHandler handles commands that edit the level store of a session
type NodeHandler struct {
	mutator
	metrics Metrics
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(
	sessions ports.SessionRepository,
	publisher ports.EventPublisher,
	metrics Metrics,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *NodeHandler {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &NodeHandler{
		mutator: mutator{
			sessions:  sessions,
			publisher: publisher,
			retries:   cfg.MaxConflictRetries,
			logger:    logger,
		},
		metrics: metrics,
	}
}

// Register binds the handler's commands on the bus
func (h *NodeHandler) Register(b *bus.CommandBus) error {
	return register(b, []binding{
		{commands.SetLevelCommand{}, func(ctx context.Context, cmd bus.Command) (interface{}, error) {
			return nil, h.HandleSetLevel(ctx, cmd.(commands.SetLevelCommand))
		}},
		{commands.AddCustomNodeCommand{}, func(ctx context.Context, cmd bus.Command) (interface{}, error) {
			return h.HandleAddCustomNode(ctx, cmd.(commands.AddCustomNodeCommand))
		}},
		{commands.UpdateNodeCommand{}, func(ctx context.Context, cmd bus.Command) (interface{}, error) {
			return h.HandleUpdateNode(ctx, cmd.(commands.UpdateNodeCommand))
		}},
		{commands.RemoveNodeCommand{}, func(ctx context.Context, cmd bus.Command) (interface{}, error) {
			return h.HandleRemoveNode(ctx, cmd.(commands.RemoveNodeCommand))
		}},
		{commands.PruneOrphansCommand{}, func(ctx context.Context, cmd bus.Command) (interface{}, error) {
			return h.HandlePrune(ctx, cmd.(commands.PruneOrphansCommand))
		}},
	})
}

// HandleSetLevel replaces one children list
func (h *NodeHandler) HandleSetLevel(ctx context.Context, cmd commands.SetLevelCommand) error {
	level := valueobjects.Level(cmd.Level)
	parent, err := parentID(level, cmd.ParentID)
	if err != nil {
		return err
	}
	nodes := make([]*entities.Node, 0, len(cmd.Nodes))
	for _, in := range cmd.Nodes {
		node, err := entities.ReconstructNode(entities.NodeData{
			ID:          in.ID,
			Name:        in.Name,
			Description: in.Description,
			Info:        in.Info,
			IsCustom:    in.IsCustom,
			Level:       cmd.Level,
		})
		if err != nil {
			return err
		}
		nodes = append(nodes, node)
	}

	_, err = h.mutate(ctx, cmd.SessionID, cmd.UserID, func(s *aggregates.Session) (interface{}, error) {
		return nil, s.SetLevel(level, parent, nodes)
	})
	return err
}

// HandleAddCustomNode appends a user-authored node and returns it
func (h *NodeHandler) HandleAddCustomNode(ctx context.Context, cmd commands.AddCustomNodeCommand) (entities.NodeData, error) {
	level := valueobjects.Level(cmd.Level)
	parent, err := parentID(level, cmd.ParentID)
	if err != nil {
		return entities.NodeData{}, err
	}

	result, err := h.mutate(ctx, cmd.SessionID, cmd.UserID, func(s *aggregates.Session) (interface{}, error) {
		return s.AddCustomNode(level, parent, cmd.Name, cmd.Description)
	})
	if err != nil {
		return entities.NodeData{}, err
	}

	node := result.(*entities.Node)
	h.metrics.IncrementCounter("custom_nodes_added")
	h.logger.Info("Custom node added",
		zap.String("sessionID", cmd.SessionID),
		zap.Int("level", cmd.Level),
		zap.String("nodeID", node.ID().String()),
	)
	return node.ToData(), nil
}

// HandleUpdateNode renames or annotates a node and returns it
func (h *NodeHandler) HandleUpdateNode(ctx context.Context, cmd commands.UpdateNodeCommand) (entities.NodeData, error) {
	level := valueobjects.Level(cmd.Level)
	parent, err := parentID(level, cmd.ParentID)
	if err != nil {
		return entities.NodeData{}, err
	}
	id, err := nodeID(cmd.NodeID)
	if err != nil {
		return entities.NodeData{}, err
	}

	update := aggregates.NodeUpdate{Name: cmd.Name, Description: cmd.Description, Info: cmd.Info}
	result, err := h.mutate(ctx, cmd.SessionID, cmd.UserID, func(s *aggregates.Session) (interface{}, error) {
		return s.UpdateNode(level, parent, id, update)
	})
	if err != nil {
		return entities.NodeData{}, err
	}
	return result.(*entities.Node).ToData(), nil
}

// HandleRemoveNode removes a node. Removing an absent node is a no-op
// reported through Removed.
func (h *NodeHandler) HandleRemoveNode(ctx context.Context, cmd commands.RemoveNodeCommand) (RemoveNodeResult, error) {
	level := valueobjects.Level(cmd.Level)
	parent, err := parentID(level, cmd.ParentID)
	if err != nil {
		return RemoveNodeResult{}, err
	}
	id, err := nodeID(cmd.NodeID)
	if err != nil {
		return RemoveNodeResult{}, err
	}

	result, err := h.mutate(ctx, cmd.SessionID, cmd.UserID, func(s *aggregates.Session) (interface{}, error) {
		removed, dropped := s.RemoveNode(level, parent, id, cmd.Cascade)
		return RemoveNodeResult{Removed: removed, DroppedLists: dropped}, nil
	})
	if err != nil {
		return RemoveNodeResult{}, err
	}
	return result.(RemoveNodeResult), nil
}

// HandlePrune drops orphaned children lists
func (h *NodeHandler) HandlePrune(ctx context.Context, cmd commands.PruneOrphansCommand) (PruneResult, error) {
	result, err := h.mutate(ctx, cmd.SessionID, cmd.UserID, func(s *aggregates.Session) (interface{}, error) {
		return PruneResult{Dropped: s.PruneOrphans()}, nil
	})
	if err != nil {
		return PruneResult{}, err
	}
	return result.(PruneResult), nil
}
