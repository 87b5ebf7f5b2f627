package services

import (
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/aggregates"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
)

// NodeInfo is the title and description shown in the info panel
type NodeInfo struct {
	Level       valueobjects.Level  `json:"level,omitempty"`
	NodeID      valueobjects.NodeID `json:"nodeId,omitempty"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Info        string              `json:"info,omitempty"`
	IsCustom    bool                `json:"isCustom,omitempty"`
}

// IsEmpty reports whether nothing resolved
func (i NodeInfo) IsEmpty() bool {
	return i.NodeID.IsZero()
}

// NodeInfoResolver finds the most specific selected node that still exists
type NodeInfoResolver struct{}

// NewNodeInfoResolver creates a resolver
func NewNodeInfoResolver() *NodeInfoResolver {
	return &NodeInfoResolver{}
}

// Resolve scans path from its deepest selection towards level 1 and
// returns the first node found under its expected parent. Stale
// selections are skipped. When nothing resolves the zero NodeInfo is
// returned.
func (r *NodeInfoResolver) Resolve(store *aggregates.LevelStore, path valueobjects.Path) NodeInfo {
	for level := valueobjects.Level(path.Depth()); level >= valueobjects.RootLevel; level-- {
		id, ok := path.Get(level)
		if !ok {
			continue
		}
		parent, _ := path.ParentOf(level)
		node, found := store.FindNode(level, parent, id)
		if !found {
			continue
		}
		return NodeInfo{
			Level:       level,
			NodeID:      node.ID(),
			Title:       node.DisplayName(),
			Description: node.Description(),
			Info:        node.Info(),
			IsCustom:    node.IsCustom(),
		}
	}
	return NodeInfo{}
}
