package entities

import (
	"strings"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/config"
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// Node is a single entry of the technology tree (a scenario, purpose,
// function, means or implementation depending on its level).
type Node struct {
	id          valueobjects.NodeID
	name        string
	description string
	info        string
	isCustom    bool
	level       valueobjects.Level // 0 when unknown
}

// NodeData is the plain representation used at the persistence and
// transport boundaries.
type NodeData struct {
	ID          string `json:"id" dynamodbav:"id"`
	Name        string `json:"name" dynamodbav:"name"`
	Description string `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Info        string `json:"info,omitempty" dynamodbav:"info,omitempty"`
	IsCustom    bool   `json:"isCustom,omitempty" dynamodbav:"is_custom,omitempty"`
	Level       int    `json:"level,omitempty" dynamodbav:"level,omitempty"`
}

// NewNode creates a node supplied by the generation service. The name
// may be empty; such nodes are displayed by their id.
func NewNode(id valueobjects.NodeID, name string, level valueobjects.Level) (*Node, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidationError("node id cannot be empty")
	}

	return &Node{
		id:    id,
		name:  strings.TrimSpace(name),
		level: level,
	}, nil
}

// NewCustomNode creates a node authored by the user. It gets a fresh id
// and is flagged as custom. User-authored nodes must be named.
func NewCustomNode(name, description string, level valueobjects.Level) (*Node, error) {
	if strings.TrimSpace(name) == "" {
		return nil, pkgerrors.NewValidationError("node name cannot be empty")
	}
	node, err := NewNode(valueobjects.NewNodeID(), name, level)
	if err != nil {
		return nil, err
	}
	node.description = strings.TrimSpace(description)
	node.isCustom = true
	return node, nil
}

// ReconstructNode rebuilds a node from its plain representation
func ReconstructNode(data NodeData) (*Node, error) {
	id, err := valueobjects.NewNodeIDFromString(data.ID)
	if err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}
	node, err := NewNode(id, data.Name, valueobjects.Level(data.Level))
	if err != nil {
		return nil, err
	}
	node.description = data.Description
	node.info = data.Info
	node.isCustom = data.IsCustom
	return node, nil
}

// ID returns the node's identifier
func (n *Node) ID() valueobjects.NodeID {
	return n.id
}

// Name returns the label, possibly empty
func (n *Node) Name() string {
	return n.name
}

// DisplayName returns the name, or the id for unnamed nodes
func (n *Node) DisplayName() string {
	if n.name == "" {
		return n.id.String()
	}
	return n.name
}

// Description returns the long-form text, possibly empty
func (n *Node) Description() string {
	return n.description
}

// Info returns the short annotation (e.g. paper counts), possibly empty
func (n *Node) Info() string {
	return n.info
}

// IsCustom reports whether the user authored this node
func (n *Node) IsCustom() bool {
	return n.isCustom
}

// Level returns the depth this node occupies, 0 when unknown
func (n *Node) Level() valueobjects.Level {
	return n.level
}

// Rename changes the label. Renames come from the user and cannot clear it.
func (n *Node) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return pkgerrors.NewValidationError("node name cannot be empty")
	}
	n.name = name
	return nil
}

// UpdateDescription replaces the long-form text
func (n *Node) UpdateDescription(description string) {
	n.description = strings.TrimSpace(description)
}

// SetInfo replaces the short annotation
func (n *Node) SetInfo(info string) {
	n.info = strings.TrimSpace(info)
}

// WithLevel returns a copy of the node placed at level
func (n *Node) WithLevel(level valueobjects.Level) *Node {
	c := n.Clone()
	c.level = level
	return c
}

// Clone returns an independent copy
func (n *Node) Clone() *Node {
	c := *n
	return &c
}

// Validate checks the node against the configured limits
func (n *Node) Validate(cfg *config.DomainConfig) error {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if len(n.name) > cfg.MaxNameLength {
		return pkgerrors.NewValidationError("node name is too long").
			WithDetail("max", cfg.MaxNameLength)
	}
	if len(n.description) > cfg.MaxDescriptionLength {
		return pkgerrors.NewValidationError("node description is too long").
			WithDetail("max", cfg.MaxDescriptionLength)
	}
	if len(n.info) > cfg.MaxInfoLength {
		return pkgerrors.NewValidationError("node info is too long").
			WithDetail("max", cfg.MaxInfoLength)
	}
	return nil
}

// ToData converts the node to its plain representation
func (n *Node) ToData() NodeData {
	return NodeData{
		ID:          n.id.String(),
		Name:        n.name,
		Description: n.description,
		Info:        n.info,
		IsCustom:    n.isCustom,
		Level:       n.level.Int(),
	}
}

// NodesToData converts a list of nodes
func NodesToData(nodes []*Node) []NodeData {
	out := make([]NodeData, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ToData())
	}
	return out
}
