package events

import (
	"time"
)

// SourceBackend is the event source name used on the event bus
const SourceBackend = "techtree.exploration"

// Event type names
const (
	TypeSelectionChanged    = "selection.changed"
	TypeDetailRequested     = "detail_panel.requested"
	TypeHistoryNavigated    = "history.navigated"
	TypeTreeLoaded          = "tree.loaded"
	TypeCustomNodeAdded     = "node.custom_added"
	TypeNodeUpdated         = "node.updated"
	TypeNodeRemoved         = "node.removed"
	TypeGenerationRequested = "generation.requested"
	TypeGenerationDiscarded = "generation.discarded"
	TypeGenerationMerged    = "generation.merged"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

func newBase(sessionID, eventType string, version int, at time.Time) BaseEvent {
	return BaseEvent{
		AggregateID: sessionID,
		EventType:   eventType,
		Timestamp:   at,
		Version:     version,
	}
}

// Selection events

// SelectionChanged is raised on every successful select. The content
// lookup service listens for it to refresh papers and use cases.
type SelectionChanged struct {
	BaseEvent
	UserID   string   `json:"user_id"`
	Level    int      `json:"level"`
	NodeID   string   `json:"node_id"`
	Path     []string `json:"path"`
	Restored bool     `json:"restored,omitempty"` // true when caused by undo/redo
}

// NewSelectionChanged creates a SelectionChanged event
func NewSelectionChanged(sessionID, userID string, level int, nodeID string, path []string, restored bool, version int, at time.Time) SelectionChanged {
	return SelectionChanged{
		BaseEvent: newBase(sessionID, TypeSelectionChanged, version, at),
		UserID:    userID,
		Level:     level,
		NodeID:    nodeID,
		Path:      path,
		Restored:  restored,
	}
}

// DetailRequested is raised when a node at the detail level is selected
type DetailRequested struct {
	BaseEvent
	UserID string `json:"user_id"`
	Level  int    `json:"level"`
	NodeID string `json:"node_id"`
}

// NewDetailRequested creates a DetailRequested event
func NewDetailRequested(sessionID, userID string, level int, nodeID string, version int, at time.Time) DetailRequested {
	return DetailRequested{
		BaseEvent: newBase(sessionID, TypeDetailRequested, version, at),
		UserID:    userID,
		Level:     level,
		NodeID:    nodeID,
	}
}

// HistoryNavigated is raised on a successful undo or redo
type HistoryNavigated struct {
	BaseEvent
	Direction string   `json:"direction"`
	Cursor    int      `json:"cursor"`
	Path      []string `json:"path"`
}

// NewHistoryNavigated creates a HistoryNavigated event
func NewHistoryNavigated(sessionID, direction string, cursor int, path []string, version int, at time.Time) HistoryNavigated {
	return HistoryNavigated{
		BaseEvent: newBase(sessionID, TypeHistoryNavigated, version, at),
		Direction: direction,
		Cursor:    cursor,
		Path:      path,
	}
}

// Tree events

// TreeLoaded is raised when a whole tree replaces the level store
type TreeLoaded struct {
	BaseEvent
	TreeID    string `json:"tree_id"`
	Query     string `json:"query"`
	Mode      string `json:"mode"`
	NodeCount int    `json:"node_count"`
}

// NewTreeLoaded creates a TreeLoaded event
func NewTreeLoaded(sessionID, treeID, query, mode string, nodeCount, version int, at time.Time) TreeLoaded {
	return TreeLoaded{
		BaseEvent: newBase(sessionID, TypeTreeLoaded, version, at),
		TreeID:    treeID,
		Query:     query,
		Mode:      mode,
		NodeCount: nodeCount,
	}
}

// NodeChange describes a single edit of the level store
type NodeChange struct {
	BaseEvent
	Level    int    `json:"level"`
	ParentID string `json:"parent_id,omitempty"`
	NodeID   string `json:"node_id"`
	Name     string `json:"name,omitempty"`
	Cascade  bool   `json:"cascade,omitempty"`
}

// NewCustomNodeAdded creates a node.custom_added event
func NewCustomNodeAdded(sessionID string, level int, parentID, nodeID, name string, version int, at time.Time) NodeChange {
	return NodeChange{
		BaseEvent: newBase(sessionID, TypeCustomNodeAdded, version, at),
		Level:     level,
		ParentID:  parentID,
		NodeID:    nodeID,
		Name:      name,
	}
}

// NewNodeUpdated creates a node.updated event
func NewNodeUpdated(sessionID string, level int, parentID, nodeID, name string, version int, at time.Time) NodeChange {
	return NodeChange{
		BaseEvent: newBase(sessionID, TypeNodeUpdated, version, at),
		Level:     level,
		ParentID:  parentID,
		NodeID:    nodeID,
		Name:      name,
	}
}

// NewNodeRemoved creates a node.removed event
func NewNodeRemoved(sessionID string, level int, parentID, nodeID string, cascade bool, version int, at time.Time) NodeChange {
	return NodeChange{
		BaseEvent: newBase(sessionID, TypeNodeRemoved, version, at),
		Level:     level,
		ParentID:  parentID,
		NodeID:    nodeID,
		Cascade:   cascade,
	}
}

// Generation events

// GenerationEvent reports the lifecycle of a generation ticket
type GenerationEvent struct {
	BaseEvent
	Scope    string `json:"scope"`
	Sequence uint64 `json:"sequence"`
	Merged   int    `json:"merged,omitempty"`
	Skipped  int    `json:"skipped,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// NewGenerationRequested creates a generation.requested event
func NewGenerationRequested(sessionID, scope string, seq uint64, version int, at time.Time) GenerationEvent {
	return GenerationEvent{
		BaseEvent: newBase(sessionID, TypeGenerationRequested, version, at),
		Scope:     scope,
		Sequence:  seq,
	}
}

// NewGenerationDiscarded creates a generation.discarded event
func NewGenerationDiscarded(sessionID, scope string, seq uint64, reason string, version int, at time.Time) GenerationEvent {
	return GenerationEvent{
		BaseEvent: newBase(sessionID, TypeGenerationDiscarded, version, at),
		Scope:     scope,
		Sequence:  seq,
		Reason:    reason,
	}
}

// NewGenerationMerged creates a generation.merged event
func NewGenerationMerged(sessionID, scope string, seq uint64, merged, skipped, version int, at time.Time) GenerationEvent {
	return GenerationEvent{
		BaseEvent: newBase(sessionID, TypeGenerationMerged, version, at),
		Scope:     scope,
		Sequence:  seq,
		Merged:    merged,
		Skipped:   skipped,
	}
}
