package queries

import (
	"time"

	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/entities"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/utils"
)

// GetSessionQuery represents a query to get the navigation state of a session
type GetSessionQuery struct {
	UserID    string `validate:"required"`
	SessionID string `validate:"required,uuid"`
}

// Validate validates the GetSessionQuery
func (q GetSessionQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// GetLevelViewQuery asks for the reordered display lists along the
// current path. A zero Level returns every reachable level.
type GetLevelViewQuery struct {
	UserID    string `validate:"required"`
	SessionID string `validate:"required,uuid"`
	Level     int    `validate:"gte=0"`
}

// Validate validates the GetLevelViewQuery
func (q GetLevelViewQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// GetNodeInfoQuery asks for the title and description of the deepest
// resolvable selection.
type GetNodeInfoQuery struct {
	UserID    string `validate:"required"`
	SessionID string `validate:"required,uuid"`
}

// Validate validates the GetNodeInfoQuery
func (q GetNodeInfoQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// ListSessionsQuery lists the caller's sessions, most recent first
type ListSessionsQuery struct {
	UserID string `validate:"required"`
	Limit  int    `validate:"gte=0,lte=100"`
}

// Validate validates the ListSessionsQuery
func (q ListSessionsQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// PendingGeneration describes an outstanding generation request
type PendingGeneration struct {
	Scope    string    `json:"scope"`
	Sequence uint64    `json:"sequence"`
	IssuedAt time.Time `json:"issuedAt"`
}

// SessionView represents the navigation state of a session
type SessionView struct {
	ID          string              `json:"id"`
	TreeID      string              `json:"treeId,omitempty"`
	Query       string              `json:"query,omitempty"`
	Mode        string              `json:"mode"`
	Path        []string            `json:"path"`
	CanUndo     bool                `json:"canUndo"`
	CanRedo     bool                `json:"canRedo"`
	NodeCount   int                 `json:"nodeCount"`
	OrphanLists int                 `json:"orphanLists"`
	Pending     []PendingGeneration `json:"pending"`
	Version     int                 `json:"version"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

// LevelViewResult represents one displayed children list
type LevelViewResult struct {
	Level    int                 `json:"level"`
	ParentID string              `json:"parentId,omitempty"`
	Selected string              `json:"selected,omitempty"`
	Nodes    []entities.NodeData `json:"nodes"`
}

// GetLevelViewResult holds the projected levels, shallowest first
type GetLevelViewResult struct {
	SessionID string            `json:"sessionId"`
	Levels    []LevelViewResult `json:"levels"`
}

// NodeInfoResult is the content of the detail panel. Empty Title and
// Description mean nothing resolved.
type NodeInfoResult struct {
	Level       int    `json:"level,omitempty"`
	NodeID      string `json:"nodeId,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Info        string `json:"info,omitempty"`
	IsCustom    bool   `json:"isCustom,omitempty"`
}

// SessionSummary is one entry of ListSessionsResult
type SessionSummary struct {
	ID        string    `json:"id"`
	TreeID    string    `json:"treeId,omitempty"`
	Query     string    `json:"query,omitempty"`
	Depth     int       `json:"depth"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListSessionsResult represents the result of listing sessions
type ListSessionsResult struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int              `json:"total"`
}
