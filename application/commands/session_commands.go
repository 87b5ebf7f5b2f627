package commands

import (
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/utils"
)

// StartSessionCommand creates a new exploration session, optionally
// opening a saved tree.
type StartSessionCommand struct {
	UserID string `json:"user_id" validate:"required"`
	TreeID string `json:"tree_id" validate:"omitempty,max=100"`
}

// Validate validates the command
func (cmd StartSessionCommand) Validate() error {
	return utils.ValidateStruct(cmd)
}

// DeleteSessionCommand removes a session
type DeleteSessionCommand struct {
	UserID    string `json:"user_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required,uuid"`
}

// Validate validates the command
func (cmd DeleteSessionCommand) Validate() error {
	return utils.ValidateStruct(cmd)
}

// SelectNodeCommand selects a node at a level and clears deeper levels
type SelectNodeCommand struct {
	UserID    string `json:"user_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required,uuid"`
	Level     int    `json:"level" validate:"gte=1"`
	NodeID    string `json:"node_id" validate:"required,max=200"`
}

// Validate validates the command
func (cmd SelectNodeCommand) Validate() error {
	return utils.ValidateStruct(cmd)
}

// ClearSelectionCommand removes the selection at FromLevel and deeper
type ClearSelectionCommand struct {
	UserID    string `json:"user_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required,uuid"`
	FromLevel int    `json:"from_level" validate:"gte=1"`
}

// Validate validates the command
func (cmd ClearSelectionCommand) Validate() error {
	return utils.ValidateStruct(cmd)
}

// History directions
const (
	DirectionUndo = "undo"
	DirectionRedo = "redo"
)

// NavigateHistoryCommand moves the history cursor one step
type NavigateHistoryCommand struct {
	UserID    string `json:"user_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required,uuid"`
	Direction string `json:"direction" validate:"required,oneof=undo redo"`
}

// Validate validates the command
func (cmd NavigateHistoryCommand) Validate() error {
	return utils.ValidateStruct(cmd)
}
