package commands

import (
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/utils"
)

// NodeInput is a node supplied by a client
type NodeInput struct {
	ID          string `json:"id" validate:"required,max=200"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description,omitempty" validate:"max=4000"`
	Info        string `json:"info,omitempty" validate:"max=500"`
	IsCustom    bool   `json:"isCustom,omitempty"`
}

// SetLevelCommand replaces the children list of ParentID at Level
type SetLevelCommand struct {
	UserID    string      `json:"user_id" validate:"required"`
	SessionID string      `json:"session_id" validate:"required,uuid"`
	Level     int         `json:"level" validate:"gte=1"`
	ParentID  string      `json:"parent_id" validate:"max=200"`
	Nodes     []NodeInput `json:"nodes" validate:"dive"`
}

// Validate validates the command
func (cmd SetLevelCommand) Validate() error {
	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}
	return requireParent(cmd.Level, cmd.ParentID)
}

// AddCustomNodeCommand appends a user-authored node
type AddCustomNodeCommand struct {
	UserID      string `json:"user_id" validate:"required"`
	SessionID   string `json:"session_id" validate:"required,uuid"`
	Level       int    `json:"level" validate:"gte=1"`
	ParentID    string `json:"parent_id" validate:"max=200"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
}

// Validate validates the command
func (cmd AddCustomNodeCommand) Validate() error {
	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}
	return requireParent(cmd.Level, cmd.ParentID)
}

// UpdateNodeCommand renames or annotates a node. Nil fields are unchanged.
type UpdateNodeCommand struct {
	UserID      string  `json:"user_id" validate:"required"`
	SessionID   string  `json:"session_id" validate:"required,uuid"`
	Level       int     `json:"level" validate:"gte=1"`
	ParentID    string  `json:"parent_id" validate:"max=200"`
	NodeID      string  `json:"node_id" validate:"required,max=200"`
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=4000"`
	Info        *string `json:"info,omitempty" validate:"omitempty,max=500"`
}

// Validate validates the command
func (cmd UpdateNodeCommand) Validate() error {
	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}
	if cmd.Name == nil && cmd.Description == nil && cmd.Info == nil {
		return errors.NewValidationError("nothing to update")
	}
	return requireParent(cmd.Level, cmd.ParentID)
}

// RemoveNodeCommand deletes a node; Cascade also drops its descendants
type RemoveNodeCommand struct {
	UserID    string `json:"user_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required,uuid"`
	Level     int    `json:"level" validate:"gte=1"`
	ParentID  string `json:"parent_id" validate:"max=200"`
	NodeID    string `json:"node_id" validate:"required,max=200"`
	Cascade   bool   `json:"cascade"`
}

// Validate validates the command
func (cmd RemoveNodeCommand) Validate() error {
	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}
	return requireParent(cmd.Level, cmd.ParentID)
}

// PruneOrphansCommand drops children lists whose parent no longer exists
type PruneOrphansCommand struct {
	UserID    string `json:"user_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required,uuid"`
}

// Validate validates the command
func (cmd PruneOrphansCommand) Validate() error {
	return utils.ValidateStruct(cmd)
}

func requireParent(level int, parentID string) error {
	if level > 1 && parentID == "" {
		return errors.NewValidationError("parent_id is required below level 1").
			WithCode("MISSING_PARENT")
	}
	return nil
}
