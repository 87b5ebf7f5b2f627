package commands

import (
	"github.com/LLINLU/memory-ai-v3-sub002/domain/core/valueobjects"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/utils"
)

// GenerateTreeCommand asks the generation service for a whole new tree
// and loads it into the session.
type GenerateTreeCommand struct {
	UserID    string `json:"user_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required,uuid"`
	Query     string `json:"query" validate:"required,min=1,max=2000"`
	Mode      string `json:"mode" validate:"omitempty,max=30"`
	Save      bool   `json:"save"`
}

// Validate validates the command
func (cmd GenerateTreeCommand) Validate() error {
	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}
	if _, err := valueobjects.ParseGenerationMode(cmd.Mode); err != nil {
		return errors.NewValidationError(err.Error())
	}
	return nil
}

// ExpandNodeCommand generates the children of NodeID, which lives at
// Level under ParentID.
type ExpandNodeCommand struct {
	UserID    string `json:"user_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required,uuid"`
	Level     int    `json:"level" validate:"gte=1"`
	ParentID  string `json:"parent_id" validate:"max=200"`
	NodeID    string `json:"node_id" validate:"required,max=200"`
}

// Validate validates the command
func (cmd ExpandNodeCommand) Validate() error {
	if err := utils.ValidateStruct(cmd); err != nil {
		return err
	}
	return requireParent(cmd.Level, cmd.ParentID)
}
