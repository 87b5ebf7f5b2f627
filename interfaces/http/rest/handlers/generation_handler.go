package handlers

import (
	"net/http"

	"github.com/LLINLU/memory-ai-v3-sub002/application/commands"
	"github.com/LLINLU/memory-ai-v3-sub002/application/commands/bus"
	querybus "github.com/LLINLU/memory-ai-v3-sub002/application/queries/bus"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// GenerationHandler handles tree generation and subtree expansion
type GenerationHandler struct {
	base
}

// NewGenerationHandler creates a new generation handler
func NewGenerationHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler) *GenerationHandler {
	return &GenerationHandler{base{commandBus: commandBus, queryBus: queryBus, errs: errs}}
}

// GenerateRequest is the body of POST /sessions/{id}/generate
type GenerateRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
	Save  bool   `json:"save,omitempty"`
}

// ExpandRequest is the body of POST /sessions/{id}/expand
type ExpandRequest struct {
	Level    int    `json:"level"`
	ParentID string `json:"parentId,omitempty"`
	NodeID   string `json:"nodeId"`
}

// Generate handles POST /sessions/{sessionID}/generate
func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req GenerateRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.execute(w, r, http.StatusOK, commands.GenerateTreeCommand{
		UserID:    userID,
		SessionID: sessionID(r),
		Query:     req.Query,
		Mode:      req.Mode,
		Save:      req.Save,
	})
}

// Expand handles POST /sessions/{sessionID}/expand
func (h *GenerationHandler) Expand(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req ExpandRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.execute(w, r, http.StatusOK, commands.ExpandNodeCommand{
		UserID:    userID,
		SessionID: sessionID(r),
		Level:     req.Level,
		ParentID:  req.ParentID,
		NodeID:    req.NodeID,
	})
}
