package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LLINLU/memory-ai-v3-sub002/application/commands"
	"github.com/LLINLU/memory-ai-v3-sub002/application/commands/bus"
	querybus "github.com/LLINLU/memory-ai-v3-sub002/application/queries/bus"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/common"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// NodeHandler handles requests that edit a session's levels
type NodeHandler struct {
	base
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler) *NodeHandler {
	return &NodeHandler{base{commandBus: commandBus, queryBus: queryBus, errs: errs}}
}

// SetLevelRequest is the body of PUT /sessions/{id}/levels/{level}
type SetLevelRequest struct {
	ParentID string               `json:"parentId,omitempty"`
	Nodes    []commands.NodeInput `json:"nodes"`
}

// AddNodeRequest is the body of POST /sessions/{id}/nodes
type AddNodeRequest struct {
	Level       int    `json:"level"`
	ParentID    string `json:"parentId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateNodeRequest is the body of PATCH /sessions/{id}/nodes/{nodeId}
type UpdateNodeRequest struct {
	Level       int     `json:"level"`
	ParentID    string  `json:"parentId,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Info        *string `json:"info,omitempty"`
}

// SetLevel handles PUT /sessions/{sessionID}/levels/{level}
func (h *NodeHandler) SetLevel(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	level, err := common.IntParam(r, "level")
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	var req SetLevelRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Nodes == nil {
		req.Nodes = []commands.NodeInput{}
	}
	h.execute(w, r, http.StatusNoContent, commands.SetLevelCommand{
		UserID:    userID,
		SessionID: sessionID(r),
		Level:     level,
		ParentID:  req.ParentID,
		Nodes:     req.Nodes,
	})
}

// AddNode handles POST /sessions/{sessionID}/nodes
func (h *NodeHandler) AddNode(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req AddNodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.execute(w, r, http.StatusCreated, commands.AddCustomNodeCommand{
		UserID:      userID,
		SessionID:   sessionID(r),
		Level:       req.Level,
		ParentID:    req.ParentID,
		Name:        req.Name,
		Description: req.Description,
	})
}

// UpdateNode handles PATCH /sessions/{sessionID}/nodes/{nodeID}
func (h *NodeHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req UpdateNodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.execute(w, r, http.StatusOK, commands.UpdateNodeCommand{
		UserID:      userID,
		SessionID:   sessionID(r),
		Level:       req.Level,
		ParentID:    req.ParentID,
		NodeID:      chi.URLParam(r, "nodeID"),
		Name:        req.Name,
		Description: req.Description,
		Info:        req.Info,
	})
}

// RemoveNode handles DELETE /sessions/{sessionID}/nodes/{nodeID}
func (h *NodeHandler) RemoveNode(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	level, err := common.IntQuery(r, "level", 0)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	cascade, err := common.BoolQuery(r, "cascade")
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	h.execute(w, r, http.StatusOK, commands.RemoveNodeCommand{
		UserID:    userID,
		SessionID: sessionID(r),
		Level:     level,
		ParentID:  r.URL.Query().Get("parent"),
		NodeID:    chi.URLParam(r, "nodeID"),
		Cascade:   cascade,
	})
}

// Prune handles POST /sessions/{sessionID}/prune
func (h *NodeHandler) Prune(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	h.execute(w, r, http.StatusOK, commands.PruneOrphansCommand{UserID: userID, SessionID: sessionID(r)})
}
