package handlers

import (
	"net/http"

	"github.com/LLINLU/memory-ai-v3-sub002/application/commands"
	"github.com/LLINLU/memory-ai-v3-sub002/application/commands/bus"
	"github.com/LLINLU/memory-ai-v3-sub002/application/queries"
	querybus "github.com/LLINLU/memory-ai-v3-sub002/application/queries/bus"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/common"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// SessionHandler handles session lifecycle, selection and history requests
type SessionHandler struct {
	base
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(commandBus *bus.CommandBus, queryBus *querybus.QueryBus, errs *pkgerrors.ErrorHandler) *SessionHandler {
	return &SessionHandler{base{commandBus: commandBus, queryBus: queryBus, errs: errs}}
}

// StartSessionRequest is the body of POST /sessions
type StartSessionRequest struct {
	TreeID string `json:"treeId,omitempty"`
}

// SelectRequest is the body of POST /sessions/{id}/select
type SelectRequest struct {
	Level  int    `json:"level"`
	NodeID string `json:"nodeId"`
}

// StartSession handles POST /sessions
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req StartSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.execute(w, r, http.StatusCreated, commands.StartSessionCommand{UserID: userID, TreeID: req.TreeID})
}

// ListSessions handles GET /sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	limit, err := common.IntQuery(r, "limit", 20)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	h.ask(w, r, queries.ListSessionsQuery{UserID: userID, Limit: limit})
}

// GetSession handles GET /sessions/{sessionID}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	h.ask(w, r, queries.GetSessionQuery{UserID: userID, SessionID: sessionID(r)})
}

// DeleteSession handles DELETE /sessions/{sessionID}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	h.execute(w, r, http.StatusNoContent, commands.DeleteSessionCommand{UserID: userID, SessionID: sessionID(r)})
}

// Select handles POST /sessions/{sessionID}/select
func (h *SessionHandler) Select(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req SelectRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.execute(w, r, http.StatusOK, commands.SelectNodeCommand{
		UserID:    userID,
		SessionID: sessionID(r),
		Level:     req.Level,
		NodeID:    req.NodeID,
	})
}

// ClearSelection handles DELETE /sessions/{sessionID}/select/{level}
func (h *SessionHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	level, err := common.IntParam(r, "level")
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	h.execute(w, r, http.StatusOK, commands.ClearSelectionCommand{
		UserID:    userID,
		SessionID: sessionID(r),
		FromLevel: level,
	})
}

// Undo handles POST /sessions/{sessionID}/undo
func (h *SessionHandler) Undo(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, commands.DirectionUndo)
}

// Redo handles POST /sessions/{sessionID}/redo
func (h *SessionHandler) Redo(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, commands.DirectionRedo)
}

func (h *SessionHandler) navigate(w http.ResponseWriter, r *http.Request, direction string) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	h.execute(w, r, http.StatusOK, commands.NavigateHistoryCommand{
		UserID:    userID,
		SessionID: sessionID(r),
		Direction: direction,
	})
}

// LevelView handles GET /sessions/{sessionID}/view
func (h *SessionHandler) LevelView(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	level, err := common.IntQuery(r, "level", 0)
	if err != nil {
		h.errs.Handle(w, r, err)
		return
	}
	h.ask(w, r, queries.GetLevelViewQuery{UserID: userID, SessionID: sessionID(r), Level: level})
}

// NodeInfo handles GET /sessions/{sessionID}/info
func (h *SessionHandler) NodeInfo(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	h.ask(w, r, queries.GetNodeInfoQuery{UserID: userID, SessionID: sessionID(r)})
}
