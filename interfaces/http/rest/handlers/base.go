package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LLINLU/memory-ai-v3-sub002/application/commands/bus"
	querybus "github.com/LLINLU/memory-ai-v3-sub002/application/queries/bus"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/auth"
	"github.com/LLINLU/memory-ai-v3-sub002/pkg/common"
	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// base holds what every resource handler needs
type base struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errs       *pkgerrors.ErrorHandler
}

// userID returns the authenticated caller or writes a 401
func (b *base) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil || user.UserID == "" {
		b.errs.Handle(w, r, pkgerrors.NewUnauthorizedError("Unauthorized"))
		return "", false
	}
	return user.UserID, true
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

// execute sends cmd and writes its result with status
func (b *base) execute(w http.ResponseWriter, r *http.Request, status int, cmd bus.Command) {
	result, err := b.commandBus.Execute(r.Context(), cmd)
	if err != nil {
		b.errs.Handle(w, r, err)
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	common.RespondJSON(w, status, result)
}

// ask runs query and writes its result
func (b *base) ask(w http.ResponseWriter, r *http.Request, query querybus.Query) {
	result, err := b.queryBus.Ask(r.Context(), query)
	if err != nil {
		b.errs.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// decode reads the request body into v, writing a 400 on failure
func (b *base) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := common.ParseJSONBody(w, r, v, common.DefaultMaxBodyBytes); err != nil {
		b.errs.Handle(w, r, err)
		return false
	}
	return true
}
