package common

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// IntParam reads an integer URL parameter
func IntParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.NewValidationError(name + " must be an integer").
			WithDetail(name, raw)
	}
	return n, nil
}

// IntQuery reads an optional integer query parameter, def when absent
func IntQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.NewValidationError(name + " must be an integer").
			WithDetail(name, raw)
	}
	return n, nil
}

// BoolQuery reads an optional boolean query parameter
func BoolQuery(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, pkgerrors.NewValidationError(name + " must be a boolean").
			WithDetail(name, raw)
	}
	return b, nil
}
