package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	pkgerrors "github.com/LLINLU/memory-ai-v3-sub002/pkg/errors"
)

// DefaultMaxBodyBytes bounds request bodies
const DefaultMaxBodyBytes = 1 << 20

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *MetaInfo   `json:"meta,omitempty"`
}

// MetaInfo contains metadata about the response
type MetaInfo struct {
	RequestID string `json:"request_id,omitempty"`
	Total     int    `json:"total,omitempty"`
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	RespondWithMeta(w, status, data, nil)
}

// RespondWithMeta sends a response with metadata
func RespondWithMeta(w http.ResponseWriter, status int, data interface{}, meta *MetaInfo) {
	response := APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// ParseJSONBody decodes a JSON request body with a size limit. An empty
// body leaves v untouched. Malformed input is a validation error.
func ParseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.NewValidationError("request body too large").
				WithCode("BODY_TOO_LARGE").
				WithDetail("limit", strconv.FormatInt(maxBytes, 10))
		}
		return pkgerrors.NewValidationError("invalid request body: " + err.Error()).
			WithCode("INVALID_BODY")
	}
	return nil
}
