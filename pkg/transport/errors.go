package transport

import (
	"encoding/json"
	"net/http"

	"github.com/rhuss/askdocs/pkg/api"
	"github.com/rhuss/askdocs/pkg/debug"
)

var errorStatus = map[api.ErrorType]int{
	api.ErrorTypeInvalidRequest:  http.StatusBadRequest,
	api.ErrorTypeNotFound:        http.StatusNotFound,
	api.ErrorTypeTooManyRequests: http.StatusTooManyRequests,
}

// HTTPStatusFromError returns the HTTP status for an APIError. Server and
// model errors, and any type without a mapping, are 500.
func HTTPStatusFromError(err *api.APIError) int {
	if status, ok := errorStatus[err.Type]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse writes apiErr as an {"error": {...}} JSON body with
// the given status. Use it when the status is decided by the transport
// (415, 405, 413) rather than by the error type.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr}); err != nil {
		debug.Log("transport", "writing error response failed", "error", err)
	}
}

// WriteAPIError writes apiErr with the status derived from its type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}
