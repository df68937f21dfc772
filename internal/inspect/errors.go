package inspect

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/conduit-lang/objrt/runtime/object"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error  ErrorDetail `json:"error"`
	Status int         `json:"status"`
	Path   string      `json:"path,omitempty"`
	Method string      `json:"method,omitempty"`
}

// ErrorDetail contains detailed error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:  ErrorDetail{Code: code, Message: message},
		Status: status,
		Path:   r.URL.Path,
		Method: r.Method,
	})
}

// writeObjectError maps runtime errors to HTTP responses
func writeObjectError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch {
	case errors.Is(err, object.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, object.ErrNotWritable):
		status, code = http.StatusForbidden, "NOT_WRITABLE"
	case errors.Is(err, object.ErrNotReadable):
		status, code = http.StatusForbidden, "NOT_READABLE"
	case errors.Is(err, object.ErrArityMismatch):
		status, code = http.StatusBadRequest, "ARITY_MISMATCH"
	case errors.Is(err, object.ErrArgTypeMismatch), errors.Is(err, object.ErrTypeMismatch):
		status, code = http.StatusUnprocessableEntity, "TYPE_MISMATCH"
	case errors.Is(err, object.ErrValidationFailed):
		status, code = http.StatusUnprocessableEntity, "VALIDATION_FAILED"
	}
	writeError(w, r, status, code, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
