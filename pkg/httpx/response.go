// Package httpx provides HTTP response utilities.
package httpx

import (
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	archerr "github.com/nicktill/statvault/pkg/errors"
)

// RespondJSON writes a JSON response with the given status code and data.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode JSON response", zap.Error(err))
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// RespondError writes err with the status its code maps to.
func RespondError(w http.ResponseWriter, err error) {
	status := archerr.HTTPStatus(err)
	RespondJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Code:    string(archerr.CodeOf(err)),
		Message: http.StatusText(status),
	})
}

// RespondErrorString writes an error response with the given status code and error message string.
func RespondErrorString(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error:   message,
		Message: http.StatusText(status),
	})
}
