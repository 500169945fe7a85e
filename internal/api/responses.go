// Package api serves the results of a selection run over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// STACError is the error body of every failed request.
type STACError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	RequestID   string `json:"request_id,omitempty"`
}

// Error codes.
const (
	ErrCodeNotFound         = "NotFound"
	ErrCodeInvalidParameter = "InvalidParameterValue"
	ErrCodeMethodNotAllowed = "MethodNotAllowed"
	ErrCodeServerError      = "ServerError"
	ErrCodeNoResults        = "NoResults"
)

// WriteJSON writes v as an application/json body.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	return write(w, status, "application/json", v)
}

// WriteGeoJSON writes a feature or feature collection as application/geo+json.
func WriteGeoJSON(w http.ResponseWriter, status int, v any) error {
	return write(w, status, "application/geo+json", v)
}

func write(w http.ResponseWriter, status int, contentType string, v any) error {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response",
			slog.String("content_type", contentType),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// WriteError writes an error body with the given status and code.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	_ = WriteJSON(w, status, STACError{Code: code, Description: message})
}

// WriteNotFound writes a 404.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// WriteInvalidParameter writes a 400 for a malformed query parameter.
func WriteInvalidParameter(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, ErrCodeInvalidParameter, message)
}

// WriteNoResults writes a 503 while no run results are loaded.
func WriteNoResults(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, ErrCodeNoResults, message)
}

// writeInternalError writes a 500 that carries the request id so the failure
// can be found in the logs.
func writeInternalError(w http.ResponseWriter, requestID string) {
	_ = WriteJSON(w, http.StatusInternalServerError, STACError{
		Code:        ErrCodeServerError,
		Description: "internal server error",
		RequestID:   requestID,
	})
}
