package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxRequestBodySize limits POST body sizes.
const maxRequestBodySize = 10 << 20 // 10 MB

// Response is the success envelope.
type Response struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is the failure envelope. Data carries partial results when
// an operation failed after doing some work.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
	Data    any       `json:"data,omitempty"`
}

// ErrorBody describes a failure.
type ErrorBody struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	Timestamp string    `json:"timestamp"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing left to report to the client.
		slog.Debug("Failed to encode response", "error", err)
	}
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Response{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: timestamp(),
	})
}

func writeError(w http.ResponseWriter, e *APIError, data any) {
	writeJSON(w, e.Status, ErrorResponse{
		Error: ErrorBody{
			Type:      e.Type,
			Message:   e.Message,
			Details:   e.Details,
			Timestamp: timestamp(),
		},
		Data: data,
	})
}

func writeText(w http.ResponseWriter, status int, contentType, body string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched
// when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) *APIError {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			if allowEmpty {
				return nil
			}
			return badRequest("Request body is required", nil)
		}
		return badRequest("Invalid request body", err.Error())
	}
	return nil
}
