package server

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/markb/plexgate/internal/log"
)

// APIResponse is the envelope every endpoint writes. Status is "success" or
// "error"; exactly one of Data and Error is set.
type APIResponse struct {
	Status   string    `json:"status"`
	Data     any       `json:"data,omitempty"`
	Error    *APIError `json:"error,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// APIError carries a stable machine-readable code plus a human-readable
// message. Messages never include provider error detail; that goes to logs.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Metadata holds response metadata.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// Stable error codes.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInvalidState       = "INVALID_STATE"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeOAuthNotConfigured = "OAUTH_NOT_CONFIGURED"
	CodeUpstreamError      = "UPSTREAM_ERROR"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternalError      = "INTERNAL_ERROR"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	writeResponse(w, status, &APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: &Metadata{Timestamp: time.Now().UTC()},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeResponse(w, status, &APIResponse{
		Status:   "error",
		Error:    &APIError{Code: code, Message: message},
		Metadata: &Metadata{Timestamp: time.Now().UTC()},
	})
}

func writeResponse(w http.ResponseWriter, status int, resp *APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("failed to encode response", "error", err.Error())
	}
}
