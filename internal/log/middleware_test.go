package log

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestLoggerLogsRequest(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&Config{Level: "info", Format: "text"}, &buf)

	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, GetRequestID(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/auth/plex/start", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	out := buf.String()
	assert.Contains(t, out, "http request")
	assert.Contains(t, out, "path=/api/v1/auth/plex/start")
	assert.Contains(t, out, "status=200")
}

func TestRequestLoggerWarnsOnClientError(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&Config{Level: "info", Format: "text"}, &buf)

	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	req := httptest.NewRequest("GET", "/api/v1/auth/plex/callback", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Contains(t, buf.String(), "level=WARN")
}

func TestGetRequestIDMissing(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, GetRequestID(req.Context()))
}
