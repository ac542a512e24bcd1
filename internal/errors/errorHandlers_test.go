package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handle(t *testing.T, err error) (int, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/thing", nil)

	HandleError(c, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   ErrorType
		wantMsg    string
	}{
		{"bad request", New400Error("Message is required"), http.StatusBadRequest, ErrorTypeBadRequest, "Message is required"},
		{"default unauthorized message", New401Error(""), http.StatusUnauthorized, ErrorTypeUnauthorized, "Unauthorized access"},
		{"not found", New404Error("Not found."), http.StatusNotFound, ErrorTypeNotFound, "Not found."},
		{"quota", New429Error("Daily request limit exceeded"), http.StatusTooManyRequests, ErrorTypeQuotaExceeded, "Daily request limit exceeded"},
		{"provider", NewProviderError("OpenRouter API error: 502 Bad Gateway", nil), http.StatusInternalServerError, ErrorTypeProvider, "OpenRouter API error: 502 Bad Gateway"},
		{"plain error", fmt.Errorf("disk on fire"), http.StatusInternalServerError, ErrorTypeInternalServerError, "Unexpected error: disk on fire"},
		{"wrapped custom error", fmt.Errorf("ctx: %w", New403Error()), http.StatusForbidden, ErrorTypeForbidden, "Access forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := handle(t, tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, string(tt.wantType), body["type"])
			assert.Equal(t, tt.wantMsg, body["error"])
		})
	}
}

func TestHandleError_Extra(t *testing.T) {
	status, body := handle(t, NewProviderError("boom", nil).With("conversation", gin.H{"id": "c-1"}))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, map[string]interface{}{"id": "c-1"}, body["conversation"])
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gin.DefaultErrorWriter = io.Discard
	r := gin.New()
	r.Use(Recovery())
	r.POST("/api/chat", func(c *gin.Context) {
		panic("nil map write")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/chat", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Unexpected error: panic: nil map write", body["error"])
	assert.Equal(t, string(ErrorTypeInternalServerError), body["type"])
}
