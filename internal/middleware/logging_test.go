// internal/middleware/logging_test.go
package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMiddleware(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	h := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/ABCD", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "/api/rooms/ABCD", entry.Data["path"])
	assert.Equal(t, http.MethodGet, entry.Data["method"])
	assert.Equal(t, http.StatusTeapot, entry.Data["status"])

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	assert.Len(t, hook.AllEntries(), 2)
}

func TestLogWebSocketDisconnect(t *testing.T) {
	logger, hook := test.NewNullLogger()

	LogWebSocketConnect(logger, "10.0.0.1:5000", "/ws")
	LogWebSocketDisconnect(logger, "10.0.0.1:5000", "/ws", nil)
	assert.NotContains(t, hook.LastEntry().Data, "error")

	LogWebSocketDisconnect(logger, "10.0.0.1:5000", "/ws", errors.New("reset"))
	assert.Equal(t, "reset", hook.LastEntry().Data["error"].(error).Error())
	assert.Len(t, hook.AllEntries(), 3)
}
