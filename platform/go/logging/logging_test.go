package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerWritesCloudSeverity(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLogger(Config{Component: "api-server", Level: "debug", Output: &buf})
	require.NoError(t, err)

	logger.Warn("careful")
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "WARNING", entry["severity"])
	require.Equal(t, "careful", entry["message"])
	require.Equal(t, "api-server", entry["component"])
}

func TestNewLoggerRejectsUnknownSettings(t *testing.T) {
	t.Parallel()

	_, err := NewLogger(Config{Level: "loud"})
	require.Error(t, err)

	_, err = NewLogger(Config{Format: "xml"})
	require.Error(t, err)
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(zap.New(core)))
	r.Get("/ok", func(w http.ResponseWriter, req *http.Request) {
		_, ok := FromContext(req.Context())
		require.True(t, ok)
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/boom", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	require.NotEmpty(t, entries[0].ContextMap()["request_id"])
}
