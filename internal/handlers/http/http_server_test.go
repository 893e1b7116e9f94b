package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andreirk/bscwatch/internal/handlers/websocket"
)

func TestServer_HealthEndpoint(t *testing.T) {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	broadcaster := websocket.NewAlertBroadcaster(log)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	s := NewServer(":0", metrics, broadcaster)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestServer_MetricsEndpointIsMounted(t *testing.T) {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	broadcaster := websocket.NewAlertBroadcaster(log)
	called := false
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	s := NewServer(":0", metrics, broadcaster)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	require.True(t, called, "the /metrics route must dispatch to the provided handler")
}

func TestServer_ShutdownReturnsWithoutAcceptingNewConnections(t *testing.T) {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	broadcaster := websocket.NewAlertBroadcaster(log)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	s := NewServer(":0", metrics, broadcaster)
	err := s.Shutdown(context.Background())
	require.NoError(t, err)
}
