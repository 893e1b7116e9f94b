// Package http exposes the process's HTTP surface: Prometheus metrics,
// a liveness probe, and the dashboard WebSocket upgrade endpoint.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/andreirk/bscwatch/internal/handlers/websocket"
)

// Server bundles the process's HTTP routes behind one listener.
type Server struct {
	broadcaster *websocket.AlertBroadcaster
	metrics     http.Handler
	mux         *http.ServeMux
	server      *http.Server
}

// NewServer builds the HTTP server. metrics is the promhttp handler from
// observability.Handler.
func NewServer(addr string, metrics http.Handler, broadcaster *websocket.AlertBroadcaster) *Server {
	mux := http.NewServeMux()
	s := &Server{
		broadcaster: broadcaster,
		metrics:     metrics,
		mux:         mux,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/metrics", s.metrics)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ws", s.broadcaster.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Start begins listening for HTTP requests, blocking until Shutdown.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
