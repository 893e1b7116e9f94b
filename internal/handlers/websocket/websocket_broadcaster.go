// Package websocket exposes admitted alerts to connected dashboard clients
// over a plain WebSocket fan-out, separate from the upstream BSC
// subscription managed by internal/infrastructure/wsclient.
package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/andreirk/bscwatch/internal/domain/model"
)

// AlertBroadcaster fans an admitted alert out to every connected dashboard
// client, closing and dropping any client whose write fails.
type AlertBroadcaster struct {
	clients  map[*websocket.Conn]struct{}
	mu       sync.Mutex
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewAlertBroadcaster builds a broadcaster accepting connections from any
// origin, for a dashboard-facing CORS posture.
func NewAlertBroadcaster(log *slog.Logger) *AlertBroadcaster {
	return &AlertBroadcaster{
		clients:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		log:      log,
	}
}

// BroadcastAlert sends alert to every connected client. It writes to each
// client in turn on the caller's goroutine while holding the client map
// lock, with no write deadline, so a client that stops reading holds up the
// call until its write fails. A client whose write fails is closed and
// dropped rather than retried.
func (b *AlertBroadcaster) BroadcastAlert(alert *model.Alert) {
	msg, err := json.Marshal(alert)
	if err != nil {
		b.log.Warn("failed to marshal alert for broadcast", "err", err)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			b.log.Debug("dashboard client write failed, dropping", "err", err)
			c.Close()
			delete(b.clients, c)
		}
	}
}

// Handler upgrades incoming requests to WebSocket connections and registers
// them as broadcast recipients until they disconnect.
func (b *AlertBroadcaster) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.log.Warn("websocket upgrade failed", "err", err)
			return
		}
		b.mu.Lock()
		b.clients[conn] = struct{}{}
		b.mu.Unlock()

		go func() {
			defer func() {
				b.mu.Lock()
				delete(b.clients, conn)
				b.mu.Unlock()
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
