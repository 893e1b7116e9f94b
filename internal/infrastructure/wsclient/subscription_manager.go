// Package wsclient implements C8: the long-lived WebSocket connection to
// the BSC node, topic-group subscription bookkeeping, heartbeat, and
// reconnect-with-resubscribe.
package wsclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/andreirk/bscwatch/internal/decode"
	"github.com/andreirk/bscwatch/internal/observability"
)

// TopicGroup is one eth_subscribe("logs", {address, topics}) request the
// manager keeps alive across reconnects.
type TopicGroup struct {
	Addresses []string
	Topics    [][]string
}

// Manager owns one WS connection at a time, subscribing to every
// registered TopicGroup and re-subscribing to all of them (with fresh
// subscription ids) after a reconnect.
type Manager struct {
	url    string
	groups []TopicGroup

	mu       sync.Mutex
	conn     *websocket.Conn
	subToIdx map[string]int // subscription id -> index into groups

	metrics *observability.Registry

	pingInterval time.Duration
	pongTimeout  time.Duration
}

// NewManager builds a manager for the given endpoint and topic groups.
func NewManager(url string, groups []TopicGroup, metrics *observability.Registry) *Manager {
	return &Manager{
		url:          url,
		groups:       groups,
		subToIdx:     make(map[string]int),
		metrics:      metrics,
		pingInterval: 30 * time.Second,
		pongTimeout:  10 * time.Second,
	}
}

// Run dials, subscribes, and reads frames until ctx is cancelled,
// reconnecting with exponential backoff on any read/write/pong failure.
// handle is invoked for every raw frame the socket delivers.
func (m *Manager) Run(ctx context.Context, handle func(raw []byte)) error {
	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(1*time.Second),
		backoff.WithMaxInterval(60*time.Second),
		backoff.WithMultiplier(2),
		backoff.WithMaxElapsedTime(0),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := m.runOnce(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := bo.NextBackOff()
		if m.metrics != nil {
			m.metrics.WSConnections.Set(0)
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		_ = err // logged by caller via structured logging around Run
	}
}

func (m *Manager) runOnce(ctx context.Context, handle func(raw []byte)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	m.mu.Lock()
	m.conn = conn
	m.subToIdx = make(map[string]int)
	m.mu.Unlock()

	if err := m.subscribeAll(conn, handle); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if m.metrics != nil {
		m.metrics.WSConnections.Set(1)
	}

	done := make(chan struct{})
	defer close(done)
	go m.heartbeat(conn, done)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.pingInterval + m.pongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(m.pingInterval + m.pongTimeout))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		handle(raw)
	}
}

func (m *Manager) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

type subscribeRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// subscribeAll sends one eth_subscribe per group and waits for the ack
// carrying that request's id. Frames read in the meantime that are not that
// ack (notifications for a group already subscribed) are passed to handle
// once every group is subscribed.
func (m *Manager) subscribeAll(conn *websocket.Conn, handle func(raw []byte)) error {
	var early [][]byte
	for i, g := range m.groups {
		req := subscribeRequest{
			JSONRPC: "2.0",
			ID:      i + 1,
			Method:  "eth_subscribe",
			Params: []any{
				"logs",
				map[string]any{"address": g.Addresses, "topics": g.Topics},
			},
		}
		if err := conn.WriteJSON(req); err != nil {
			return err
		}

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			reqID, subID, err := decode.New(nil).DecodeSubscribeAck(raw)
			if reqID != req.ID {
				early = append(early, raw)
				continue
			}
			if err != nil {
				return err
			}
			m.mu.Lock()
			m.subToIdx[subID] = i
			m.mu.Unlock()
			break
		}
	}
	for _, raw := range early {
		handle(raw)
	}
	return nil
}

// TopicGroupFor returns which registered TopicGroup a subscription id
// routes to, used by callers that need per-group handling.
func (m *Manager) TopicGroupFor(subID string) (TopicGroup, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.subToIdx[subID]
	if !ok {
		return TopicGroup{}, false
	}
	return m.groups[idx], true
}

// ActiveSubscriptionCount reports how many subscriptions are currently
// mapped, used by tests asserting reconnect preserves the topic-group set.
func (m *Manager) ActiveSubscriptionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subToIdx)
}
