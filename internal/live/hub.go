// Package live pushes refreshed HTML fragments to a user's open tabs over
// WebSocket.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	writeTimeout  = 2 * time.Second
	sendQueueSize = 16
)

// Event types.
const (
	EventSelection = "selection"
	EventChat      = "chat"
	EventPong      = "pong"
)

// Event is one message sent to a tab.
type Event struct {
	Type  string `json:"type"`
	Grid  string `json:"grid,omitempty"`
	Panel string `json:"panel,omitempty"`
	Log   string `json:"log,omitempty"`
}

// Hub tracks the open connections of every user. Two connections may share
// a tab id, as happens when a browser duplicates a tab.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[*websocket.Conn]*client

	write func(ctx context.Context, conn *websocket.Conn, data []byte) error
}

// client owns the outgoing queue of one connection. A single writer
// goroutine drains send so publishers never wait on the network.
type client struct {
	tabID string
	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}
	stop  sync.Once
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[string]map[*websocket.Conn]*client),
		write: func(ctx context.Context, conn *websocket.Conn, data []byte) error {
			return conn.Write(ctx, websocket.MessageText, data)
		},
	}
}

// GetActive returns a connection of a user's tab.
func (h *Hub) GetActive(userID, tabID string) *websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, c := range h.active[userID] {
		if c.tabID == tabID {
			return conn
		}
	}
	return nil
}

// Count returns how many connections userID has open.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[userID])
}

// Register adds a connection for a user's tab and starts its writer.
func (h *Hub) Register(userID, tabID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[*websocket.Conn]*client)
	}
	if _, exists := h.active[userID][conn]; exists {
		return
	}

	c := &client{
		tabID: tabID,
		conn:  conn,
		send:  make(chan []byte, sendQueueSize),
		done:  make(chan struct{}),
	}
	h.active[userID][conn] = c
	go h.writeLoop(userID, c)
	slog.Info("Live connection registered", "user_id", userID, "session_id", tabID)
}

// Unregister removes conn and stops its writer.
func (h *Hub) Unregister(userID, tabID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.active[userID]
	if !ok {
		return
	}
	c, exists := conns[conn]
	if !exists {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.active, userID)
	}
	c.close()
	slog.Info("Live connection unregistered", "user_id", userID, "session_id", tabID)
}

// CloseUser closes every connection of userID.
func (h *Hub) CloseUser(userID string) {
	h.mu.Lock()
	conns, ok := h.active[userID]
	delete(h.active, userID)
	h.mu.Unlock()

	if !ok {
		return
	}
	for conn, c := range conns {
		c.close()
		_ = conn.Close(websocket.StatusNormalClosure, "session expired")
		slog.Info("Live connection closed", "user_id", userID, "session_id", c.tabID)
	}
}

// SelectionChanged pushes the grid and panel fragments to userID's tabs.
func (h *Hub) SelectionChanged(userID, gridHTML, panelHTML string) {
	h.Publish(userID, Event{Type: EventSelection, Grid: gridHTML, Panel: panelHTML})
}

// ChatChanged pushes the chat log fragment to userID's tabs.
func (h *Hub) ChatChanged(userID, chatHTML string) {
	h.Publish(userID, Event{Type: EventChat, Log: chatHTML})
}

// Publish queues ev for every connection of userID without blocking. A
// connection whose queue is full misses the event.
func (h *Hub) Publish(userID string, ev Event) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.active[userID]))
	for _, c := range h.active[userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to encode live event", "type", ev.Type, "error", err)
		return
	}

	for _, c := range clients {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			slog.Warn("Live queue full, dropping event", "user_id", userID, "session_id", c.tabID, "type", ev.Type)
		}
	}
}

// writeLoop sends queued events until the client is closed. Failed writes
// are logged and the connection is left to its read loop to clean up.
func (h *Hub) writeLoop(userID string, c *client) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			if err := h.write(ctx, c.conn, data); err != nil {
				slog.Debug("Live write failed", "user_id", userID, "session_id", c.tabID, "error", err)
			}
			cancel()
		}
	}
}

func (c *client) close() {
	c.stop.Do(func() { close(c.done) })
}
