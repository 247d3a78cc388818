package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/ashureev/skincare-picker/internal/identity"
)

// ActivityFunc is called for every message a tab sends.
type ActivityFunc func(userID string)

// Handler upgrades /ws/session requests and keeps the connection registered
// with the hub until the tab goes away.
type Handler struct {
	hub           *Hub
	onActivity    ActivityFunc
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a WebSocket handler.
func NewHandler(hub *Hub, onActivity ActivityFunc, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		hub:           hub,
		onActivity:    onActivity,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

type clientMessage struct {
	Type string `json:"type"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	tabID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.hub.Register(userID, tabID, ws)
	defer h.hub.Unregister(userID, tabID, ws)

	h.readLoop(r.Context(), ws, userID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin || origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Debug("WebSocket read ended", "error", err, "user_id", userID)
			}
			return
		}

		if h.onActivity != nil {
			h.onActivity(userID)
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			if err := writeJSON(ws, Event{Type: EventPong}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		}
	}
}

func writeJSON(ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
