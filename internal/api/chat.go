package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/skincare-picker/internal/domain"
	"github.com/ashureev/skincare-picker/internal/identity"
	"github.com/ashureev/skincare-picker/internal/session"
)

// ChatHandler serves the question and routine flows.
type ChatHandler struct {
	*Handler
	limiter          *RateLimiter
	assistantEnabled bool
}

// NewChatHandler creates a chat handler. Requests are limited per user by
// limiter.
func NewChatHandler(base *Handler, limiter *RateLimiter, assistantEnabled bool) *ChatHandler {
	return &ChatHandler{Handler: base, limiter: limiter, assistantEnabled: assistantEnabled}
}

// RegisterRoutes registers chat routes and their form fallbacks.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/config", h.GetConfig)
	r.Get("/api/chat", h.History)
	r.Post("/api/chat", h.Ask)
	r.Post("/api/routine", h.Routine)
	r.Get("/fragments/chat", h.ChatFragment)

	r.Post("/ask", h.AskForm)
	r.Post("/routine", h.RoutineForm)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Bubble  domain.Bubble   `json:"bubble"`
	Bubbles []domain.Bubble `json:"bubbles"`
	Dropped bool            `json:"dropped,omitempty"`
}

// newChatResponse reports b with the current log. A bubble that is still
// pending was dropped by a newer request and is not in the log.
func newChatResponse(b domain.Bubble, bubbles []domain.Bubble) chatResponse {
	return chatResponse{Bubble: b, Bubbles: bubbles, Dropped: b.Pending()}
}

// GetConfig returns the server configuration for the page script.
func (h *ChatHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"assistant_enabled": h.assistantEnabled,
	})
}

// History returns the chat log.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"bubbles": s.Chat.Log().Bubbles(),
	})
}

// Ask sends a question to the assistant and returns the settled bubble.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok || !h.allow(w, r, s.UserID) {
		return
	}
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b := s.Ask(detach(r), req.Message)
	JSON(w, http.StatusOK, newChatResponse(b, s.Chat.Log().Bubbles()))
}

// Routine asks the assistant for a routine built from the selection.
func (h *ChatHandler) Routine(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok || !h.allow(w, r, s.UserID) {
		return
	}
	b := s.GenerateRoutine(detach(r))
	JSON(w, http.StatusOK, newChatResponse(b, s.Chat.Log().Bubbles()))
}

// ChatFragment returns the chat log HTML.
func (h *ChatHandler) ChatFragment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	html, err := s.ChatHTML()
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to render chat")
		return
	}
	HTML(w, http.StatusOK, html)
}

// AskForm is the no-script variant of Ask.
func (h *ChatHandler) AskForm(w http.ResponseWriter, r *http.Request) {
	h.form(w, r, func(ctx context.Context, s *session.Session, r *http.Request) {
		s.Ask(ctx, r.PostFormValue("message"))
	})
}

// RoutineForm is the no-script variant of Routine.
func (h *ChatHandler) RoutineForm(w http.ResponseWriter, r *http.Request) {
	h.form(w, r, func(ctx context.Context, s *session.Session, _ *http.Request) {
		s.GenerateRoutine(ctx)
	})
}

func (h *ChatHandler) form(w http.ResponseWriter, r *http.Request, run func(context.Context, *session.Session, *http.Request)) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if !h.limiter.Allow(s.UserID) {
		slog.Warn("Chat rate limit exceeded", "user_id", s.UserID, "ip", identity.IPFromRequest(r))
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}
	run(detach(r), s, r)
	redirectHome(w, r, r.PostFormValue("category"))
}

// allow rate-limits by userID only so clients cannot bypass throttling by
// rotating session IDs.
func (h *ChatHandler) allow(w http.ResponseWriter, r *http.Request, userID string) bool {
	if h.limiter.Allow(userID) {
		return true
	}
	slog.Warn("Chat rate limit exceeded", "user_id", userID, "ip", identity.IPFromRequest(r))
	Error(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

// detach keeps the request's values but not its cancellation, so a reply
// still lands in the log after the tab that asked goes away.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
