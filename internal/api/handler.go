// Package api provides HTTP handlers for the skincare picker.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ashureev/skincare-picker/internal/catalog"
	"github.com/ashureev/skincare-picker/internal/identity"
	"github.com/ashureev/skincare-picker/internal/session"
)

const defaultMaxRequestBodySize = 16 << 10

// Handler provides common handler utilities.
type Handler struct {
	sessions *session.Manager
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(sessions *session.Manager) *Handler {
	return &Handler{sessions: sessions}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// HTML writes an HTML fragment.
func HTML(w http.ResponseWriter, status int, fragment string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(fragment))
}

// session returns the caller's session, writing an error response when
// there is none.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	s, err := h.sessions.Get(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	return s, true
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	Error(w, http.StatusBadRequest, "invalid request body")
	return false
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, catalog.ErrCatalogUnavailable):
		return http.StatusBadGateway, "catalog unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// redirectHome sends a form post back to the page, keeping the category.
func redirectHome(w http.ResponseWriter, r *http.Request, category string) {
	target := "/"
	if category != "" {
		target += "?category=" + url.QueryEscape(category)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
