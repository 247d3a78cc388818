package api

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/skincare-picker/internal/catalog"
	"github.com/ashureev/skincare-picker/internal/identity"
)

const catalogErrorText = "Could not load products. Please try again later."

// PageHandler renders the full page with the current fragments inlined.
type PageHandler struct {
	*Handler
	page             *template.Template
	assistantEnabled bool
}

// NewPageHandler creates a page handler rendering page.
func NewPageHandler(base *Handler, page *template.Template, assistantEnabled bool) *PageHandler {
	return &PageHandler{Handler: base, page: page, assistantEnabled: assistantEnabled}
}

// RegisterRoutes registers the page routes.
func (h *PageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Index)
	r.Get("/api/me", h.GetMe)
}

// GetMe returns the caller's anonymous identity.
func (h *PageHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":    s.UserID,
		"username":   identity.UsernameFromContext(r.Context()),
		"session_id": identity.SessionIDFromContext(r.Context()),
		"selected":   s.Selection.Len(),
	})
}

type pageData struct {
	Categories       []string
	Category         string
	Grid             template.HTML
	Panel            template.HTML
	Chat             template.HTML
	CatalogError     string
	AssistantEnabled bool
}

// Index renders the page. A category query parameter reloads the catalog
// and shows that category.
func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	data := pageData{AssistantEnabled: h.assistantEnabled}

	if category := r.URL.Query().Get("category"); category != "" {
		if _, err := s.ShowCategory(ctx, category); err != nil {
			slog.Warn("Failed to show category", "error", err, "category", category, "user_id", s.UserID)
			data.CatalogError = catalogErrorText
		}
	}
	if products, err := s.Catalog.Products(ctx); err != nil {
		slog.Warn("Failed to load catalog", "error", err, "user_id", s.UserID)
		data.CatalogError = catalogErrorText
	} else {
		data.Categories = catalog.Categories(products)
	}

	chatHTML, err := s.ChatHTML()
	if err != nil {
		slog.Error("Failed to render chat", "error", err, "user_id", s.UserID)
	}
	data.Category = s.Grid.Category()
	data.Grid = template.HTML(s.Grid.HTML())   //nolint:gosec // rendered by html/template
	data.Panel = template.HTML(s.Panel.HTML()) //nolint:gosec // rendered by html/template
	data.Chat = template.HTML(chatHTML)        //nolint:gosec // rendered by html/template

	var buf bytes.Buffer
	if err := h.page.Execute(&buf, data); err != nil {
		slog.Error("Failed to render page", "error", err, "user_id", s.UserID)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	HTML(w, http.StatusOK, buf.String())
}
