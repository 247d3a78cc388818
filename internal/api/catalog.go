package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/skincare-picker/internal/catalog"
	"github.com/ashureev/skincare-picker/internal/identity"
)

// CatalogHandler serves categories, product lists and the grid fragment.
type CatalogHandler struct {
	*Handler
}

// NewCatalogHandler creates a catalog handler.
func NewCatalogHandler(base *Handler) *CatalogHandler {
	return &CatalogHandler{Handler: base}
}

// RegisterRoutes registers catalog routes.
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/categories", h.Categories)
	r.Get("/api/products", h.Products)
	r.Get("/fragments/grid", h.GridFragment)
}

// Categories lists the catalog's categories in first-seen order.
func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	products, err := s.Catalog.Products(r.Context())
	if err != nil {
		slog.Warn("Failed to load categories", "error", err, "user_id", s.UserID)
		status, msg := statusFor(err)
		Error(w, status, msg)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"categories": catalog.Categories(products),
	})
}

// Products reloads the catalog and shows the products of one category. The
// grid of every open tab follows.
func (h *CatalogHandler) Products(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	category := r.URL.Query().Get("category")
	products, err := s.ShowCategory(r.Context(), category)
	if err != nil {
		slog.Warn("Failed to show category", "error", err, "category", category, "user_id", s.UserID)
		status, msg := statusFor(err)
		Error(w, status, msg)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"category": category,
		"products": products,
		"selected": s.Grid.Selected(),
	})
}

// GridFragment returns the grid HTML. With a category parameter that differs
// from the one shown, the grid is re-rendered first.
func (h *CatalogHandler) GridFragment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if category := r.URL.Query().Get("category"); category != "" && category != s.Grid.Category() {
		if _, err := s.ShowCategory(r.Context(), category); err != nil {
			slog.Warn("Failed to render grid", "error", err, "category", category,
				"user_id", s.UserID, "session_id", identity.SessionIDFromContext(r.Context()))
			status, _ := statusFor(err)
			HTML(w, status, s.Grid.HTML())
			return
		}
	}
	HTML(w, http.StatusOK, s.Grid.HTML())
}
