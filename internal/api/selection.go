package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/skincare-picker/internal/catalog"
	"github.com/ashureev/skincare-picker/internal/domain"
	"github.com/ashureev/skincare-picker/internal/session"
)

// SelectionHandler exposes the selection store over HTTP.
type SelectionHandler struct {
	*Handler
}

// NewSelectionHandler creates a selection handler.
func NewSelectionHandler(base *Handler) *SelectionHandler {
	return &SelectionHandler{Handler: base}
}

// RegisterRoutes registers selection routes and their form fallbacks.
func (h *SelectionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/selection", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/", h.Add)
		r.Delete("/", h.Clear)
		r.Post("/toggle", h.Toggle)
		r.Delete("/{name}", h.Remove)
	})
	r.Get("/fragments/panel", h.PanelFragment)

	r.Post("/select", h.SelectForm)
	r.Post("/remove", h.RemoveForm)
	r.Post("/clear", h.ClearForm)
}

type nameRequest struct {
	Name string `json:"name"`
}

type selectionResponse struct {
	Items    []domain.Product `json:"items"`
	Selected *bool            `json:"selected,omitempty"`
	Changed  *bool            `json:"changed,omitempty"`
	Saved    bool             `json:"saved"`
}

func newSelectionResponse(s *session.Session, saveErr error) selectionResponse {
	return selectionResponse{
		Items: s.Selection.Items(),
		Saved: saveErr == nil,
	}
}

// Get returns the current selection in insertion order.
func (h *SelectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, newSelectionResponse(s, nil))
}

// Toggle selects or unselects the named product.
func (h *SelectionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		Error(w, http.StatusBadRequest, "name is required")
		return
	}

	selected, err := s.Toggle(r.Context(), req.Name)
	if isLookupError(err) {
		writeLookupError(w, s.UserID, req.Name, err)
		return
	}
	resp := newSelectionResponse(s, err)
	resp.Selected = &selected
	JSON(w, http.StatusOK, resp)
}

// Add selects the named product. Adding a selected product changes nothing.
func (h *SelectionHandler) Add(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req nameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		Error(w, http.StatusBadRequest, "name is required")
		return
	}

	changed, err := s.Add(r.Context(), req.Name)
	if isLookupError(err) {
		writeLookupError(w, s.UserID, req.Name, err)
		return
	}
	resp := newSelectionResponse(s, err)
	resp.Changed = &changed
	JSON(w, http.StatusOK, resp)
}

// Remove unselects the named product. Unknown names are not an error.
func (h *SelectionHandler) Remove(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	name, err := pathParam(r, "name")
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid product name")
		return
	}
	changed, err := s.Remove(r.Context(), name)
	resp := newSelectionResponse(s, err)
	resp.Changed = &changed
	JSON(w, http.StatusOK, resp)
}

// Clear empties the selection.
func (h *SelectionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	err := s.Clear(r.Context())
	JSON(w, http.StatusOK, newSelectionResponse(s, err))
}

// PanelFragment returns the selection panel HTML.
func (h *SelectionHandler) PanelFragment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	HTML(w, http.StatusOK, s.Panel.HTML())
}

// SelectForm toggles a product from a grid card form.
func (h *SelectionHandler) SelectForm(w http.ResponseWriter, r *http.Request) {
	h.form(w, r, func(ctx context.Context, s *session.Session, name string) error {
		_, err := s.Toggle(ctx, name)
		return err
	})
}

// RemoveForm removes a product from a panel card form.
func (h *SelectionHandler) RemoveForm(w http.ResponseWriter, r *http.Request) {
	h.form(w, r, func(ctx context.Context, s *session.Session, name string) error {
		_, err := s.Remove(ctx, name)
		return err
	})
}

// ClearForm empties the selection from the clear-all form.
func (h *SelectionHandler) ClearForm(w http.ResponseWriter, r *http.Request) {
	h.form(w, r, func(ctx context.Context, s *session.Session, _ string) error {
		return s.Clear(ctx)
	})
}

func (h *SelectionHandler) form(w http.ResponseWriter, r *http.Request, apply func(context.Context, *session.Session, string) error) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	name := r.PostFormValue("name")
	if err := apply(r.Context(), s, name); err != nil {
		if isLookupError(err) {
			status, msg := statusFor(err)
			http.Error(w, msg, status)
			return
		}
		slog.Warn("Selection change not saved", "error", err, "user_id", s.UserID)
	}
	redirectHome(w, r, r.PostFormValue("category"))
}

func isLookupError(err error) bool {
	return errors.Is(err, catalog.ErrProductNotFound) || errors.Is(err, catalog.ErrCatalogUnavailable)
}

func writeLookupError(w http.ResponseWriter, userID, name string, err error) {
	slog.Warn("Failed to resolve product", "error", err, "name", name, "user_id", userID)
	status, msg := statusFor(err)
	Error(w, status, msg)
}

// pathParam returns a decoded URL parameter. chi matches against the raw path
// when the client escaped characters differently from Go, leaving the
// parameter percent-encoded.
func pathParam(r *http.Request, key string) (string, error) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}
