package render

import (
	"log/slog"
	"sync"

	"github.com/ashureev/skincare-picker/internal/domain"
)

// Panel renders the selected products with per-item remove controls and a
// single clear-all control that exists only while the list is non-empty.
type Panel struct {
	mu       sync.Mutex
	items    []domain.Product
	clearAll bool
	html     string
}

// NewPanel creates a panel showing the empty placeholder.
func NewPanel() *Panel {
	p := &Panel{}
	_ = p.Render(nil)
	return p
}

// Render redraws the panel for items.
func (p *Panel) Render(items []domain.Product) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.items = append([]domain.Product(nil), items...)
	switch {
	case len(p.items) > 0 && !p.clearAll:
		p.clearAll = true
		slog.Debug("Clear-all control created")
	case len(p.items) == 0 && p.clearAll:
		p.clearAll = false
		slog.Debug("Clear-all control removed")
	}

	html, err := execute("panel", struct {
		Items    []domain.Product
		ClearAll bool
	}{p.items, p.clearAll})
	if err != nil {
		return err
	}
	p.html = html
	return nil
}

// SelectionChanged re-renders the panel after a selection mutation.
func (p *Panel) SelectionChanged(items []domain.Product) {
	if err := p.Render(items); err != nil {
		slog.Error("Failed to render selection panel", "error", err)
	}
}

// HasClearAll reports whether the clear-all control is present.
func (p *Panel) HasClearAll() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clearAll
}

// HTML returns the current panel fragment.
func (p *Panel) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html
}
