package render

import (
	"log/slog"
	"sync"

	"github.com/ashureev/skincare-picker/internal/domain"
)

type card struct {
	Product  domain.Product
	Selected bool
}

// Grid holds the rendered product cards for the current category.
type Grid struct {
	selection Membership

	mu       sync.Mutex
	category string
	cards    []card
	html     string
}

// NewGrid creates a grid that highlights cards against selection.
func NewGrid(selection Membership) *Grid {
	g := &Grid{selection: selection}
	g.mu.Lock()
	_ = g.renderLocked()
	g.mu.Unlock()
	return g
}

// Render replaces the cards with products, one per product in the given
// order, and highlights them. An empty category shows the prompt to pick one.
func (g *Grid) Render(category string, products []domain.Product) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.category = category
	g.cards = make([]card, 0, len(products))
	if category != "" {
		for _, p := range products {
			g.cards = append(g.cards, card{Product: p})
		}
	}
	g.highlightLocked()
	return g.renderLocked()
}

// Highlight marks each rendered card selected iff its product is selected,
// without touching the catalog.
func (g *Grid) Highlight() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.highlightLocked() {
		return
	}
	if err := g.renderLocked(); err != nil {
		slog.Error("Failed to re-render product grid", "error", err)
	}
}

// SelectionChanged refreshes highlighting after a selection mutation.
func (g *Grid) SelectionChanged([]domain.Product) {
	g.Highlight()
}

// HTML returns the current grid fragment.
func (g *Grid) HTML() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.html
}

// Category returns the category the grid was last rendered for.
func (g *Grid) Category() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.category
}

// Selected lists the names of the cards currently marked selected.
func (g *Grid) Selected() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0)
	for _, c := range g.cards {
		if c.Selected {
			out = append(out, c.Product.Name)
		}
	}
	return out
}

// highlightLocked reports whether any card changed state.
func (g *Grid) highlightLocked() bool {
	changed := false
	for i := range g.cards {
		selected := g.selection.Contains(g.cards[i].Product.Name)
		if g.cards[i].Selected != selected {
			g.cards[i].Selected = selected
			changed = true
		}
	}
	return changed
}

func (g *Grid) renderLocked() error {
	html, err := execute("grid", struct {
		Category string
		Cards    []card
	}{g.category, g.cards})
	if err != nil {
		return err
	}
	g.html = html
	return nil
}
