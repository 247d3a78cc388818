package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/skincare-picker/internal/domain"
)

var (
	// ErrCatalogUnavailable wraps every failure to load the catalog.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrProductNotFound is returned when a name is not in the catalog.
	ErrProductNotFound = errors.New("product not found")
)

// Loader fetches the catalog from its source. It keeps nothing between calls.
type Loader struct {
	source Source
}

// NewLoader creates a loader over source.
func NewLoader(source Source) *Loader {
	return &Loader{source: source}
}

// FetchAll re-reads the source and returns every product.
func (l *Loader) FetchAll(ctx context.Context) ([]domain.Product, error) {
	products, err := l.source.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w: %w", ErrCatalogUnavailable, err)
	}
	return products, nil
}

// Filter returns the products whose category equals category exactly, in
// catalog order. An empty category matches nothing.
func Filter(products []domain.Product, category string) []domain.Product {
	out := make([]domain.Product, 0)
	if category == "" {
		return out
	}
	for _, p := range products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// Categories lists the distinct non-empty categories in first-seen order.
func Categories(products []domain.Product) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}

// Snapshot holds the last catalog a session loaded so a clicked card can be
// resolved without another fetch.
type Snapshot struct {
	loader *Loader

	mu       sync.RWMutex
	products []domain.Product
	loaded   bool
}

// NewSnapshot creates an empty snapshot backed by loader.
func NewSnapshot(loader *Loader) *Snapshot {
	return &Snapshot{loader: loader}
}

// Refresh reloads the catalog. On failure the previous contents are kept.
func (s *Snapshot) Refresh(ctx context.Context) ([]domain.Product, error) {
	products, err := s.loader.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.products = products
	s.loaded = true
	s.mu.Unlock()

	slog.Debug("Catalog snapshot refreshed", "products", len(products))
	return append([]domain.Product(nil), products...), nil
}

// Products returns the snapshot contents, loading them on first use.
func (s *Snapshot) Products(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	if s.loaded {
		out := append([]domain.Product(nil), s.products...)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()
	return s.Refresh(ctx)
}

// Lookup returns the first product named name.
func (s *Snapshot) Lookup(name string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.Name == name {
			return p, nil
		}
	}
	return domain.Product{}, fmt.Errorf("%w: %q", ErrProductNotFound, name)
}

// Loaded reports whether a catalog has been loaded at least once.
func (s *Snapshot) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}
