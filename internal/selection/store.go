// Package selection keeps the ordered list of products a user picked,
// its persisted form, and the views that mirror it in sync.
package selection

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashureev/skincare-picker/internal/domain"
)

// Observer is notified after every mutation with a copy of the list.
type Observer interface {
	SelectionChanged(items []domain.Product)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(items []domain.Product)

// SelectionChanged implements Observer.
func (f ObserverFunc) SelectionChanged(items []domain.Product) { f(items) }

// Store is the single source of truth for one session's selection.
// Names are unique; order is selection order.
//
// Each mutation persists the full list and then notifies observers in
// registration order before returning. Mutations are serialized, so
// notifications arrive in mutation order. Observers may read the store
// but must not mutate it from SelectionChanged.
type Store struct {
	writeMu   sync.Mutex
	mu        sync.Mutex
	items     []domain.Product
	persister Persister
	observers []Observer
}

// New creates an empty store. Call Init to load persisted state.
func New(persister Persister) *Store {
	return &Store{persister: persister}
}

// Subscribe registers an observer. It is not notified retroactively.
func (s *Store) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Init replaces the in-memory list with the persisted one and notifies
// observers. Duplicate names in the persisted form are collapsed, keeping
// the first occurrence.
func (s *Store) Init(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	loaded := s.persister.Load(ctx)

	s.mu.Lock()
	s.items = nil
	for _, p := range loaded {
		if s.indexLocked(p.Name) < 0 {
			s.items = append(s.items, p)
		}
	}
	snapshot := s.snapshotLocked()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	if len(snapshot) != len(loaded) {
		slog.Debug("Collapsed duplicate products in persisted selection", "loaded", len(loaded), "kept", len(snapshot))
	}
	notify(observers, snapshot)
}

// Add appends p unless a product with the same name is already selected.
// It reports whether the list changed. The returned error is a persistence
// failure; the in-memory mutation stands either way.
func (s *Store) Add(ctx context.Context, p domain.Product) (bool, error) {
	return s.mutate(ctx, func() bool {
		if s.indexLocked(p.Name) >= 0 {
			return false
		}
		s.items = append(s.items, p)
		return true
	})
}

// Remove drops the product with the given name if present.
func (s *Store) Remove(ctx context.Context, name string) (bool, error) {
	return s.mutate(ctx, func() bool {
		i := s.indexLocked(name)
		if i < 0 {
			return false
		}
		s.items = append(s.items[:i:i], s.items[i+1:]...)
		return true
	})
}

// Clear empties the list.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.mutate(ctx, func() bool {
		changed := len(s.items) > 0
		s.items = nil
		return changed
	})
	return err
}

// Toggle removes p if it is selected and adds it otherwise. It reports
// whether p is selected afterwards.
func (s *Store) Toggle(ctx context.Context, p domain.Product) (bool, error) {
	selected := false
	_, err := s.mutate(ctx, func() bool {
		if i := s.indexLocked(p.Name); i >= 0 {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return true
		}
		s.items = append(s.items, p)
		selected = true
		return true
	})
	return selected, err
}

// Contains reports whether a product with the given name is selected.
func (s *Store) Contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(name) >= 0
}

// Items returns a copy of the selection in selection order.
func (s *Store) Items() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the number of selected products.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// mutate applies fn, persists the result and notifies observers. Persisting
// happens even when fn reports no change so the slot always mirrors memory.
func (s *Store) mutate(ctx context.Context, fn func() bool) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	changed := fn()
	snapshot := s.snapshotLocked()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	err := s.persister.Save(ctx, snapshot)
	if err != nil {
		slog.Error("Failed to persist selection", "error", err, "count", len(snapshot))
	}
	notify(observers, snapshot)
	return changed, err
}

func notify(observers []Observer, snapshot []domain.Product) {
	for _, o := range observers {
		o.SelectionChanged(append([]domain.Product(nil), snapshot...))
	}
}

func (s *Store) indexLocked(name string) int {
	for i, p := range s.items {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []domain.Product {
	out := make([]domain.Product, len(s.items))
	copy(out, s.items)
	return out
}
