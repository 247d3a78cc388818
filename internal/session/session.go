// Package session wires one browser profile's selection, catalog snapshot,
// renderers and chat controller together and keeps them in memory.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/skincare-picker/internal/catalog"
	"github.com/ashureev/skincare-picker/internal/chat"
	"github.com/ashureev/skincare-picker/internal/domain"
	"github.com/ashureev/skincare-picker/internal/render"
	"github.com/ashureev/skincare-picker/internal/selection"
)

// Notifier receives fresh fragments whenever a session's views change.
type Notifier interface {
	SelectionChanged(userID, gridHTML, panelHTML string)
	ChatChanged(userID, chatHTML string)
}

type noopNotifier struct{}

func (noopNotifier) SelectionChanged(string, string, string) {}
func (noopNotifier) ChatChanged(string, string)              {}

// Session is the in-memory state of one profile.
type Session struct {
	UserID    string
	Selection *selection.Store
	Catalog   *catalog.Snapshot
	Grid      *render.Grid
	Panel     *render.Panel
	Chat      *chat.Controller

	notifier Notifier

	mu       sync.Mutex
	lastSeen time.Time
}

// ShowCategory reloads the catalog, renders the products of category and
// returns them. On failure the grid is left as it was.
func (s *Session) ShowCategory(ctx context.Context, category string) ([]domain.Product, error) {
	products, err := s.Catalog.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	filtered := catalog.Filter(products, category)
	if err := s.Grid.Render(category, filtered); err != nil {
		return nil, err
	}
	s.notifier.SelectionChanged(s.UserID, s.Grid.HTML(), s.Panel.HTML())
	return filtered, nil
}

// ReloadCatalog refreshes the snapshot and, when a category is shown,
// re-renders the grid from the new contents.
func (s *Session) ReloadCatalog(ctx context.Context) error {
	if category := s.Grid.Category(); category != "" {
		_, err := s.ShowCategory(ctx, category)
		return err
	}
	_, err := s.Catalog.Refresh(ctx)
	return err
}

// Toggle selects or unselects the product named name, resolving it from
// the catalog snapshot. It reports whether the product is now selected.
func (s *Session) Toggle(ctx context.Context, name string) (bool, error) {
	p, err := s.resolve(ctx, name)
	if err != nil {
		return false, err
	}
	return s.Selection.Toggle(ctx, p)
}

// Add selects the product named name.
func (s *Session) Add(ctx context.Context, name string) (bool, error) {
	p, err := s.resolve(ctx, name)
	if err != nil {
		return false, err
	}
	return s.Selection.Add(ctx, p)
}

// Remove unselects the product named name. Unknown names are a no-op.
func (s *Session) Remove(ctx context.Context, name string) (bool, error) {
	return s.Selection.Remove(ctx, name)
}

// Clear empties the selection.
func (s *Session) Clear(ctx context.Context) error {
	return s.Selection.Clear(ctx)
}

// Ask forwards a question to the chat controller.
func (s *Session) Ask(ctx context.Context, question string) domain.Bubble {
	return s.Chat.Ask(ctx, question)
}

// GenerateRoutine requests a routine for the current selection.
func (s *Session) GenerateRoutine(ctx context.Context) domain.Bubble {
	return s.Chat.GenerateRoutine(ctx, s.Selection.Items())
}

// ChatHTML renders the current chat log.
func (s *Session) ChatHTML() (string, error) {
	return render.Chat(s.Chat.Log().Bubbles())
}

func (s *Session) resolve(ctx context.Context, name string) (domain.Product, error) {
	if !s.Catalog.Loaded() {
		if _, err := s.Catalog.Refresh(ctx); err != nil {
			return domain.Product{}, err
		}
	}
	return s.Catalog.Lookup(name)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Config holds what the manager needs to build sessions.
type Config struct {
	Repo        selection.SlotRepository
	Loader      *catalog.Loader
	Completer   chat.Completer
	ChatTimeout time.Duration
	Transcript  chat.TranscriptLogger
	Notifier    Notifier
}

// Manager owns the live sessions, keyed by user ID.
type Manager struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty manager.
func NewManager(cfg Config) *Manager {
	if cfg.Notifier == nil {
		cfg.Notifier = noopNotifier{}
	}
	return &Manager{
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session of userID, building it from persisted state on
// first use. Every call counts as activity.
func (m *Manager) Get(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("session: empty user id")
	}

	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if ok {
		s.touch(m.now())
		return s, nil
	}

	built := m.build(ctx, userID)

	m.mu.Lock()
	if existing, ok := m.sessions[userID]; ok {
		s = existing
	} else {
		m.sessions[userID] = built
		s = built
		slog.Info("Session created", "user_id", userID, "selected", built.Selection.Len())
	}
	m.mu.Unlock()

	s.touch(m.now())
	return s, nil
}

// Touch marks userID's session active, if it exists.
func (m *Manager) Touch(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if ok {
		s.touch(m.now())
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ReloadCatalogs reloads the catalog of every live session. Failures are
// logged and leave that session's views as they were.
func (m *Manager) ReloadCatalogs(ctx context.Context) {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		if err := s.ReloadCatalog(ctx); err != nil {
			slog.Warn("Failed to reload catalog", "user_id", s.UserID, "error", err)
		}
	}
	slog.Info("Catalog reloaded", "sessions", len(live))
}

// Sweep evicts sessions idle for longer than ttl and returns their user IDs.
// Persisted selections are untouched.
func (m *Manager) Sweep(ttl time.Duration) []string {
	cutoff := m.now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	var evicted []string
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

func (m *Manager) build(ctx context.Context, userID string) *Session {
	store := selection.New(selection.NewRepoPersister(m.cfg.Repo, userID))
	s := &Session{
		UserID:    userID,
		Selection: store,
		Catalog:   catalog.NewSnapshot(m.cfg.Loader),
		Grid:      render.NewGrid(store),
		Panel:     render.NewPanel(),
		notifier:  m.cfg.Notifier,
	}

	store.Subscribe(s.Panel)
	store.Subscribe(s.Grid)
	store.Subscribe(selection.ObserverFunc(func([]domain.Product) {
		s.notifier.SelectionChanged(userID, s.Grid.HTML(), s.Panel.HTML())
	}))

	log := chat.NewLog()
	log.Subscribe(func(bubbles []domain.Bubble) {
		html, err := render.Chat(bubbles)
		if err != nil {
			slog.Error("Failed to render chat log", "user_id", userID, "error", err)
			return
		}
		s.notifier.ChatChanged(userID, html)
	})
	s.Chat = chat.NewController(chat.ControllerConfig{
		UserID:     userID,
		Completer:  m.cfg.Completer,
		Log:        log,
		Timeout:    m.cfg.ChatTimeout,
		Transcript: m.cfg.Transcript,
	})

	store.Init(ctx)
	return s
}
