package session

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/skincare-picker/internal/catalog"
	"github.com/ashureev/skincare-picker/internal/domain"
)

type fakeRepo struct {
	mu    sync.Mutex
	slots map[string]string
}

func newFakeRepo() *fakeRepo { return &fakeRepo{slots: make(map[string]string)} }

func (f *fakeRepo) GetSelection(_ context.Context, userID string) (*domain.SelectionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.slots[userID]
	if !ok {
		return nil, nil
	}
	return &domain.SelectionState{UserID: userID, ProductsJSON: raw}, nil
}

func (f *fakeRepo) UpsertSelection(_ context.Context, s *domain.SelectionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots[s.UserID] = s.ProductsJSON
	return nil
}

type stubSource struct {
	mu       sync.Mutex
	products []domain.Product
	err      error
	calls    int
}

func (s *stubSource) Products(context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.products, s.err
}

type recordingNotifier struct {
	mu        sync.Mutex
	selection []string
	chat      []string
}

func (r *recordingNotifier) SelectionChanged(userID, grid, panel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selection = append(r.selection, userID+"|"+panel)
}

func (r *recordingNotifier) ChatChanged(userID, html string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat = append(r.chat, userID+"|"+html)
}

func testCatalog() []domain.Product {
	return []domain.Product{
		{Name: "A", Brand: "CeraVe", Category: "cleanser", Image: "a.png", Description: "Gentle"},
		{Name: "B", Brand: "L'Oreal", Category: "serum", Image: "b.png", Description: "Bright"},
	}
}

func newTestManager(src *stubSource, repo *fakeRepo, n Notifier) *Manager {
	return NewManager(Config{
		Repo:     repo,
		Loader:   catalog.NewLoader(src),
		Notifier: n,
	})
}

func TestManager_GetReusesSession(t *testing.T) {
	t.Parallel()
	m := newTestManager(&stubSource{products: testCatalog()}, newFakeRepo(), nil)
	ctx := context.Background()

	a, err := m.Get(ctx, "anon_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := m.Get(ctx, "anon_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a != b {
		t.Fatal("expected the same session for the same user")
	}
	if _, err := m.Get(ctx, ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestSession_ToggleUpdatesViewsAndPersists(t *testing.T) {
	t.Parallel()
	src := &stubSource{products: testCatalog()}
	repo := newFakeRepo()
	notifier := &recordingNotifier{}
	m := newTestManager(src, repo, notifier)
	ctx := context.Background()

	s, err := m.Get(ctx, "anon_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := s.ShowCategory(ctx, "cleanser"); err != nil {
		t.Fatalf("ShowCategory: %v", err)
	}

	selected, err := s.Toggle(ctx, "A")
	if err != nil || !selected {
		t.Fatalf("Toggle: selected=%v err=%v", selected, err)
	}
	if src.calls != 1 {
		t.Fatalf("click must resolve from the snapshot, got %d fetches", src.calls)
	}
	if !reflect.DeepEqual(s.Grid.Selected(), []string{"A"}) {
		t.Fatalf("grid not highlighted: %v", s.Grid.Selected())
	}
	if !s.Panel.HasClearAll() {
		t.Fatal("panel should show clear-all")
	}
	if !strings.Contains(repo.slots["anon_1"], `"name":"A"`) {
		t.Fatalf("selection not persisted: %s", repo.slots["anon_1"])
	}

	notifier.mu.Lock()
	last := notifier.selection[len(notifier.selection)-1]
	notifier.mu.Unlock()
	if !strings.HasPrefix(last, "anon_1|") || !strings.Contains(last, `data-name="A"`) {
		t.Fatalf("expected pushed panel with A, got %q", last)
	}

	if _, err := s.Toggle(ctx, "missing"); !errors.Is(err, catalog.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestSession_ToggleLoadsSnapshotWhenEmpty(t *testing.T) {
	t.Parallel()
	src := &stubSource{products: testCatalog()}
	m := newTestManager(src, newFakeRepo(), nil)
	ctx := context.Background()

	s, _ := m.Get(ctx, "anon_1")
	if _, err := s.Add(ctx, "B"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !s.Selection.Contains("B") {
		t.Fatal("expected B selected")
	}
}

func TestSession_CatalogFailureLeavesGrid(t *testing.T) {
	t.Parallel()
	src := &stubSource{products: testCatalog()}
	m := newTestManager(src, newFakeRepo(), nil)
	ctx := context.Background()

	s, _ := m.Get(ctx, "anon_1")
	if _, err := s.ShowCategory(ctx, "serum"); err != nil {
		t.Fatalf("ShowCategory: %v", err)
	}
	before := s.Grid.HTML()

	src.mu.Lock()
	src.err = errors.New("offline")
	src.mu.Unlock()
	if _, err := s.ShowCategory(ctx, "cleanser"); !errors.Is(err, catalog.ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
	if s.Grid.HTML() != before || s.Grid.Category() != "serum" {
		t.Fatal("grid changed after failed load")
	}
}

func TestManager_SweepEvictsIdleAndKeepsPersistence(t *testing.T) {
	t.Parallel()
	repo := newFakeRepo()
	m := newTestManager(&stubSource{products: testCatalog()}, repo, nil)
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	s, _ := m.Get(ctx, "anon_1")
	if _, err := s.Add(ctx, "A"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := m.Get(ctx, "anon_2"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	now = now.Add(90 * time.Minute)
	m.Touch("anon_2")
	now = now.Add(45 * time.Minute)

	evicted := m.Sweep(2 * time.Hour)
	if !reflect.DeepEqual(evicted, []string{"anon_1"}) {
		t.Fatalf("expected anon_1 evicted, got %v", evicted)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", m.Len())
	}

	rebuilt, _ := m.Get(ctx, "anon_1")
	if rebuilt == s {
		t.Fatal("expected a fresh session after eviction")
	}
	if !rebuilt.Selection.Contains("A") {
		t.Fatal("persisted selection must survive eviction")
	}
	if !rebuilt.Panel.HasClearAll() {
		t.Fatal("rebuilt panel must reflect restored selection")
	}
}

func TestSession_ChatPushesFragments(t *testing.T) {
	t.Parallel()
	notifier := &recordingNotifier{}
	m := newTestManager(&stubSource{products: testCatalog()}, newFakeRepo(), notifier)
	ctx := context.Background()

	s, _ := m.Get(ctx, "anon_1")
	got := s.GenerateRoutine(ctx)
	if got.Text != "Please select at least one product to generate a routine." {
		t.Fatalf("unexpected bubble %q", got.Text)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.chat) != 1 || !strings.Contains(notifier.chat[0], "Please select at least one product") {
		t.Fatalf("expected chat push, got %v", notifier.chat)
	}
	html, err := s.ChatHTML()
	if err != nil || !strings.Contains(html, "bubble-assistant") {
		t.Fatalf("unexpected chat html %q err=%v", html, err)
	}
}

func TestSweepExpiredCallsEvict(t *testing.T) {
	t.Parallel()
	m := newTestManager(&stubSource{}, newFakeRepo(), nil)
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }
	if _, err := m.Get(context.Background(), "anon_1"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	now = now.Add(3 * time.Hour)

	var evicted []string
	sweepExpired(m, time.Hour, func(userID string) { evicted = append(evicted, userID) })
	if !reflect.DeepEqual(evicted, []string{"anon_1"}) {
		t.Fatalf("expected callback for anon_1, got %v", evicted)
	}
}

func TestManager_ReloadCatalogsRerendersGrid(t *testing.T) {
	t.Parallel()
	src := &stubSource{products: testCatalog()}
	m := newTestManager(src, newFakeRepo(), nil)
	ctx := context.Background()

	shown, _ := m.Get(ctx, "anon_1")
	if _, err := shown.ShowCategory(ctx, "cleanser"); err != nil {
		t.Fatalf("ShowCategory: %v", err)
	}
	idle, _ := m.Get(ctx, "anon_2")

	src.mu.Lock()
	src.products = append(src.products, domain.Product{Name: "C", Brand: "Garnier", Category: "cleanser"})
	src.mu.Unlock()

	m.ReloadCatalogs(ctx)

	if !strings.Contains(shown.Grid.HTML(), `data-name="C"`) {
		t.Fatal("shown grid must pick up the new product")
	}
	if _, err := idle.Catalog.Lookup("C"); err != nil {
		t.Fatalf("idle session snapshot must be refreshed: %v", err)
	}
}
