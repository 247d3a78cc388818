package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/skincare-picker/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := openSQLite(filepath.Join(t.TempDir(), "nested", "picker.db"))
	if err != nil {
		t.Fatalf("openSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return s
}

func TestSQLiteStore_UserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetUser(ctx, "anon_missing")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing user, got %+v", got)
	}

	now := time.Unix(1_700_000_000, 0)
	user := &domain.User{
		UserID:     "anon_1",
		Username:   "anon-00000001",
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.UpsertUser(ctx, user); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	later := now.Add(time.Hour)
	if err := s.UpdateLastSeen(ctx, "anon_1", later); err != nil {
		t.Fatalf("UpdateLastSeen failed: %v", err)
	}

	got, err = s.GetUser(ctx, "anon_1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got == nil || got.Username != "anon-00000001" {
		t.Fatalf("unexpected user: %+v", got)
	}
	if !got.LastSeenAt.Equal(later) {
		t.Errorf("expected last seen %v, got %v", later, got.LastSeenAt)
	}
}

func TestSQLiteStore_SelectionLastWriterWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state, err := s.GetSelection(ctx, "anon_1")
	if err != nil {
		t.Fatalf("GetSelection failed: %v", err)
	}
	if state != nil {
		t.Fatalf("expected no selection slot, got %+v", state)
	}

	writes := []string{
		`[{"name":"A","brand":"B","category":"cleanser","image":"a.png","description":"d"}]`,
		`[]`,
	}
	for _, payload := range writes {
		if err := s.UpsertSelection(ctx, &domain.SelectionState{UserID: "anon_1", ProductsJSON: payload}); err != nil {
			t.Fatalf("UpsertSelection failed: %v", err)
		}
	}

	state, err = s.GetSelection(ctx, "anon_1")
	if err != nil {
		t.Fatalf("GetSelection failed: %v", err)
	}
	if state == nil {
		t.Fatal("expected selection slot to exist")
	}
	if state.ProductsJSON != `[]` {
		t.Errorf("expected last write to win, got %s", state.ProductsJSON)
	}
	if state.CreatedAt.IsZero() || state.UpdatedAt.Before(state.CreatedAt) {
		t.Errorf("unexpected timestamps: created=%v updated=%v", state.CreatedAt, state.UpdatedAt)
	}
}

func TestSQLiteStore_Ping(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
