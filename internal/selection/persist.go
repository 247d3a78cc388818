package selection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/skincare-picker/internal/domain"
	"github.com/ashureev/skincare-picker/internal/shared"
)

// Persister reads and writes one user's selection slot.
type Persister interface {
	// Save serializes items and overwrites the slot.
	Save(ctx context.Context, items []domain.Product) error
	// Load returns the persisted list. Absent or unreadable state yields an
	// empty list; it never fails.
	Load(ctx context.Context) []domain.Product
}

// SlotRepository is the part of the store the persister needs.
type SlotRepository interface {
	GetSelection(ctx context.Context, userID string) (*domain.SelectionState, error)
	UpsertSelection(ctx context.Context, state *domain.SelectionState) error
}

// RepoPersister keeps the selection as a JSON array of full product records
// in the user's row of the selections table.
type RepoPersister struct {
	repo   SlotRepository
	userID string
}

// NewRepoPersister creates a persister bound to one user's slot.
func NewRepoPersister(repo SlotRepository, userID string) *RepoPersister {
	return &RepoPersister{repo: repo, userID: userID}
}

// Save implements Persister.
func (p *RepoPersister) Save(ctx context.Context, items []domain.Product) error {
	if items == nil {
		items = []domain.Product{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}

	err = p.repo.UpsertSelection(ctx, &domain.SelectionState{
		UserID:       p.userID,
		ProductsJSON: string(data),
		UpdatedAt:    time.Now(),
	})
	if err != nil {
		if shared.IsSQLiteConflictError(err) {
			slog.Warn("Selection write hit a locked database", "user_id", p.userID, "error", err)
		}
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

// Load implements Persister.
func (p *RepoPersister) Load(ctx context.Context) []domain.Product {
	state, err := p.repo.GetSelection(ctx, p.userID)
	if err != nil {
		slog.Warn("Failed to read persisted selection, starting empty", "user_id", p.userID, "error", err)
		return []domain.Product{}
	}
	if state == nil {
		return []domain.Product{}
	}
	return decodeProducts(p.userID, state.ProductsJSON)
}

func decodeProducts(userID, raw string) []domain.Product {
	if strings.TrimSpace(raw) == "" {
		return []domain.Product{}
	}
	var items []domain.Product
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		slog.Debug("Discarding unreadable persisted selection", "user_id", userID, "error", err)
		return []domain.Product{}
	}
	if items == nil {
		return []domain.Product{}
	}
	return items
}
