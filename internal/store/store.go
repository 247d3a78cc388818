// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/skincare-picker/internal/domain"
)

// Repository defines the interface for persisting anonymous users and their
// selection slots.
type Repository interface {
	// GetUser retrieves a user by their user ID. It returns nil, nil when
	// the user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetSelection retrieves the persisted selection slot of a user. It
	// returns nil, nil when nothing was ever written.
	GetSelection(ctx context.Context, userID string) (*domain.SelectionState, error)

	// UpsertSelection overwrites the selection slot of a user.
	UpsertSelection(ctx context.Context, state *domain.SelectionState) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
