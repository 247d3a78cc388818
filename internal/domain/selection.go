package domain

import "time"

// SelectionState is the persisted selection slot of one user. ProductsJSON
// holds the JSON array of full product records exactly as written.
type SelectionState struct {
	UserID       string
	ProductsJSON string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
