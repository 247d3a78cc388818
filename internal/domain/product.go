// Package domain contains core domain types for the skincare picker.
package domain

// Product is one catalog entry. Name is the unique key.
type Product struct {
	Name        string `json:"name"`
	Brand       string `json:"brand"`
	Category    string `json:"category"`
	Image       string `json:"image"`
	Description string `json:"description"`
}

// RoutineItem is the part of a product sent to the assistant when
// generating a routine. The image URL is left out.
type RoutineItem struct {
	Name        string `json:"name"`
	Brand       string `json:"brand"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// RoutineItem projects the product onto the fields the assistant sees.
func (p Product) RoutineItem() RoutineItem {
	return RoutineItem{
		Name:        p.Name,
		Brand:       p.Brand,
		Category:    p.Category,
		Description: p.Description,
	}
}
