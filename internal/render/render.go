// Package render turns catalog, selection and chat state into the HTML
// fragments the page swaps in place.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/ashureev/skincare-picker/internal/domain"
)

//go:embed templates/*.html
var tmplFS embed.FS

var fragments = template.Must(template.ParseFS(tmplFS, "templates/*.html"))

// Membership answers whether a product is currently selected.
type Membership interface {
	Contains(name string) bool
}

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := fragments.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Chat renders the chat log fragment.
func Chat(bubbles []domain.Bubble) (string, error) {
	return execute("chat", struct{ Bubbles []domain.Bubble }{bubbles})
}
