// Package catalog loads the product catalog and answers category queries.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ashureev/skincare-picker/internal/domain"
)

// maxCatalogBytes bounds how much of a catalog response is read.
const maxCatalogBytes = 8 << 20

// Source produces the full catalog. Implementations re-read their backing
// resource on every call.
type Source interface {
	Products(ctx context.Context) ([]domain.Product, error)
}

// NewSource picks a source from configuration: a URL wins over a path, and
// a path is read as a workbook when it ends in .xlsx.
func NewSource(url, path string, timeout time.Duration) (Source, error) {
	switch {
	case url != "":
		return &HTTPSource{URL: url, Client: &http.Client{Timeout: timeout}}, nil
	case strings.EqualFold(filepath.Ext(path), ".xlsx"):
		return &XLSXSource{Path: path}, nil
	case strings.EqualFold(filepath.Ext(path), ".json"):
		return &FileSource{Path: path}, nil
	default:
		return nil, fmt.Errorf("no catalog source for url=%q path=%q", url, path)
	}
}

// HTTPSource fetches a JSON catalog with a GET request.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// Products implements Source.
func (s *HTTPSource) Products(ctx context.Context) ([]domain.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return decodeCatalog(io.LimitReader(resp.Body, maxCatalogBytes))
}

// FileSource reads a JSON catalog from disk.
type FileSource struct {
	Path string
}

// Products implements Source.
func (s *FileSource) Products(_ context.Context) ([]domain.Product, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return decodeCatalog(io.LimitReader(f, maxCatalogBytes))
}

type catalogDocument struct {
	Products []domain.Product `json:"products"`
}

func decodeCatalog(r io.Reader) ([]domain.Product, error) {
	var doc catalogDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if doc.Products == nil {
		return nil, errors.New("decode catalog: missing products array")
	}
	return compact(doc.Products), nil
}

// compact drops records without a name; the name is the product key.
func compact(products []domain.Product) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// XLSXSource reads the first sheet of a workbook. The first row is a header
// naming the columns name, brand, category, image and description in any
// order; unknown columns are ignored.
type XLSXSource struct {
	Path string
}

// Products implements Source.
func (s *XLSXSource) Products(_ context.Context) ([]domain.Product, error) {
	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}

	cols := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["name"]; !ok {
		return nil, fmt.Errorf("sheet %q has no name column", sheets[0])
	}

	cell := func(row []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	products := make([]domain.Product, 0, len(rows)-1)
	for _, row := range rows[1:] {
		products = append(products, domain.Product{
			Name:        cell(row, "name"),
			Brand:       cell(row, "brand"),
			Category:    cell(row, "category"),
			Image:       cell(row, "image"),
			Description: cell(row, "description"),
		})
	}
	return compact(products), nil
}
