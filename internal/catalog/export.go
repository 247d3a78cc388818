package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ashureev/skincare-picker/internal/domain"
)

const exportSheet = "Products"

var xlsxHeader = []interface{}{"name", "brand", "category", "image", "description"}

// WriteJSON writes products as a catalog document readable by FileSource.
func WriteJSON(w io.Writer, products []domain.Product) error {
	if products == nil {
		products = []domain.Product{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(catalogDocument{Products: products})
}

// WriteXLSX writes products to a workbook readable by XLSXSource.
func WriteXLSX(path string, products []domain.Product) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}
	if err := sw.SetRow("A1", xlsxHeader); err != nil {
		return err
	}
	for i, p := range products {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{p.Name, p.Brand, p.Category, p.Image, p.Description}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.SaveAs(path)
}

// Problem is one finding of Validate.
type Problem struct {
	Index   int
	Name    string
	Message string
}

func (p Problem) String() string {
	return fmt.Sprintf("#%d %q: %s", p.Index, p.Name, p.Message)
}

// Validate reports entries the picker would mishandle: duplicate names,
// which make the later entry unreachable, and missing categories or images.
func Validate(products []domain.Product) []Problem {
	var problems []Problem
	seen := make(map[string]int, len(products))
	for i, p := range products {
		if first, ok := seen[p.Name]; ok {
			problems = append(problems, Problem{i, p.Name, fmt.Sprintf("duplicate of #%d", first)})
		} else {
			seen[p.Name] = i
		}
		if strings.TrimSpace(p.Category) == "" {
			problems = append(problems, Problem{i, p.Name, "no category"})
		}
		if strings.TrimSpace(p.Image) == "" {
			problems = append(problems, Problem{i, p.Name, "no image"})
		}
	}
	return problems
}
