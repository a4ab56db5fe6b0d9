// =============================================================================
// ASYCUDA Export - Reference Data Loader
// =============================================================================
//
// Reference data can be supplied in three shapes:
//   1. CSV  : one product per row (description, HS code, category, ...)
//   2. XLSX : a "Products" sheet plus optional "Countries" and "Offices"
//             sheets holding alias -> code pairs
//   3. YAML : the full Data structure
//
// Product columns are located by header name, not position, so reference
// sheets exported from different tools load without configuration.
//
// =============================================================================

package catalog

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ginjaninja78/asycuda-export/internal/textnorm"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// COLUMN DETECTION
// =============================================================================

// productColumns maps each Entry field to the header names accepted for it.
// Header names are compared after normalisation.
var productColumns = map[string][]string{
	"key":      {"key", "description", "product", "item", "item sold", "item description"},
	"hs_code":  {"hs code", "hs", "hscode", "tariff", "tariff code", "commodity code"},
	"category": {"category", "heading"},
	"unit":     {"unit", "statistical unit", "uom"},
	"origin":   {"origin", "country of origin", "coo"},
	"c_number": {"c number", "c nbr", "c no", "cnumber"},
	"line":     {"line", "art", "article", "line number"},
}

// columnIndex locates each known column in the header row. Missing columns
// are absent from the result.
func columnIndex(header []string) map[string]int {
	index := make(map[string]int)
	for col, raw := range header {
		name := textnorm.Normalize(raw)
		for field, names := range productColumns {
			if _, done := index[field]; done {
				continue
			}
			for _, candidate := range names {
				if name == candidate {
					index[field] = col
					break
				}
			}
		}
	}
	return index
}

// parseProducts converts tabular rows (header first) into entries.
func parseProducts(rows [][]string) ([]Entry, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("reference data is empty")
	}

	index := columnIndex(rows[0])
	if _, ok := index["key"]; !ok {
		return nil, fmt.Errorf("reference data has no description column")
	}
	if _, ok := index["hs_code"]; !ok {
		return nil, fmt.Errorf("reference data has no HS code column")
	}

	cell := func(row []string, field string) string {
		col, ok := index[field]
		if !ok || col >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[col])
	}

	entries := make([]Entry, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if isRowEmpty(row) {
			continue
		}
		entry := Entry{
			Key:      cell(row, "key"),
			HSCode:   digitsOnly(cell(row, "hs_code")),
			Category: cell(row, "category"),
			Unit:     strings.ToUpper(cell(row, "unit")),
			Origin:   strings.ToUpper(cell(row, "origin")),
			CNumber:  cell(row, "c_number"),
		}
		if line := cell(row, "line"); line != "" {
			n, err := strconv.Atoi(line)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid line number %q", i+2, line)
			}
			entry.Line = n
		}
		if entry.Key == "" || entry.HSCode == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseAliases converts two-column rows (alias, code) into a map. A header
// row is skipped when its second cell is not a code.
func parseAliases(rows [][]string) map[string]string {
	out := make(map[string]string)
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		alias, code := strings.TrimSpace(row[0]), strings.ToUpper(strings.TrimSpace(row[1]))
		if alias == "" || code == "" {
			continue
		}
		if i == 0 && strings.EqualFold(code, "CODE") {
			continue
		}
		out[alias] = code
	}
	return out
}

// =============================================================================
// LOADERS
// =============================================================================

// LoadFile reads reference data from path, choosing the parser by extension.
func LoadFile(path string) (Data, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSV(path)
	case ".xlsx":
		return loadXLSX(path)
	case ".yaml", ".yml":
		return loadYAML(path)
	default:
		return Data{}, fmt.Errorf("unsupported reference data format: %s", filepath.Ext(path))
	}
}

// Open loads path, merges it over the builtin data and builds a Catalog.
// An empty path yields the builtin catalog.
func Open(path string) (*Catalog, error) {
	if path == "" {
		return New(Builtin()), nil
	}
	data, err := LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}
	return New(Merge(Builtin(), data)), nil
}

func loadCSV(path string) (Data, error) {
	file, err := os.Open(path)
	if err != nil {
		return Data{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(bufio.NewReader(file))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return Data{}, fmt.Errorf("failed to read CSV: %w", err)
	}

	products, err := parseProducts(rows)
	if err != nil {
		return Data{}, err
	}
	return Data{Products: products}, nil
}

// Sheet names recognised in an XLSX reference workbook.
const (
	SheetProducts  = "Products"
	SheetCountries = "Countries"
	SheetOffices   = "Offices"
)

func loadXLSX(path string) (Data, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Data{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	// The products sheet falls back to the first sheet for single-sheet
	// reference exports.
	productSheet := SheetProducts
	if idx, _ := f.GetSheetIndex(productSheet); idx < 0 {
		productSheet = f.GetSheetName(0)
		if productSheet == "" {
			return Data{}, fmt.Errorf("workbook has no sheets")
		}
	}

	rows, err := f.GetRows(productSheet)
	if err != nil {
		return Data{}, fmt.Errorf("failed to read rows: %w", err)
	}
	products, err := parseProducts(rows)
	if err != nil {
		return Data{}, err
	}
	data := Data{Products: products}

	if idx, _ := f.GetSheetIndex(SheetCountries); idx >= 0 {
		rows, err := f.GetRows(SheetCountries)
		if err != nil {
			return Data{}, fmt.Errorf("failed to read countries: %w", err)
		}
		data.Countries = parseAliases(rows)
	}
	if idx, _ := f.GetSheetIndex(SheetOffices); idx >= 0 {
		rows, err := f.GetRows(SheetOffices)
		if err != nil {
			return Data{}, fmt.Errorf("failed to read offices: %w", err)
		}
		data.Offices = parseAliases(rows)
	}

	return data, nil
}

func loadYAML(path string) (Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Data{}, fmt.Errorf("failed to read file: %w", err)
	}
	var data Data
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("failed to parse file: %w", err)
	}
	for i := range data.Products {
		data.Products[i].HSCode = digitsOnly(data.Products[i].HSCode)
	}
	return data, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// digitsOnly strips the dots and spaces found in printed HS codes
// ("6205.30.00" -> "62053000").
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
