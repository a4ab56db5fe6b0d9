// =============================================================================
// ASYCUDA Export - Sales Report Reader
// =============================================================================
//
// Reads point-of-sale export reports (CSV or XLSX) into raw rows keyed by
// canonical field names. The column mapping comes from configuration, so a
// shop whose report says "ITEM SOLD" and "DF US$" needs no code change.
//
// CANONICAL FIELDS:
//   description, quantity, unit_price   (required columns)
//   currency, hs_code, origin, barcode, net_weight,
//   vessel, port, destination           (optional columns)
//
// Every raw column is also kept under its own header so transformation
// rules can refer to columns that have no canonical meaning.
//
// =============================================================================

package salesreport

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Canonical field names.
const (
	FieldDescription = "description"
	FieldQuantity    = "quantity"
	FieldUnitPrice   = "unit_price"
	FieldCurrency    = "currency"
	FieldHSCode      = "hs_code"
	FieldOrigin      = "origin"
	FieldBarcode     = "barcode"
	FieldNetWeight   = "net_weight"
	FieldVessel      = "vessel"
	FieldPort        = "port"
	FieldDestination = "destination"
)

// =============================================================================
// SETTINGS
// =============================================================================

// Settings controls how a report file is parsed.
type Settings struct {
	// Delimiter separates CSV fields. Accepts a character or one of
	// "tab", "pipe", "semicolon". Default: ","
	Delimiter string `yaml:"delimiter" json:"delimiter"`

	// HeaderRows is the number of header rows. Multi-row headers are joined
	// with a space per column. Default: 1
	HeaderRows int `yaml:"header_rows" json:"header_rows" validate:"gte=0"`

	// DataStartRow is the 1-based row where data begins.
	// Default: HeaderRows + 1
	DataStartRow int `yaml:"data_start_row" json:"data_start_row" validate:"gte=0"`

	// Sheet selects the XLSX sheet. Default: the first sheet.
	Sheet string `yaml:"sheet" json:"sheet"`
}

// Columns maps each canonical field to the report header that carries it.
// Headers are matched case-insensitively after trimming.
type Columns struct {
	Description string `yaml:"description" json:"description"`
	Quantity    string `yaml:"quantity" json:"quantity"`
	UnitPrice   string `yaml:"unit_price" json:"unit_price"`
	Currency    string `yaml:"currency" json:"currency"`
	HSCode      string `yaml:"hs_code" json:"hs_code"`
	Origin      string `yaml:"origin" json:"origin"`
	Barcode     string `yaml:"barcode" json:"barcode"`
	NetWeight   string `yaml:"net_weight" json:"net_weight"`
	Vessel      string `yaml:"vessel" json:"vessel"`
	Port        string `yaml:"port" json:"port"`
	Destination string `yaml:"destination" json:"destination"`
}

// DefaultColumns returns the headers of the duty-free shop sales report.
func DefaultColumns() Columns {
	return Columns{
		Description: "ITEM SOLD",
		Quantity:    "number",
		UnitPrice:   "DF US$",
		Currency:    "Currency",
		HSCode:      "HS Code",
		Origin:      "Origin",
		Barcode:     "BAR CODE",
		NetWeight:   "Net Weight",
		Vessel:      "Vessel",
		Port:        "Port",
		Destination: "Destination",
	}
}

func (c Columns) mapping() []struct{ field, header string } {
	return []struct{ field, header string }{
		{FieldDescription, c.Description},
		{FieldQuantity, c.Quantity},
		{FieldUnitPrice, c.UnitPrice},
		{FieldCurrency, c.Currency},
		{FieldHSCode, c.HSCode},
		{FieldOrigin, c.Origin},
		{FieldBarcode, c.Barcode},
		{FieldNetWeight, c.NetWeight},
		{FieldVessel, c.Vessel},
		{FieldPort, c.Port},
		{FieldDestination, c.Destination},
	}
}

// =============================================================================
// ROWS
// =============================================================================

// Row is one data row of a report.
type Row struct {
	// Number is the 1-based line of the row in the source file, used in
	// row-level error messages.
	Number int `json:"row"`

	// Fields holds canonical fields plus every raw column by header.
	Fields map[string]string `json:"fields"`
}

// Get returns a field value with surrounding whitespace removed.
func (r Row) Get(field string) string {
	return strings.TrimSpace(r.Fields[field])
}

// Report is a parsed sales report.
type Report struct {
	SourceFile string
	Headers    []string
	Rows       []Row
}

// Read parses a CSV or XLSX report, chosen by file extension.
func Read(path string, cols Columns, settings Settings) (*Report, error) {
	var (
		t   *table
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		t, err = readCSVFile(path, settings)
	case ".xlsx", ".xlsm":
		t, err = readXLSX(path, settings)
	default:
		return nil, fmt.Errorf("unsupported sales report format: %s", path)
	}
	if err != nil {
		return nil, err
	}

	report, err := fromTable(t, cols, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	report.SourceFile = path
	return report, nil
}

// ReadCSV parses a CSV report from r.
func ReadCSV(r io.Reader, cols Columns, settings Settings) (*Report, error) {
	t, err := readCSV(r, settings)
	if err != nil {
		return nil, err
	}
	return fromTable(t, cols, settings)
}

// table is a grid of records with the 1-based source line of each record.
// encoding/csv drops blank lines, so line numbers are tracked separately.
type table struct {
	records [][]string
	lines   []int
}

func readCSVFile(path string, settings Settings) (*table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	return readCSV(bufio.NewReader(file), settings)
}

func readCSV(r io.Reader, settings Settings) (*table, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter(settings.Delimiter)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	t := &table{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line, _ := reader.FieldPos(0)
		t.records = append(t.records, record)
		t.lines = append(t.lines, line)
	}
	return t, nil
}

func delimiter(d string) rune {
	switch d {
	case "\\t", "tab", "TAB":
		return '\t'
	case "|", "pipe", "PIPE":
		return '|'
	case ";", "semicolon":
		return ';'
	case "":
		return ','
	default:
		return []rune(d)[0]
	}
}

func readXLSX(path string, settings Settings) (*table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()

	sheet := settings.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	t := &table{records: rows, lines: make([]int, len(rows))}
	for i := range rows {
		t.lines[i] = i + 1
	}
	return t, nil
}

// fromTable turns raw records into rows. Rows are numbered by their line
// in the file so errors point at the right place.
func fromTable(t *table, cols Columns, settings Settings) (*Report, error) {
	records := t.records
	headerRows := settings.HeaderRows
	if headerRows <= 0 {
		headerRows = 1
	}
	if len(records) < headerRows {
		return nil, fmt.Errorf("report is empty")
	}

	headers := joinHeaders(records[:headerRows])

	index := make(map[string]int, len(headers))
	for i, h := range headers {
		key := strings.ToLower(h)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	fieldCol := make(map[string]int)
	for _, m := range cols.mapping() {
		if m.header == "" {
			continue
		}
		if i, ok := index[strings.ToLower(strings.TrimSpace(m.header))]; ok {
			fieldCol[m.field] = i
		}
	}
	for _, required := range []string{FieldDescription, FieldQuantity, FieldUnitPrice} {
		if _, ok := fieldCol[required]; !ok {
			return nil, fmt.Errorf("required column for %s not found in headers %v", required, headers)
		}
	}

	report := &Report{Headers: headers}
	for i := headerRows; i < len(records); i++ {
		record := records[i]
		if t.lines[i] < settings.DataStartRow || isEmpty(record) {
			continue
		}

		fields := make(map[string]string, len(headers)+len(fieldCol))
		for col, h := range headers {
			fields[h] = cell(record, col)
		}
		for field, col := range fieldCol {
			fields[field] = cell(record, col)
		}
		report.Rows = append(report.Rows, Row{Number: t.lines[i], Fields: fields})
	}
	return report, nil
}

func joinHeaders(rows [][]string) []string {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	headers := make([]string, width)
	for col := 0; col < width; col++ {
		var parts []string
		for _, r := range rows {
			if v := strings.TrimSpace(cell(r, col)); v != "" {
				parts = append(parts, v)
			}
		}
		h := strings.Join(parts, " ")
		if h == "" {
			h = fmt.Sprintf("Column_%d", col+1)
		}
		headers[col] = h
	}
	return headers
}

func cell(record []string, col int) string {
	if col < len(record) {
		return strings.TrimSpace(record[col])
	}
	return ""
}

func isEmpty(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
