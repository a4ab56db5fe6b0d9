package emitter

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/asycuda-export/internal/declaration"
)

// Sheet names.
const (
	SheetDeclaration = "Declaration"
	SheetItems       = "Items"
	SheetSummary     = "Summary"
)

// itemColumnOrder is the documented column order of the Items sheet.
var itemColumnOrder = []struct {
	field, label string
}{
	{"number", "Item #"},
	{"hs_code", "HS Code"},
	{"description", "Description"},
	{"origin", "Origin"},
	{"gross_weight", "Gross Weight"},
	{"net_weight", "Net Weight"},
	{"statistical_unit", "Unit"},
	{"quantity", "Quantity"},
	{"customs_value", "Value"},
	{"package_type", "Package Type"},
	{"package_count", "Packages"},
	{"marks_and_numbers", "Marks"},
	{"previous_document", "Previous Doc"},
}

// headerSlots lists the header paths the Declaration sheet has a row for.
var headerSlots = map[string]bool{
	"registration_number": true, "type": true, "customs_office": true, "date": true,
	"general_procedure_code": true, "extended_procedure_code": true,
	"destination_country": true, "transport_mode": true, "entry_exit_office": true,
	"currency": true, "exchange_rate": true, "commercial_reference": true,
	"valuation_method": true, "delivery_terms": true, "place_of_loading": true,
	"manifest_reference": true, "warehouse_identification": true, "declarant_signature": true,
	"exporter.tax_id": true, "exporter.name": true, "exporter.address_line1": true,
	"exporter.address_line2": true, "exporter.city": true, "exporter.country": true,
	"declarant.tax_id": true, "declarant.name": true, "declarant.address_line1": true,
	"declarant.address_line2": true, "declarant.city": true, "declarant.country": true,
}

func spreadsheetSlotted(path string) bool {
	if name, ok := itemField(path); ok {
		for _, c := range itemColumnOrder {
			if c.field == name {
				return true
			}
		}
		return false
	}
	return headerSlots[path]
}

// Spreadsheet emits the review workbook.
type Spreadsheet struct{}

func (Spreadsheet) Format() string { return "xlsx" }
func (Spreadsheet) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
func (Spreadsheet) Extension() string { return ".xlsx" }

// Emit renders d as a workbook with Declaration, Items and Summary sheets.
func (s Spreadsheet) Emit(d *declaration.Declaration) ([]byte, error) {
	if err := emptyDeclaration(s.Format(), d); err != nil {
		return nil, err
	}
	if path, ok := checkSlots(d, spreadsheetSlotted); !ok {
		return nil, &FormatEmissionError{Format: s.Format(), Field: path, Err: fmt.Errorf("no cell for populated field")}
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := s.write(f, d); err != nil {
		return nil, &FormatEmissionError{Format: s.Format(), Err: err}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, &FormatEmissionError{Format: s.Format(), Err: fmt.Errorf("failed to write workbook: %w", err)}
	}
	return buf.Bytes(), nil
}

func (s Spreadsheet) write(f *excelize.File, d *declaration.Declaration) error {
	title, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	headerRow, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDDDDD"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	// Declaration sheet: label/value rows in form order.
	if err := f.SetSheetName("Sheet1", SheetDeclaration); err != nil {
		return err
	}
	if err := titleRow(f, SheetDeclaration, "ASYCUDA Export Declaration", "D1", title); err != nil {
		return err
	}
	row := 3
	for _, field := range d.HeaderFields() {
		if err := setRow(f, SheetDeclaration, row, field.Label, field.Value); err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetDeclaration, cellName(1, row), cellName(1, row), bold); err != nil {
			return err
		}
		row++
	}
	if err := f.SetColWidth(SheetDeclaration, "A", "B", 30); err != nil {
		return err
	}

	// Items sheet.
	if _, err := f.NewSheet(SheetItems); err != nil {
		return err
	}
	if err := titleRow(f, SheetItems, "Declaration Items", "F1", title); err != nil {
		return err
	}
	labels := make([]interface{}, len(itemColumnOrder))
	for i, c := range itemColumnOrder {
		labels[i] = c.label
	}
	if err := f.SetSheetRow(SheetItems, "A3", &labels); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetItems, "A3", cellName(len(itemColumnOrder), 3), headerRow); err != nil {
		return err
	}
	for i := range d.Items {
		values := make(map[string]string)
		for _, field := range d.ItemFields(i) {
			name, _ := itemField(field.Path)
			values[name] = field.Value
		}
		cells := make([]interface{}, len(itemColumnOrder))
		for j, c := range itemColumnOrder {
			cells[j] = values[c.field]
		}
		if err := f.SetSheetRow(SheetItems, cellName(1, 4+i), &cells); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SheetItems, "C", "C", 40); err != nil {
		return err
	}

	// Summary sheet.
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return err
	}
	if err := titleRow(f, SheetSummary, "Declaration Summary", "C1", title); err != nil {
		return err
	}
	summary := [][2]string{
		{"Total Items", strconv.Itoa(len(d.Items))},
		{"Total Packages", strconv.Itoa(d.TotalPackages())},
		{"Total Gross Weight", declaration.FormatWeight(d.TotalGrossWeight()) + " kg"},
		{"Total Net Weight", declaration.FormatWeight(d.TotalNetWeight()) + " kg"},
		{"Total Value", declaration.FormatMoney(d.TotalValue(), d.Currency) + " " + d.Currency},
	}
	for i, s := range summary {
		if err := setRow(f, SheetSummary, 3+i, s[0], s[1]); err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetSummary, cellName(1, 3+i), cellName(1, 3+i), bold); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SheetSummary, "A", "B", 24); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	return nil
}

func titleRow(f *excelize.File, sheet, text, mergeTo string, style int) error {
	if err := f.SetCellValue(sheet, "A1", text); err != nil {
		return err
	}
	if err := f.MergeCell(sheet, "A1", mergeTo); err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", "A1", style)
}

func setRow(f *excelize.File, sheet string, row int, label, value string) error {
	if err := f.SetCellValue(sheet, cellName(1, row), label); err != nil {
		return err
	}
	return f.SetCellValue(sheet, cellName(2, row), value)
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
