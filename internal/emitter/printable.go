package emitter

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/ginjaninja78/asycuda-export/internal/declaration"
)

// slot places one declaration field in a numbered box of the form.
type slot struct {
	Box   string
	Label string
	Path  string
}

// printableHeader follows the box numbering of the Single Administrative
// Document.
var printableHeader = []slot{
	{"A", "Office", "customs_office"},
	{"A", "Registration", "registration_number"},
	{"A", "Date", "date"},
	{"1", "Declaration", "type"},
	{"2", "Exporter ID", "exporter.tax_id"},
	{"2", "Exporter", "exporter.name"},
	{"2", "Address", "exporter.address_line1"},
	{"2", "Address", "exporter.address_line2"},
	{"2", "City", "exporter.city"},
	{"2", "Country", "exporter.country"},
	{"7", "Reference number", "commercial_reference"},
	{"14", "Declarant ID", "declarant.tax_id"},
	{"14", "Declarant", "declarant.name"},
	{"14", "Address", "declarant.address_line1"},
	{"14", "Address", "declarant.address_line2"},
	{"14", "City", "declarant.city"},
	{"14", "Country", "declarant.country"},
	{"17", "Country of destination", "destination_country"},
	{"18", "Means of transport", "transport_mode"},
	{"20", "Delivery terms", "delivery_terms"},
	{"22", "Currency", "currency"},
	{"23", "Exchange rate", "exchange_rate"},
	{"27", "Place of loading", "place_of_loading"},
	{"29", "Office of exit", "entry_exit_office"},
	{"30", "Location of goods", "warehouse_identification"},
	{"37", "Procedure", "general_procedure_code"},
	{"37", "Extended procedure", "extended_procedure_code"},
	{"40", "Manifest", "manifest_reference"},
	{"43", "Valuation method", "valuation_method"},
	{"54", "Signature", "declarant_signature"},
}

// printableItem holds the item boxes; paths are relative to the item.
var printableItem = []slot{
	{"32", "Item No", "number"},
	{"31", "Marks and numbers", "marks_and_numbers"},
	{"31", "Number of packages", "package_count"},
	{"31", "Kind of packages", "package_type"},
	{"31", "Description", "description"},
	{"33", "Commodity code", "hs_code"},
	{"34", "Country of origin", "origin"},
	{"35", "Gross mass (kg)", "gross_weight"},
	{"38", "Net mass (kg)", "net_weight"},
	{"40", "Previous document", "previous_document"},
	{"41", "Supplementary units", "quantity"},
	{"41", "Unit", "statistical_unit"},
	{"46", "Statistical value", "customs_value"},
}

func printableSlotted(path string) bool {
	table := printableHeader
	if name, ok := itemField(path); ok {
		table, path = printableItem, name
	}
	for _, s := range table {
		if s.Path == path {
			return true
		}
	}
	return false
}

type box struct {
	Box   string
	Label string
	Value string
}

type printableView struct {
	Title         string
	Header        []box
	Items         [][]box
	TotalPackages int
	TotalValue    string
	Currency      string
}

var printableTemplate = template.Must(template.New("declaration").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; font-size: 12px; margin: 24px; }
h1 { font-size: 16px; }
table { border-collapse: collapse; width: 100%; margin-bottom: 16px; }
td, th { border: 1px solid #444; padding: 4px 6px; vertical-align: top; }
th { background: #ddd; text-align: left; }
.box { width: 36px; font-weight: bold; text-align: center; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<table class="header">
{{- range .Header}}
<tr><td class="box">{{.Box}}</td><th>{{.Label}}</th><td>{{.Value}}</td></tr>
{{- end}}
<tr><td class="box">6</td><th>Total packages</th><td>{{.TotalPackages}}</td></tr>
<tr><td class="box">22</td><th>Total amount invoiced</th><td>{{.TotalValue}} {{.Currency}}</td></tr>
</table>
{{- range $i, $item := .Items}}
<table class="item">
{{- range $item}}
<tr><td class="box">{{.Box}}</td><th>{{.Label}}</th><td>{{.Value}}</td></tr>
{{- end}}
</table>
{{- end}}
</body>
</html>
`))

// Printable emits an HTML rendition of the paper form.
type Printable struct{}

func (Printable) Format() string      { return "html" }
func (Printable) ContentType() string { return "text/html; charset=utf-8" }
func (Printable) Extension() string   { return ".html" }

// Emit renders d as a standalone HTML page.
func (p Printable) Emit(d *declaration.Declaration) ([]byte, error) {
	if err := emptyDeclaration(p.Format(), d); err != nil {
		return nil, err
	}
	if path, ok := checkSlots(d, printableSlotted); !ok {
		return nil, &FormatEmissionError{Format: p.Format(), Field: path, Err: fmt.Errorf("no box for populated field")}
	}

	view := printableView{
		Title:         "Export Declaration " + d.RegistrationNumber,
		Header:        fillBoxes(printableHeader, d.HeaderFields(), ""),
		TotalPackages: d.TotalPackages(),
		TotalValue:    declaration.FormatMoney(d.TotalValue(), d.Currency),
		Currency:      d.Currency,
	}
	for i := range d.Items {
		view.Items = append(view.Items, fillBoxes(printableItem, d.ItemFields(i), declaration.ItemPath(i)+"."))
	}

	var buf bytes.Buffer
	if err := printableTemplate.Execute(&buf, view); err != nil {
		return nil, &FormatEmissionError{Format: p.Format(), Err: fmt.Errorf("failed to render template: %w", err)}
	}
	return buf.Bytes(), nil
}

// fillBoxes returns the populated slots of table in table order.
func fillBoxes(table []slot, fields []declaration.Field, prefix string) []box {
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		values[f.Path] = f.Value
	}
	var boxes []box
	for _, s := range table {
		if v, ok := values[prefix+s.Path]; ok {
			boxes = append(boxes, box{Box: s.Box, Label: s.Label, Value: v})
		}
	}
	return boxes
}
