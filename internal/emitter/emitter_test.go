package emitter

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/asycuda-export/internal/declaration"
)

func testDeclaration() *declaration.Declaration {
	d := declaration.New(
		declaration.Entity{TaxID: "100200300", Name: "Duty Free Caribbean Ltd", AddressLine1: "Pointe Seraphine", AddressLine2: "Unit 4", City: "Castries", Country: "LC"},
		declaration.Entity{TaxID: "900800", Name: "Island Brokers & Sons", AddressLine1: "Jeremie Street", City: "Castries", Country: "LC"},
	)
	d.RegistrationNumber = "LC20261017000001"
	d.Type = declaration.TypeEX3
	d.CustomsOffice = "LCVFP"
	d.Date = time.Date(2026, 10, 17, 14, 30, 0, 0, time.UTC)
	d.GeneralProcedureCode = "3071"
	d.ExtendedProcedureCode = "113"
	d.DestinationCountry = "VC"
	d.TransportMode = "VC"
	d.EntryExitOffice = "LCHB"
	d.Currency = "USD"
	d.ExchangeRate = decimal.RequireFromString("2.7")
	d.CommercialReference = "REF-20261017"
	d.ValuationMethod = "1"
	d.DeliveryTerms = "CIF"
	d.WarehouseIdentification = "PS-01"
	d.AddItem(declaration.Item{
		HSCode:          "71179000",
		Description:     "Silver Braclet",
		Origin:          "US",
		GrossWeight:     decimal.RequireFromString("0.072"),
		NetWeight:       decimal.RequireFromString("0.06"),
		StatisticalUnit: "NMB",
		Quantity:        decimal.NewFromInt(2),
		CustomsValue:    decimal.RequireFromString("90"),
		PackageType:     "PE",
		PackageCount:    2,
		MarksAndNumbers: declaration.DefaultMarks,
	})
	d.AddItem(declaration.Item{
		HSCode:           "65040000",
		Description:      `Straw Hat "Soufrière" <large>`,
		Origin:           "CN",
		GrossWeight:      decimal.RequireFromString("0.18"),
		NetWeight:        decimal.RequireFromString("0.15"),
		StatisticalUnit:  "NMB",
		Quantity:         decimal.RequireFromString("1.5"),
		CustomsValue:     decimal.RequireFromString("20.55"),
		PackageType:      "PE",
		PackageCount:     1,
		MarksAndNumbers:  declaration.DefaultMarks,
		PreviousDocument: "LCCAP 2026 C 4411 art. 3",
	})
	return d
}

func TestNewAndNames(t *testing.T) {
	assert.Equal(t, []string{"html", "txt", "xlsx", "xml"}, Names())

	for _, name := range Names() {
		e, err := New(strings.ToUpper(name))
		require.NoError(t, err)
		assert.Equal(t, name, e.Format())
		assert.Equal(t, "."+name, e.Extension())
		assert.NotEmpty(t, e.ContentType())
	}

	_, err := New("pdf")
	assert.ErrorContains(t, err, "available: html, txt, xlsx, xml")
}

func TestRoundTrip(t *testing.T) {
	parsers := map[string]func([]byte) (*declaration.Declaration, error){
		"xml": ParseMarkup,
		"txt": ParseDelimited,
	}
	for format, parse := range parsers {
		t.Run(format, func(t *testing.T) {
			d := testDeclaration()
			e, err := New(format)
			require.NoError(t, err)

			out, err := e.Emit(d)
			require.NoError(t, err)

			back, err := parse(out)
			require.NoError(t, err)
			assert.Empty(t, declaration.Diff(d, back))
			assert.True(t, declaration.Equal(d, back))

			again, err := e.Emit(back)
			require.NoError(t, err)
			assert.Equal(t, string(out), string(again), "emission is idempotent")
		})
	}
}

func TestRoundTrip_GramWeights(t *testing.T) {
	parsers := map[string]func([]byte) (*declaration.Declaration, error){
		"xml": ParseMarkup,
		"txt": ParseDelimited,
	}
	for format, parse := range parsers {
		t.Run(format, func(t *testing.T) {
			d := testDeclaration()
			d.Items[0].GrossWeight = decimal.RequireFromString("0.073")
			d.Items[0].NetWeight = decimal.RequireFromString("0.061")
			e, err := New(format)
			require.NoError(t, err)

			out, err := e.Emit(d)
			require.NoError(t, err)
			back, err := parse(out)
			require.NoError(t, err)
			assert.Empty(t, declaration.Diff(d, back))
			assert.True(t, back.Items[0].NetWeight.Equal(decimal.RequireFromString("0.061")))
		})
	}
}

func TestEmit_RefusesLossyValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *declaration.Declaration)
		field  string
	}{
		{"net weight below a gram", func(d *declaration.Declaration) { d.Items[0].NetWeight = decimal.RequireFromString("0.0604") }, "items[0].net_weight"},
		{"gross weight below a gram", func(d *declaration.Declaration) { d.Items[1].GrossWeight = decimal.RequireFromString("0.1805") }, "items[1].gross_weight"},
		{"vertical tab", func(d *declaration.Declaration) { d.Items[0].Description = "Silver\x0bBraclet" }, "items[0].description"},
		{"crlf", func(d *declaration.Declaration) { d.Items[0].Description = "Silver\r\nBraclet" }, "items[0].description"},
		{"tab in header", func(d *declaration.Declaration) { d.CommercialReference = "INV\t42" }, "commercial_reference"},
	}
	for _, format := range []string{"xml", "txt"} {
		for _, tt := range tests {
			t.Run(format+"/"+tt.name, func(t *testing.T) {
				d := testDeclaration()
				tt.mutate(d)
				e, err := New(format)
				require.NoError(t, err)

				_, err = e.Emit(d)
				var fe *FormatEmissionError
				require.True(t, errors.As(err, &fe), "got %v", err)
				assert.Equal(t, format, fe.Format)
				assert.Equal(t, tt.field, fe.Field)
			})
		}
	}
}

func TestMarkup_Layout(t *testing.T) {
	out, err := Markup{}.Emit(testDeclaration())
	require.NoError(t, err)
	xml := string(out)

	assert.True(t, strings.HasPrefix(xml, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, xml, `<AsycudaDeclaration version="1.0">`)
	assert.Contains(t, xml, "<Date>17/10/2026</Date>")
	assert.Contains(t, xml, "<TotalPackages>3</TotalPackages>")
	assert.Contains(t, xml, "<TotalCustomsValue>110.55</TotalCustomsValue>")
	assert.Contains(t, xml, "<CustomsValue>90.00</CustomsValue>")
	assert.Contains(t, xml, "<NetWeight>0.060</NetWeight>")
	assert.Contains(t, xml, "&lt;large&gt;")
	assert.NotContains(t, xml, "<ManifestReference>")
	assert.Equal(t, 1, strings.Count(xml, "<PreviousDocument>"))
}

func TestParseMarkup_TotalsMustMatch(t *testing.T) {
	out, err := Markup{}.Emit(testDeclaration())
	require.NoError(t, err)

	tampered := strings.Replace(string(out), "<TotalPackages>3</TotalPackages>", "<TotalPackages>4</TotalPackages>", 1)
	_, err = ParseMarkup([]byte(tampered))
	assert.ErrorContains(t, err, "TotalPackages")

	tampered = strings.Replace(string(out), "<TotalCustomsValue>110.55</TotalCustomsValue>", "<TotalCustomsValue>110.56</TotalCustomsValue>", 1)
	_, err = ParseMarkup([]byte(tampered))
	assert.ErrorContains(t, err, "TotalCustomsValue")

	_, err = ParseMarkup([]byte("<AsycudaDeclaration>"))
	assert.Error(t, err)
}

func TestDelimited_Records(t *testing.T) {
	out, err := Delimited{}.Emit(testDeclaration())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "H|LC20261017000001|EX3|LCVFP|17/10/2026|100200300|"))
	assert.Equal(t, "I|1|71179000|Silver Braclet|US|0.072|0.060|NMB|2|90.00|PE|2|NO MARKS|", lines[1])
	assert.Equal(t, "T|2|3|110.55", lines[3])
	assert.Len(t, strings.Split(lines[0], "|"), headerColumns)
}

func TestDelimited_SeparatorFailsLoudly(t *testing.T) {
	d := testDeclaration()
	d.Items[1].Description = "Hat | Cap"

	_, err := Delimited{}.Emit(d)
	var fe *FormatEmissionError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "txt", fe.Format)
	assert.Equal(t, "items[1].description", fe.Field)
}

func TestParseDelimited_Errors(t *testing.T) {
	out, err := Delimited{}.Emit(testDeclaration())
	require.NoError(t, err)
	text := string(out)

	tests := []struct {
		name string
		data string
		msg  string
	}{
		{"bad trailer count", strings.Replace(text, "T|2|3|", "T|5|3|", 1), "trailer declares 5 items"},
		{"bad trailer value", strings.Replace(text, "|110.55", "|999.99", 1), "trailer declares value"},
		{"missing trailer", text[:strings.Index(text, "T|")], "missing trailer"},
		{"missing header", text[strings.Index(text, "I|"):], "item before header"},
		{"unknown record", text + "X|1\n", "data after trailer"},
		{"short item", strings.Replace(text, "|NO MARKS|\n", "\n", 1), "item has"},
		{"empty", "", "missing header"},
		{"bad header packages", headerColumn(text, headerPackagesColumn, "9"), "header declares 9 packages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDelimited([]byte(tt.data))
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestSpreadsheet(t *testing.T) {
	out, err := Spreadsheet{}.Emit(testDeclaration())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetDeclaration, SheetItems, SheetSummary}, f.GetSheetList())

	get := func(sheet, cell string) string {
		v, err := f.GetCellValue(sheet, cell)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "ASYCUDA Export Declaration", get(SheetDeclaration, "A1"))
	assert.Equal(t, "Registration Number", get(SheetDeclaration, "A3"))
	assert.Equal(t, "LC20261017000001", get(SheetDeclaration, "B3"))

	assert.Equal(t, "Item #", get(SheetItems, "A3"))
	assert.Equal(t, "Previous Doc", get(SheetItems, "M3"))
	assert.Equal(t, "Silver Braclet", get(SheetItems, "C4"))
	assert.Equal(t, "90.00", get(SheetItems, "I4"))
	assert.Equal(t, "LCCAP 2026 C 4411 art. 3", get(SheetItems, "M5"))

	assert.Equal(t, "2", get(SheetSummary, "B3"))
	assert.Equal(t, "3", get(SheetSummary, "B4"))
	assert.Equal(t, "0.252 kg", get(SheetSummary, "B5"))
	assert.Equal(t, "110.55 USD", get(SheetSummary, "B7"))
}

func TestPrintable(t *testing.T) {
	out, err := Printable{}.Emit(testDeclaration())
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, "<title>Export Declaration LC20261017000001</title>")
	assert.Contains(t, html, "Island Brokers &amp; Sons")
	assert.Contains(t, html, "&lt;large&gt;")
	assert.Contains(t, html, "110.55 USD")
	assert.Equal(t, 2, strings.Count(html, `<table class="item">`))
	assert.NotContains(t, html, "Manifest")
}

func TestOneWayEmitters_EverySlotCovered(t *testing.T) {
	d := testDeclaration()
	d.PlaceOfLoading = "Castries"
	d.ManifestReference = "MAN-1"
	d.DeclarantSignature = "J. Brown"
	d.Declarant.AddressLine2 = "Floor 2"

	for _, f := range d.Fields() {
		assert.True(t, spreadsheetSlotted(f.Path), "xlsx has no cell for %s", f.Path)
		assert.True(t, printableSlotted(f.Path), "html has no box for %s", f.Path)
	}

	path, ok := checkSlots(d, func(p string) bool { return p != "items[1].previous_document" })
	assert.False(t, ok)
	assert.Equal(t, "items[1].previous_document", path)
}

func TestEmit_EmptyDeclaration(t *testing.T) {
	for _, name := range Names() {
		e, err := New(name)
		require.NoError(t, err)

		_, err = e.Emit(nil)
		var fe *FormatEmissionError
		require.True(t, errors.As(err, &fe), name)
		assert.Equal(t, name, fe.Format)

		_, err = e.Emit(declaration.New(declaration.Entity{}, declaration.Entity{}))
		require.True(t, errors.As(err, &fe), name)
		assert.Equal(t, "items", fe.Field)
	}
}

// headerColumn replaces column i of the H record.
func headerColumn(text string, i int, value string) string {
	lines := strings.SplitN(text, "\n", 2)
	cols := strings.Split(lines[0], "|")
	cols[i] = value
	lines[0] = strings.Join(cols, "|")
	return strings.Join(lines, "\n")
}
