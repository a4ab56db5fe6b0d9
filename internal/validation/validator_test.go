package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/asycuda-export/internal/catalog"
	"github.com/ginjaninja78/asycuda-export/internal/declaration"
)

func testCatalog() *catalog.Catalog {
	data := catalog.Builtin()
	data.Products = []catalog.Entry{{Key: "Silver Bracelet", HSCode: "71179000"}}
	return catalog.New(data)
}

func validDeclaration() *declaration.Declaration {
	d := declaration.New(
		declaration.Entity{TaxID: "100200300", Name: "Duty Free Caribbean Ltd", AddressLine1: "Pointe Seraphine", Country: "LC"},
		declaration.Entity{TaxID: "900800", Name: "Island Brokers", AddressLine1: "Jeremie Street"},
	)
	d.RegistrationNumber = "LC20261017000001"
	d.Type = declaration.TypeEX3
	d.CustomsOffice = "LCVFP"
	d.Date = time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	d.GeneralProcedureCode = "3071"
	d.ExtendedProcedureCode = "113"
	d.DestinationCountry = "VC"
	d.TransportMode = "VC"
	d.EntryExitOffice = "LCHB"
	d.Currency = "USD"
	d.ExchangeRate = decimal.NewFromInt(1)
	d.CommercialReference = "REF-20261017"
	d.AddItem(declaration.Item{
		HSCode:          "71179000",
		Description:     "Silver Braclet",
		Origin:          "US",
		GrossWeight:     decimal.RequireFromString("0.072"),
		NetWeight:       decimal.RequireFromString("0.06"),
		StatisticalUnit: "NMB",
		Quantity:        decimal.NewFromInt(2),
		CustomsValue:    decimal.RequireFromString("90.00"),
		PackageType:     "PE",
		PackageCount:    2,
		MarksAndNumbers: declaration.DefaultMarks,
	})
	return d
}

func TestValidate_ValidDeclaration(t *testing.T) {
	res := Validate(validDeclaration(), testCatalog())
	assert.True(t, res.Valid, FormatDiagnostics(res.Diagnostics))
	assert.Empty(t, res.Diagnostics)
	assert.NotNil(t, res.Diagnostics)

	res = Validate(validDeclaration(), nil)
	assert.True(t, res.Valid)
}

func TestValidate_GrossBelowNet(t *testing.T) {
	d := validDeclaration()
	d.Items[0].GrossWeight = decimal.RequireFromString("1.0")
	d.Items[0].NetWeight = decimal.RequireFromString("1.5")

	res := Validate(d, testCatalog())
	assert.False(t, res.Valid)
	require.Len(t, res.Errors(), 1)
	diag := res.Errors()[0]
	assert.Equal(t, RuleGrossNet, diag.Rule)
	assert.Equal(t, CategoryRange, diag.Category)
	assert.Equal(t, "items[0].gross_weight", diag.Path)
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *declaration.Declaration)
		rule   string
		path   string
	}{
		{"lowercase registration", func(d *declaration.Declaration) { d.RegistrationNumber = "lc001" }, RulePattern, "registration_number"},
		{"long registration", func(d *declaration.Declaration) { d.RegistrationNumber = strings.Repeat("A", 21) }, RulePattern, "registration_number"},
		{"bad type", func(d *declaration.Declaration) { d.Type = "IM4" }, RulePattern, "type"},
		{"bad office", func(d *declaration.Declaration) { d.CustomsOffice = "USNYC" }, RulePattern, "customs_office"},
		{"office not in table", func(d *declaration.Declaration) { d.CustomsOffice = "LCXYZ" }, RuleCodeTable, "customs_office"},
		{"missing date", func(d *declaration.Declaration) { d.Date = time.Time{} }, RuleRequired, "date"},
		{"bad gpc", func(d *declaration.Declaration) { d.GeneralProcedureCode = "30" }, RulePattern, "general_procedure_code"},
		{"bad epc", func(d *declaration.Declaration) { d.ExtendedProcedureCode = "1130" }, RulePattern, "extended_procedure_code"},
		{"bad currency", func(d *declaration.Declaration) { d.Currency = "usd" }, RulePattern, "currency"},
		{"zero exchange rate", func(d *declaration.Declaration) { d.ExchangeRate = decimal.Zero }, RulePositive, "exchange_rate"},
		{"unknown transport", func(d *declaration.Declaration) { d.TransportMode = "ZZ" }, RuleCodeTable, "transport_mode"},
		{"long commercial ref", func(d *declaration.Declaration) { d.CommercialReference = strings.Repeat("R", 36) }, RuleMaxLength, "commercial_reference"},
		{"exporter without tax id", func(d *declaration.Declaration) { d.Exporter.TaxID = "" }, RuleRequired, "exporter.tax_id"},
		{"long declarant name", func(d *declaration.Declaration) { d.Declarant.Name = strings.Repeat("n", 71) }, RuleMaxLength, "declarant.name"},
		{"lowercase entity country", func(d *declaration.Declaration) { d.Exporter.Country = "lc" }, RulePattern, "exporter.country"},
		{"no items", func(d *declaration.Declaration) { d.Items = nil }, RuleNoItems, "items"},
		{"short hs", func(d *declaration.Declaration) { d.Items[0].HSCode = "7117" }, RulePattern, "items[0].hs_code"},
		{"long description", func(d *declaration.Declaration) { d.Items[0].Description = strings.Repeat("é", 281) }, RuleMaxLength, "items[0].description"},
		{"bad origin", func(d *declaration.Declaration) { d.Items[0].Origin = "USA" }, RulePattern, "items[0].origin"},
		{"zero quantity", func(d *declaration.Declaration) { d.Items[0].Quantity = decimal.Zero }, RulePositive, "items[0].quantity"},
		{"negative value", func(d *declaration.Declaration) { d.Items[0].CustomsValue = decimal.NewFromInt(-1) }, RulePositive, "items[0].customs_value"},
		{"sub-cent value", func(d *declaration.Declaration) { d.Items[0].CustomsValue = decimal.RequireFromString("90.005") }, RuleMinorUnit, "items[0].customs_value"},
		{"no packages", func(d *declaration.Declaration) { d.Items[0].PackageCount = 0 }, RulePositive, "items[0].package_count"},
		{"unknown unit", func(d *declaration.Declaration) { d.Items[0].StatisticalUnit = "XXX" }, RuleCodeTable, "items[0].statistical_unit"},
		{"unknown package", func(d *declaration.Declaration) { d.Items[0].PackageType = "ZZ" }, RuleCodeTable, "items[0].package_type"},
		{"long marks", func(d *declaration.Declaration) { d.Items[0].MarksAndNumbers = strings.Repeat("M", 141) }, RuleMaxLength, "items[0].marks_and_numbers"},
		{"long previous doc", func(d *declaration.Declaration) { d.Items[0].PreviousDocument = strings.Repeat("P", 51) }, RuleMaxLength, "items[0].previous_document"},
		{"gap in numbering", func(d *declaration.Declaration) { d.Items[0].Number = 2 }, RuleItemNumber, "items[0].number"},
		{"separator in description", func(d *declaration.Declaration) { d.Items[0].Description = "Hat | Cap" }, RuleSeparator, "items[0].description"},
		{"separator in exporter", func(d *declaration.Declaration) { d.Exporter.AddressLine2 = "Unit 4|5" }, RuleSeparator, "exporter.address_line2"},
		{"currency not in table", func(d *declaration.Declaration) { d.Currency = "ZZZ" }, RuleCodeTable, "currency"},
		{"net weight finer than a gram", func(d *declaration.Declaration) { d.Items[0].NetWeight = decimal.RequireFromString("0.0604") }, RuleWeightPrecision, "items[0].net_weight"},
		{"gross weight finer than a gram", func(d *declaration.Declaration) { d.Items[0].GrossWeight = decimal.RequireFromString("0.0726") }, RuleWeightPrecision, "items[0].gross_weight"},
		{"vertical tab in description", func(d *declaration.Declaration) { d.Items[0].Description = "Silver\x0bBraclet" }, RuleControlCharacter, "items[0].description"},
		{"line break in description", func(d *declaration.Declaration) { d.Items[0].Description = "Silver\r\nBraclet" }, RuleControlCharacter, "items[0].description"},
		{"tab in exporter name", func(d *declaration.Declaration) { d.Exporter.Name = "Duty\tFree" }, RuleControlCharacter, "exporter.name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDeclaration()
			tt.mutate(d)
			res := Validate(d, testCatalog())
			assert.False(t, res.Valid)
			assert.True(t, res.Has(tt.rule, tt.path), FormatDiagnostics(res.Diagnostics))
			for _, diag := range res.Diagnostics {
				assert.NotEmpty(t, diag.Path)
				assert.NotEmpty(t, diag.Rule)
				assert.NotEmpty(t, diag.Category)
				assert.NotEmpty(t, diag.Message)
			}
		})
	}
}

func TestValidate_WeightPrecision(t *testing.T) {
	tests := []struct {
		name  string
		net   string
		valid bool
	}{
		{"grams", "0.061", true},
		{"whole kilograms", "1", true},
		{"trailing zeros", "0.0600", true},
		{"below a gram", "0.0604", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDeclaration()
			d.Items[0].GrossWeight = decimal.RequireFromString("2")
			d.Items[0].NetWeight = decimal.RequireFromString(tt.net)
			res := Validate(d, testCatalog())
			assert.Equal(t, tt.valid, res.Valid, FormatDiagnostics(res.Diagnostics))
			assert.Equal(t, !tt.valid, res.Has(RuleWeightPrecision, "items[0].net_weight"))
		})
	}
}

func TestValidate_DoesNotShortCircuit(t *testing.T) {
	d := validDeclaration()
	d.Type = "EX9"
	d.Currency = ""
	d.Items[0].HSCode = "abc"
	d.Items[0].GrossWeight = decimal.RequireFromString("0.01")

	res := Validate(d, testCatalog())
	assert.Equal(t, 4, res.ErrorCount)
	assert.True(t, res.Has(RulePattern, "type"))
	assert.True(t, res.Has(RuleRequired, "currency"))
	assert.True(t, res.Has(RulePattern, "items[0].hs_code"))
	assert.True(t, res.Has(RuleGrossNet, "items[0].gross_weight"))
}

func TestValidate_UnknownHSCodeIsWarning(t *testing.T) {
	d := validDeclaration()
	d.Items[0].HSCode = "98010000"

	res := Validate(d, testCatalog())
	assert.True(t, res.Valid)
	require.Len(t, res.Warnings(), 1)
	assert.Equal(t, RuleUnknownHSCode, res.Warnings()[0].Rule)
	assert.Equal(t, CategoryReferential, res.Warnings()[0].Category)

	strict := NewValidatorWithOptions(testCatalog(), Options{TreatWarningsAsErrors: true})
	assert.False(t, strict.Validate(d).Valid)
}

func TestValidateBatch_DuplicateRegistration(t *testing.T) {
	v := NewValidator(testCatalog())
	a, b, c := validDeclaration(), validDeclaration(), validDeclaration()
	c.RegistrationNumber = "LC20261017000002"

	results := v.ValidateBatch([]*declaration.Declaration{a, b, c})
	require.Len(t, results, 3)
	assert.True(t, results[0].Valid)
	assert.False(t, results[1].Valid)
	assert.True(t, results[1].Has(RuleDuplicateRegistration, "registration_number"))
	assert.True(t, results[2].Valid)
}

func TestValidate_NilDeclaration(t *testing.T) {
	res := Validate(nil, nil)
	assert.False(t, res.Valid)
	assert.Equal(t, 1, res.ErrorCount)
}

func TestFormatDiagnostics(t *testing.T) {
	assert.Equal(t, "No validation errors.", FormatDiagnostics(nil))

	out := FormatDiagnostics([]Diagnostic{{
		Path: "items[0].origin", Severity: SeverityError, Rule: RulePattern,
		Category: CategoryStructural, Message: "value must be an ISO alpha-2 code", Value: "USA",
	}})
	assert.Contains(t, out, "1 diagnostic(s)")
	assert.Contains(t, out, "[ERROR] items[0].origin: value must be an ISO alpha-2 code (structural/pattern, value: 'USA')")
}
