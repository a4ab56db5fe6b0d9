package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/asycuda-export/internal/builder"
	"github.com/ginjaninja78/asycuda-export/internal/catalog"
	"github.com/ginjaninja78/asycuda-export/internal/config"
	"github.com/ginjaninja78/asycuda-export/internal/declaration"
	"github.com/ginjaninja78/asycuda-export/internal/emitter"
	"github.com/ginjaninja78/asycuda-export/internal/salesreport"
	"github.com/ginjaninja78/asycuda-export/internal/validation"
)

var runDate = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

func testCatalog() *catalog.Catalog {
	data := catalog.Builtin()
	data.Products = []catalog.Entry{
		{Key: "Silver Bracelet", HSCode: "71179000"},
		{Key: "Straw Hat", HSCode: "65040000"},
	}
	return catalog.New(data)
}

func testMapping() *config.MappingConfig {
	m := config.DefaultMapping()
	m.Name = "Duty Free Shop"
	m.Code = "DFS"
	m.RegistrationPrefix = "LC"
	m.FileMatchingPatterns = []string{"shop_*.csv"}
	m.Exporter = declaration.Entity{TaxID: "100200300", Name: "Duty Free Caribbean Ltd", AddressLine1: "Pointe Seraphine", Country: "LC"}
	m.Declarant = declaration.Entity{TaxID: "900800", Name: "Island Brokers", AddressLine1: "Jeremie Street"}
	return &m
}

func testPipeline() *Pipeline {
	return New(catalog.NewStaticStore(testCatalog()), Options{
		Now: func() time.Time { return runDate },
	})
}

func rows() []salesreport.Row {
	return []salesreport.Row{
		{Number: 2, Fields: map[string]string{"description": "Silver Braclet", "quantity": "2", "unit_price": "45"}},
		{Number: 3, Fields: map[string]string{"description": "Ceramic Teapot", "quantity": "1", "unit_price": "30"}},
		{Number: 4, Fields: map[string]string{"description": "Straw Hat", "quantity": "1", "unit_price": "12.50"}},
	}
}

func TestProcess(t *testing.T) {
	p := testPipeline()

	res, err := p.Process(context.Background(), rows(), testMapping())
	require.NoError(t, err)

	require.NotNil(t, res.Declaration)
	d := res.Declaration
	assert.Equal(t, "LC20261017000001", d.RegistrationNumber)
	require.Len(t, d.Items, 2)
	assert.Equal(t, "71179000", d.Items[0].HSCode)
	assert.Equal(t, "90.00", declaration.FormatMoney(d.Items[0].CustomsValue, d.Currency))
	assert.Equal(t, "102.50", declaration.FormatMoney(d.TotalValue(), d.Currency))

	require.Len(t, res.RowErrors, 1)
	var ue *builder.UnmatchedDescriptionError
	assert.True(t, errors.As(res.RowErrors[0], &ue))
	require.Len(t, res.RowDiagnostics, 1)
	assert.Equal(t, 3, res.RowDiagnostics[0].Row)

	require.NotNil(t, res.Validation)
	assert.True(t, res.Validation.Valid, validation.FormatDiagnostics(res.Validation.Diagnostics))
	assert.Equal(t, testCatalog().Version(), res.CatalogVersion)

	again, err := p.Process(context.Background(), rows(), testMapping())
	require.NoError(t, err)
	assert.Equal(t, "LC20261017000002", again.Declaration.RegistrationNumber, "each process draws a new sequence")
	again.Declaration.RegistrationNumber = d.RegistrationNumber
	assert.True(t, declaration.Equal(d, again.Declaration), declaration.Diff(d, again.Declaration))
}

func TestProcess_NoMappableRows(t *testing.T) {
	res, err := testPipeline().Process(context.Background(), []salesreport.Row{
		{Number: 2, Fields: map[string]string{"description": "Ceramic Teapot", "quantity": "1", "unit_price": "30"}},
	}, testMapping())
	require.NoError(t, err)
	assert.Nil(t, res.Declaration)
	assert.Nil(t, res.Validation)
	assert.Len(t, res.RowErrors, 1)
}

func TestProcess_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testPipeline().Process(ctx, rows(), testMapping())
	assert.ErrorIs(t, err, context.Canceled)
}

func processed(t *testing.T, p *Pipeline) *declaration.Declaration {
	t.Helper()
	res, err := p.Process(context.Background(), rows(), testMapping())
	require.NoError(t, err)
	require.NotNil(t, res.Declaration)
	return res.Declaration
}

func TestExport_AllFormats(t *testing.T) {
	p := testPipeline()
	d := processed(t, p)

	res, err := p.Export(context.Background(), d, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.NoError(t, res.Err())
	assert.Equal(t, emitter.Names(), res.Formats())

	xml := res.Artifacts["xml"]
	assert.Equal(t, ".xml", xml.Extension)
	parsed, err := emitter.ParseMarkup(xml.Data)
	require.NoError(t, err)
	assert.True(t, declaration.Equal(d, parsed), declaration.Diff(d, parsed))

	parsed, err = emitter.ParseDelimited(res.Artifacts["txt"].Data)
	require.NoError(t, err)
	assert.True(t, declaration.Equal(d, parsed), declaration.Diff(d, parsed))
}

func TestExport_InvalidDeclarationIsRefused(t *testing.T) {
	p := testPipeline()
	d := processed(t, p)
	d.Items[0].GrossWeight = decimal.RequireFromString("1.0")
	d.Items[0].NetWeight = decimal.RequireFromString("1.5")

	res, err := p.Export(context.Background(), d, []string{"xml", "txt"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDeclaration)

	var ide *InvalidDeclarationError
	require.True(t, errors.As(err, &ide))
	assert.True(t, ide.Validation.Has(validation.RuleGrossNet, "items[0].gross_weight"))
	assert.Empty(t, res.Artifacts, "no emitter runs for an invalid declaration")
}

func TestExport_SubGramWeightIsRefused(t *testing.T) {
	p := testPipeline()
	d := processed(t, p)
	d.Items[0].NetWeight = d.Items[0].NetWeight.Add(decimal.RequireFromString("0.0004"))

	res, err := p.Export(context.Background(), d, []string{"xml", "txt"})
	assert.ErrorIs(t, err, ErrInvalidDeclaration)

	var ide *InvalidDeclarationError
	require.True(t, errors.As(err, &ide))
	assert.True(t, ide.Validation.Has(validation.RuleWeightPrecision, "items[0].net_weight"))
	assert.Empty(t, res.Artifacts)
}

func TestExport_PerFormatFailure(t *testing.T) {
	p := testPipeline()
	d := processed(t, p)

	res, err := p.Export(context.Background(), d, []string{"xml", "pdf"})
	require.NoError(t, err)
	assert.Contains(t, res.Artifacts, "xml")
	require.Contains(t, res.Errors, "pdf")

	var fe *emitter.FormatEmissionError
	require.True(t, errors.As(res.Errors["pdf"], &fe))
	assert.Equal(t, "pdf", fe.Format)
	assert.ErrorContains(t, res.Err(), "unknown format")
}

func TestExport_StrictWarnings(t *testing.T) {
	p := New(catalog.NewStaticStore(testCatalog()), Options{
		Now:            func() time.Time { return runDate },
		StrictWarnings: true,
	})
	d := processed(t, p)
	d.Items[0].HSCode = "99999999"

	_, err := p.Export(context.Background(), d, []string{"xml"})
	assert.ErrorIs(t, err, ErrInvalidDeclaration)

	_, err = testPipeline().Export(context.Background(), d, []string{"xml"})
	assert.NoError(t, err, "unknown HS codes are warnings by default")
}

func TestExport_NilDeclaration(t *testing.T) {
	_, err := testPipeline().Export(context.Background(), nil, nil)
	assert.Error(t, err)
}
