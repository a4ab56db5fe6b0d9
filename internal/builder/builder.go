// =============================================================================
// ASYCUDA Export - Declaration Builder
// =============================================================================
//
// Maps sales-report rows onto a candidate declaration.
//
// PER ROW:
//   1. Apply the mapping's transformation rules
//   2. Parse quantity, unit price, currency and optional net weight
//   3. Resolve the HS code: row hint -> fuzzy match -> keyword rule ->
//      configured default
//   4. Resolve the country of origin: row -> catalog entry -> default
//   5. Estimate weights and packages
//   6. Compute the customs value in the declaration currency
//   7. Attach the previous document reference when the catalog has one
//
// Rows that fail are left out and reported in Result.RowErrors; the rest are
// numbered densely in row order. Rows are mapped by a bounded worker pool
// and written back by index, so the numbering never depends on scheduling.
//
// =============================================================================

package builder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/asycuda-export/internal/catalog"
	"github.com/ginjaninja78/asycuda-export/internal/config"
	"github.com/ginjaninja78/asycuda-export/internal/declaration"
	"github.com/ginjaninja78/asycuda-export/internal/estimator"
	"github.com/ginjaninja78/asycuda-export/internal/matcher"
	"github.com/ginjaninja78/asycuda-export/internal/reference"
	"github.com/ginjaninja78/asycuda-export/internal/salesreport"
	"github.com/ginjaninja78/asycuda-export/internal/transform"
)

// Match methods recorded per item.
const (
	MethodHint    = "hint"
	MethodFuzzy   = "fuzzy"
	MethodKeyword = "keyword"
	MethodDefault = "default"
)

// defaultDocumentOffice registers imports whose HS chapter has no office in
// the catalog.
const defaultDocumentOffice = "LCCAP"

// Builder maps rows for one mapping configuration. It is safe for
// concurrent use; each Build call works on its own data.
type Builder struct {
	cfg         *config.MappingConfig
	estimator   *estimator.Estimator
	transformer *transform.Transformer
	logger      *slog.Logger
}

// New prepares a Builder for cfg.
func New(cfg *config.MappingConfig, logger *slog.Logger) (*Builder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	est, err := estimator.New(cfg.Estimator)
	if err != nil {
		return nil, fmt.Errorf("failed to build estimator: %w", err)
	}
	tr, err := transform.New(cfg.TransformationRules)
	if err != nil {
		return nil, fmt.Errorf("failed to compile transformation rules: %w", err)
	}
	return &Builder{cfg: cfg, estimator: est, transformer: tr, logger: logger}, nil
}

// Params carries the per-build inputs that are not part of the mapping.
type Params struct {
	Exporter  declaration.Entity
	Declarant declaration.Entity

	// RunDate is the declaration date and the date in the registration number.
	RunDate time.Time

	// Sequence is the registration sequence drawn from a reference.Sequencer.
	Sequence int
}

// Result is the outcome of a build.
type Result struct {
	// Declaration is nil when no row could be mapped.
	Declaration *declaration.Declaration

	// RowErrors holds one *MappingError or *UnmatchedDescriptionError per
	// skipped row, in row order.
	RowErrors []error

	// Matches records how each item's HS code was found, by item index.
	Matches []ItemMatch

	// CatalogVersion is the version of the catalog the build used.
	CatalogVersion string
}

// ItemMatch records the HS code decision for one item.
type ItemMatch struct {
	Row    int    `json:"row"`
	Method string `json:"method"`
	Key    string `json:"key,omitempty"`
	Score  int    `json:"score"`
}

// Diagnostics returns the row errors in serialisable form.
func (r *Result) Diagnostics() []RowDiagnostic {
	out := make([]RowDiagnostic, 0, len(r.RowErrors))
	for _, err := range r.RowErrors {
		out = append(out, Diagnose(err))
	}
	return out
}

type rowResult struct {
	item  declaration.Item
	match ItemMatch
	err   error
}

// Build maps rows against cat. It returns an error only for failures that
// concern the whole declaration (bad registration data, cancellation);
// row failures are collected in the Result.
func (b *Builder) Build(ctx context.Context, rows []salesreport.Row, cat *catalog.Catalog, p Params) (*Result, error) {
	if cat == nil {
		return nil, fmt.Errorf("no catalog supplied")
	}
	if p.RunDate.IsZero() {
		p.RunDate = time.Now()
	}

	registration, err := reference.NextReference(b.cfg.RegistrationPrefix, p.RunDate, p.Sequence)
	if err != nil {
		return nil, fmt.Errorf("failed to generate registration number: %w", err)
	}

	results, err := b.mapRows(ctx, rows, cat, p.RunDate)
	if err != nil {
		return nil, err
	}

	res := &Result{CatalogVersion: cat.Version()}
	d := b.header(rows, cat, p, registration)
	for _, r := range results {
		if r.err != nil {
			res.RowErrors = append(res.RowErrors, r.err)
			b.logger.Warn("row skipped", "error", r.err)
			continue
		}
		d.AddItem(r.item)
		res.Matches = append(res.Matches, r.match)
	}
	if len(d.Items) > 0 {
		res.Declaration = d
	}

	b.logger.Info("declaration built",
		"registration", registration,
		"rows", len(rows),
		"items", len(d.Items),
		"skipped", len(res.RowErrors),
		"catalog_version", res.CatalogVersion,
	)
	return res, nil
}

// mapRows fans rows out to the worker pool and returns the results in row
// order.
func (b *Builder) mapRows(ctx context.Context, rows []salesreport.Row, cat *catalog.Catalog, runDate time.Time) ([]rowResult, error) {
	results := make([]rowResult, len(rows))

	workers := b.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(rows) {
		workers = len(rows)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = b.mapRow(rows[i], cat, runDate)
			}
		}()
	}

	var cancelled error
feed:
	for i := range rows {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return nil, fmt.Errorf("build cancelled: %w", cancelled)
	}
	return results, nil
}

// =============================================================================
// HEADER
// =============================================================================

func (b *Builder) header(rows []salesreport.Row, cat *catalog.Catalog, p Params, registration string) *declaration.Declaration {
	h := b.cfg.Header
	d := declaration.New(p.Exporter, p.Declarant)

	d.RegistrationNumber = registration
	d.Type = declaration.Type(h.Type)
	d.CustomsOffice = h.CustomsOffice
	d.Date = p.RunDate
	d.GeneralProcedureCode = h.GeneralProcedureCode
	d.ExtendedProcedureCode = h.ExtendedProcedureCode
	d.DestinationCountry = h.DestinationCountry
	d.TransportMode = h.TransportMode
	d.EntryExitOffice = h.EntryExitOffice
	d.Currency = h.Currency
	d.ExchangeRate = decimal.NewFromFloat(h.ExchangeRate)
	d.CommercialReference = reference.CommercialReference(b.cfg.CommercialPrefix, p.RunDate)
	d.ValuationMethod = h.ValuationMethod
	d.DeliveryTerms = h.DeliveryTerms
	d.PlaceOfLoading = h.PlaceOfLoading
	d.ManifestReference = h.ManifestReference
	d.WarehouseIdentification = h.WarehouseIdentification
	d.DeclarantSignature = h.DeclarantSignature

	// Travel details printed on the sales report override the defaults.
	if v := firstValue(rows, salesreport.FieldVessel); v != "" {
		d.TransportMode = MapTransport(cat, v, d.TransportMode)
	}
	if v := firstValue(rows, salesreport.FieldPort); v != "" {
		d.EntryExitOffice = MapPortToOffice(cat, v, d.EntryExitOffice)
	}
	if v := firstValue(rows, salesreport.FieldDestination); v != "" {
		d.DestinationCountry = MapPlaceToCountry(cat, v, d.DestinationCountry)
	}
	return d
}

func firstValue(rows []salesreport.Row, field string) string {
	for _, r := range rows {
		if v := r.Get(field); v != "" {
			return v
		}
	}
	return ""
}

// MapTransport maps a vessel or airline name to a transport code.
func MapTransport(cat *catalog.Catalog, vessel, def string) string {
	if code, ok := cat.Carrier(vessel); ok {
		return code
	}
	return def
}

// MapPortToOffice maps a departure port to a customs office code.
func MapPortToOffice(cat *catalog.Catalog, port, def string) string {
	if code, ok := cat.Office(port); ok {
		return code
	}
	return def
}

// MapPlaceToCountry maps a destination place to an ISO country code.
func MapPlaceToCountry(cat *catalog.Catalog, place, def string) string {
	if code, ok := cat.Country(place); ok {
		return code
	}
	return def
}

// =============================================================================
// ROWS
// =============================================================================

func (b *Builder) mapRow(row salesreport.Row, cat *catalog.Catalog, runDate time.Time) rowResult {
	fields := b.transformer.Apply(row.Fields)
	get := func(f string) string { return strings.TrimSpace(fields[f]) }
	fail := func(field string, err error) rowResult {
		return rowResult{err: &MappingError{Row: row.Number, Field: field, Err: err}}
	}

	description := get(salesreport.FieldDescription)
	if description == "" {
		return fail(salesreport.FieldDescription, fmt.Errorf("description is empty"))
	}

	quantity, err := parseAmount(get(salesreport.FieldQuantity))
	if err != nil {
		return fail(salesreport.FieldQuantity, err)
	}
	if !quantity.IsPositive() {
		return fail(salesreport.FieldQuantity, fmt.Errorf("quantity must be positive, got %s", quantity))
	}

	price, err := parseAmount(get(salesreport.FieldUnitPrice))
	if err != nil {
		return fail(salesreport.FieldUnitPrice, err)
	}
	if !price.IsPositive() {
		return fail(salesreport.FieldUnitPrice, fmt.Errorf("unit price must be positive, got %s", price))
	}

	currency := strings.ToUpper(get(salesreport.FieldCurrency))
	if currency == "" {
		currency = b.cfg.Header.RowCurrency
	}
	if len(currency) != 3 {
		return fail(salesreport.FieldCurrency, fmt.Errorf("invalid currency %q", currency))
	}

	var netHint decimal.Decimal
	if raw := get(salesreport.FieldNetWeight); raw != "" {
		netHint, err = parseAmount(raw)
		if err != nil {
			return fail(salesreport.FieldNetWeight, err)
		}
	}

	// HS code.
	hs, entry, match, ok := b.resolveHSCode(get(salesreport.FieldHSCode), description, cat)
	if !ok {
		ue := &UnmatchedDescriptionError{Row: row.Number, Description: description, BestScore: -1}
		if best := matcher.Match(description, cat, 0); len(best) > 0 {
			ue.BestScore, ue.BestKey = best[0].Score, best[0].Key
		}
		return rowResult{err: ue}
	}
	match.Row = row.Number
	b.logger.Debug("hs code resolved",
		"row", row.Number,
		"description", description,
		"hs_code", hs,
		"method", match.Method,
		"key", match.Key,
		"score", match.Score,
	)

	// Origin.
	origin := b.cfg.Matching.DefaultOrigin
	if entry != nil && entry.Origin != "" {
		origin = entry.Origin
	}
	if raw := get(salesreport.FieldOrigin); raw != "" {
		if code, ok := cat.Country(raw); ok {
			origin = code
		} else {
			b.logger.Debug("unknown origin, using fallback", "row", row.Number, "origin", raw, "fallback", origin)
		}
	}

	// Weights and packages.
	category := ""
	if entry != nil {
		category = entry.Category
	}
	if category == "" && len(hs) >= 4 {
		category = hs[:4]
	}
	est, err := b.estimator.Estimate(category, quantity, netHint)
	if err != nil {
		return fail(salesreport.FieldQuantity, err)
	}

	// Customs value.
	value := price.Mul(quantity)
	if currency != b.cfg.Header.Currency {
		value = value.Mul(decimal.NewFromFloat(b.cfg.Header.ExchangeRate))
	}
	value = declaration.RoundMoney(value, b.cfg.Header.Currency)
	if !value.IsPositive() {
		return fail(salesreport.FieldUnitPrice, fmt.Errorf("customs value rounds to zero"))
	}

	unit := b.cfg.Header.StatisticalUnit
	if entry != nil && entry.Unit != "" {
		unit = entry.Unit
	}

	item := declaration.Item{
		HSCode:          hs,
		Description:     description,
		Origin:          origin,
		GrossWeight:     est.Gross,
		NetWeight:       est.Net,
		StatisticalUnit: unit,
		Quantity:        quantity,
		CustomsValue:    value,
		PackageType:     b.cfg.Header.PackageType,
		PackageCount:    est.Packages,
		MarksAndNumbers: b.cfg.Header.MarksAndNumbers,
	}
	if entry != nil && entry.CNumber != "" {
		office, ok := cat.DocumentOffice(hs)
		if !ok {
			office = defaultDocumentOffice
		}
		item.PreviousDocument = reference.PreviousDocument(office, runDate.Year(), entry.CNumber, entry.Line)
	}

	return rowResult{item: item, match: match}
}

// resolveHSCode applies the resolution order. entry is the catalog entry
// behind a fuzzy match and nil otherwise.
func (b *Builder) resolveHSCode(hint, description string, cat *catalog.Catalog) (string, *catalog.Entry, ItemMatch, bool) {
	if code := digitsOnly(hint); len(code) >= 6 && len(code) <= 10 {
		return code, nil, ItemMatch{Method: MethodHint, Score: 100}, true
	}

	if best, ok := matcher.Best(description, cat, b.cfg.Matching.FuzzyThreshold); ok {
		entry := cat.Entry(best.Index)
		return best.HSCode, &entry, ItemMatch{Method: MethodFuzzy, Key: best.Key, Score: best.Score}, true
	}

	if b.cfg.Matching.KeywordFallback {
		if kw, ok := matcher.MatchKeyword(description, cat); ok {
			return kw.HSCode, nil, ItemMatch{Method: MethodKeyword, Key: kw.Key}, true
		}
	}

	if b.cfg.Matching.DefaultHSCode != "" {
		return b.cfg.Matching.DefaultHSCode, nil, ItemMatch{Method: MethodDefault}, true
	}
	return "", nil, ItemMatch{}, false
}

// parseAmount parses a decimal, tolerating a leading currency symbol and
// thousands separators ("$1,234.50").
func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, "$€£")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("value is empty")
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", raw)
	}
	return v, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
