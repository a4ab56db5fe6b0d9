package emitter

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/asycuda-export/internal/declaration"
)

// =============================================================================
// RECORD LAYOUT
// =============================================================================
//
//   H|registration|type|office|date|exporter x6|declarant x6|gpc|epc|
//     destination|transport|entry/exit|currency|rate|total packages|
//     commercial ref|valuation|delivery|loading|manifest|warehouse|signature
//   I|number|hs|description|origin|gross|net|unit|quantity|value|
//     package type|packages|marks|previous doc
//   T|item count|total packages|total customs value
//
// Optional fields are written as empty columns so every record of a kind has
// the same width.

const (
	recordHeader  = "H"
	recordItem    = "I"
	recordTrailer = "T"

	headerColumns  = 32
	itemColumns    = 14
	trailerColumns = 4
)

// Delimited emits the pipe-delimited text file.
type Delimited struct{}

func (Delimited) Format() string      { return "txt" }
func (Delimited) ContentType() string { return "text/plain; charset=utf-8" }
func (Delimited) Extension() string   { return ".txt" }

// Emit renders d as H, I and T records. It fails if any field contains the
// separator or a value the format cannot reproduce.
func (t Delimited) Emit(d *declaration.Declaration) ([]byte, error) {
	if err := emptyDeclaration(t.Format(), d); err != nil {
		return nil, err
	}
	if err := checkRoundTrip(t.Format(), d); err != nil {
		return nil, err
	}
	for _, f := range d.Fields() {
		if strings.Contains(f.Value, declaration.Separator) {
			return nil, &FormatEmissionError{
				Format: t.Format(),
				Field:  f.Path,
				Err:    fmt.Errorf("value contains the separator %q", declaration.Separator),
			}
		}
	}

	var buf bytes.Buffer
	w := newPipeWriter(&buf)

	header := []string{
		recordHeader,
		d.RegistrationNumber,
		string(d.Type),
		d.CustomsOffice,
		d.Date.Format(declaration.DateLayout),
	}
	header = append(header, entityColumns(d.Exporter)...)
	header = append(header, entityColumns(d.Declarant)...)
	header = append(header,
		d.GeneralProcedureCode,
		d.ExtendedProcedureCode,
		d.DestinationCountry,
		d.TransportMode,
		d.EntryExitOffice,
		d.Currency,
		d.ExchangeRate.String(),
		strconv.Itoa(d.TotalPackages()),
		d.CommercialReference,
		d.ValuationMethod,
		d.DeliveryTerms,
		d.PlaceOfLoading,
		d.ManifestReference,
		d.WarehouseIdentification,
		d.DeclarantSignature,
	)
	records := [][]string{header}

	for _, item := range d.Items {
		records = append(records, []string{
			recordItem,
			strconv.Itoa(item.Number),
			item.HSCode,
			item.Description,
			item.Origin,
			declaration.FormatWeight(item.GrossWeight),
			declaration.FormatWeight(item.NetWeight),
			item.StatisticalUnit,
			item.Quantity.String(),
			declaration.FormatMoney(item.CustomsValue, d.Currency),
			item.PackageType,
			strconv.Itoa(item.PackageCount),
			item.MarksAndNumbers,
			item.PreviousDocument,
		})
	}

	records = append(records, []string{
		recordTrailer,
		strconv.Itoa(len(d.Items)),
		strconv.Itoa(d.TotalPackages()),
		declaration.FormatMoney(d.TotalValue(), d.Currency),
	})

	if err := w.WriteAll(records); err != nil {
		return nil, &FormatEmissionError{Format: t.Format(), Err: fmt.Errorf("failed to write records: %w", err)}
	}
	return buf.Bytes(), nil
}

func entityColumns(e declaration.Entity) []string {
	return []string{e.TaxID, e.Name, e.AddressLine1, e.AddressLine2, e.City, e.Country}
}

func entityFrom(cols []string) declaration.Entity {
	return declaration.Entity{
		TaxID:        cols[0],
		Name:         cols[1],
		AddressLine1: cols[2],
		AddressLine2: cols[3],
		City:         cols[4],
		Country:      cols[5],
	}
}

func newPipeWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '|'
	return cw
}

// =============================================================================
// PARSE
// =============================================================================

// ParseDelimited reads a file produced by Delimited.Emit. The trailer must
// match the item count and the sums recomputed from the items.
func ParseDelimited(data []byte) (*declaration.Declaration, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = '|'
	r.FieldsPerRecord = -1

	var (
		d       *declaration.Declaration
		header  []string
		trailer []string
		line    int
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d: %w", line, err)
		}
		if trailer != nil {
			return nil, fmt.Errorf("record %d: data after trailer", line)
		}

		switch rec[0] {
		case recordHeader:
			if d != nil {
				return nil, fmt.Errorf("record %d: duplicate header", line)
			}
			if d, err = parseHeaderRecord(rec); err != nil {
				return nil, fmt.Errorf("record %d: %w", line, err)
			}
			header = rec
		case recordItem:
			if d == nil {
				return nil, fmt.Errorf("record %d: item before header", line)
			}
			item, err := parseItemRecord(rec)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", line, err)
			}
			d.Items = append(d.Items, item)
		case recordTrailer:
			if len(rec) != trailerColumns {
				return nil, fmt.Errorf("record %d: trailer has %d columns, want %d", line, len(rec), trailerColumns)
			}
			trailer = rec
		default:
			return nil, fmt.Errorf("record %d: unknown record type %q", line, rec[0])
		}
	}

	if d == nil {
		return nil, fmt.Errorf("missing header record")
	}
	if trailer == nil {
		return nil, fmt.Errorf("missing trailer record")
	}
	if err := checkTrailer(d, trailer); err != nil {
		return nil, err
	}
	if err := checkHeaderPackages(d, header); err != nil {
		return nil, err
	}
	return d, nil
}

func parseHeaderRecord(rec []string) (*declaration.Declaration, error) {
	if len(rec) != headerColumns {
		return nil, fmt.Errorf("header has %d columns, want %d", len(rec), headerColumns)
	}
	date, err := time.Parse(declaration.DateLayout, rec[4])
	if err != nil {
		return nil, fmt.Errorf("date: %w", err)
	}

	d := declaration.New(entityFrom(rec[5:11]), entityFrom(rec[11:17]))
	d.RegistrationNumber = rec[1]
	d.Type = declaration.Type(rec[2])
	d.CustomsOffice = rec[3]
	d.Date = date
	d.GeneralProcedureCode = rec[17]
	d.ExtendedProcedureCode = rec[18]
	d.DestinationCountry = rec[19]
	d.TransportMode = rec[20]
	d.EntryExitOffice = rec[21]
	d.Currency = rec[22]
	if d.ExchangeRate, err = decimal.NewFromString(rec[23]); err != nil {
		return nil, fmt.Errorf("exchange rate: invalid number %q", rec[23])
	}
	d.CommercialReference = rec[25]
	d.ValuationMethod = rec[26]
	d.DeliveryTerms = rec[27]
	d.PlaceOfLoading = rec[28]
	d.ManifestReference = rec[29]
	d.WarehouseIdentification = rec[30]
	d.DeclarantSignature = rec[31]
	return d, nil
}

func parseItemRecord(rec []string) (declaration.Item, error) {
	if len(rec) != itemColumns {
		return declaration.Item{}, fmt.Errorf("item has %d columns, want %d", len(rec), itemColumns)
	}
	number, err := strconv.Atoi(rec[1])
	if err != nil {
		return declaration.Item{}, fmt.Errorf("item number: invalid integer %q", rec[1])
	}
	packages, err := strconv.Atoi(rec[11])
	if err != nil {
		return declaration.Item{}, fmt.Errorf("package count: invalid integer %q", rec[11])
	}
	return parseItem(xmlItem{
		ItemNumber:       number,
		HSCode:           rec[2],
		Description:      rec[3],
		CountryOfOrigin:  rec[4],
		GrossWeight:      rec[5],
		NetWeight:        rec[6],
		StatisticalUnit:  rec[7],
		Quantity:         rec[8],
		CustomsValue:     rec[9],
		PackageType:      rec[10],
		PackageCount:     packages,
		MarksAndNumbers:  rec[12],
		PreviousDocument: rec[13],
	})
}

// headerPackagesColumn is the total package count in the H record.
const headerPackagesColumn = 24

// checkHeaderPackages compares the H record's total package count with the
// items.
func checkHeaderPackages(d *declaration.Declaration, header []string) error {
	packages, err := strconv.Atoi(header[headerPackagesColumn])
	if err != nil {
		return fmt.Errorf("header total packages: invalid integer %q", header[headerPackagesColumn])
	}
	if got := d.TotalPackages(); packages != got {
		return fmt.Errorf("header declares %d packages but items sum to %d", packages, got)
	}
	return nil
}

func checkTrailer(d *declaration.Declaration, rec []string) error {
	count, err := strconv.Atoi(rec[1])
	if err != nil {
		return fmt.Errorf("trailer item count: invalid integer %q", rec[1])
	}
	if count != len(d.Items) {
		return fmt.Errorf("trailer declares %d items but file has %d", count, len(d.Items))
	}
	packages, err := strconv.Atoi(rec[2])
	if err != nil {
		return fmt.Errorf("trailer packages: invalid integer %q", rec[2])
	}
	if got := d.TotalPackages(); packages != got {
		return fmt.Errorf("trailer declares %d packages but items sum to %d", packages, got)
	}
	total, err := decimal.NewFromString(rec[3])
	if err != nil {
		return fmt.Errorf("trailer value: invalid number %q", rec[3])
	}
	if sum := d.TotalValue(); !sum.Equal(total) {
		return fmt.Errorf("trailer declares value %s but items sum to %s", total, sum)
	}
	return nil
}
