// =============================================================================
// ASYCUDA Export - Declaration Model
// =============================================================================
//
// This package contains the declaration model shared by the builder, the
// validator and every emitter. It lives in its own package to avoid import
// cycles between those modules.
//
// OWNERSHIP:
//   A Declaration owns its Items and both Entities. Entities are copied in
//   when the declaration is built, so later changes to a caller-held Entity
//   never alter a declaration that already exists.
//
// DERIVED VALUES:
//   The total customs value and the total package count are computed from
//   the items on every call. They are never stored.
//
// =============================================================================

package declaration

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENUMERATIONS
// =============================================================================

// Type is the declaration type (box 1 of the export form).
type Type string

const (
	TypeEX1 Type = "EX1"
	TypeEX2 Type = "EX2"
	TypeEX3 Type = "EX3"
)

// Valid reports whether t is one of the three export declaration types.
func (t Type) Valid() bool {
	switch t {
	case TypeEX1, TypeEX2, TypeEX3:
		return true
	}
	return false
}

// DateLayout is the date format used by every artifact.
const DateLayout = "02/01/2006"

// DefaultMarks is used when a row carries no marks and numbers.
const DefaultMarks = "NO MARKS"

// Separator delimits fields in the delimited artifact. No field value may
// contain it.
const Separator = "|"

// =============================================================================
// ENTITY
// =============================================================================

// Entity is an exporter or a declarant.
type Entity struct {
	// TaxID is the trader's tax identification number.
	TaxID string `json:"tax_id" yaml:"tax_id" validate:"required,max=20"`

	Name         string `json:"name" yaml:"name" validate:"required,max=70"`
	AddressLine1 string `json:"address_line1" yaml:"address_line1" validate:"required"`
	AddressLine2 string `json:"address_line2,omitempty" yaml:"address_line2"`
	City         string `json:"city" yaml:"city"`

	// Country is an ISO 3166-1 alpha-2 code.
	Country string `json:"country" yaml:"country" validate:"omitempty,len=2,uppercase"`
}

// =============================================================================
// ITEM
// =============================================================================

// Item is one line of a declaration.
type Item struct {
	// Number is the 1-based, dense item number.
	Number int `json:"number"`

	HSCode      string `json:"hs_code"`
	Description string `json:"description"`

	// Origin is the ISO alpha-2 country of origin.
	Origin string `json:"origin"`

	// GrossWeight and NetWeight are in kilograms.
	GrossWeight decimal.Decimal `json:"gross_weight"`
	NetWeight   decimal.Decimal `json:"net_weight"`

	StatisticalUnit string          `json:"statistical_unit"`
	Quantity        decimal.Decimal `json:"quantity"`

	// CustomsValue is denominated in the declaration currency and is already
	// rounded to that currency's minor unit.
	CustomsValue decimal.Decimal `json:"customs_value"`

	PackageType  string `json:"package_type"`
	PackageCount int    `json:"package_count"`

	MarksAndNumbers string `json:"marks_and_numbers"`

	// PreviousDocument is optional.
	PreviousDocument string `json:"previous_document,omitempty"`
}

// =============================================================================
// DECLARATION
// =============================================================================

// Declaration is a complete export declaration.
type Declaration struct {
	RegistrationNumber string    `json:"registration_number"`
	Type               Type      `json:"type"`
	CustomsOffice      string    `json:"customs_office"`
	Date               time.Time `json:"date"`

	GeneralProcedureCode  string `json:"general_procedure_code"`
	ExtendedProcedureCode string `json:"extended_procedure_code"`

	DestinationCountry string `json:"destination_country"`
	TransportMode      string `json:"transport_mode"`
	EntryExitOffice    string `json:"entry_exit_office"`

	Currency     string          `json:"currency"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`

	CommercialReference string `json:"commercial_reference"`

	// Optional header fields.
	ValuationMethod         string `json:"valuation_method,omitempty"`
	DeliveryTerms           string `json:"delivery_terms,omitempty"`
	PlaceOfLoading          string `json:"place_of_loading,omitempty"`
	ManifestReference       string `json:"manifest_reference,omitempty"`
	WarehouseIdentification string `json:"warehouse_identification,omitempty"`
	DeclarantSignature      string `json:"declarant_signature,omitempty"`

	Exporter  Entity `json:"exporter"`
	Declarant Entity `json:"declarant"`

	Items []Item `json:"items"`
}

// New returns an empty declaration holding copies of the two entities.
func New(exporter, declarant Entity) *Declaration {
	return &Declaration{
		Exporter:  exporter,
		Declarant: declarant,
	}
}

// AddItem appends a copy of item, numbering it after the current last item.
func (d *Declaration) AddItem(item Item) {
	item.Number = len(d.Items) + 1
	d.Items = append(d.Items, item)
}

// TotalValue returns the sum of the item customs values.
func (d *Declaration) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, item := range d.Items {
		total = total.Add(item.CustomsValue)
	}
	return total
}

// TotalPackages returns the sum of the item package counts.
func (d *Declaration) TotalPackages() int {
	total := 0
	for _, item := range d.Items {
		total += item.PackageCount
	}
	return total
}

// TotalGrossWeight returns the sum of item gross weights.
func (d *Declaration) TotalGrossWeight() decimal.Decimal {
	total := decimal.Zero
	for _, item := range d.Items {
		total = total.Add(item.GrossWeight)
	}
	return total
}

// TotalNetWeight returns the sum of item net weights.
func (d *Declaration) TotalNetWeight() decimal.Decimal {
	total := decimal.Zero
	for _, item := range d.Items {
		total = total.Add(item.NetWeight)
	}
	return total
}

// Clone returns a deep copy of the declaration.
func (d *Declaration) Clone() *Declaration {
	if d == nil {
		return nil
	}
	c := *d
	c.Items = make([]Item, len(d.Items))
	copy(c.Items, d.Items)
	return &c
}

// =============================================================================
// CURRENCY PRECISION
// =============================================================================

// minorUnits lists ISO 4217 currencies whose minor unit is not two digits.
var minorUnits = map[string]int32{
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
}

// MinorUnits returns the number of decimal places of the currency's minor unit.
func MinorUnits(currency string) int32 {
	if digits, ok := minorUnits[currency]; ok {
		return digits
	}
	return 2
}

// RoundMoney rounds v half-up to the currency's minor unit.
func RoundMoney(v decimal.Decimal, currency string) decimal.Decimal {
	return v.Round(MinorUnits(currency))
}

// FormatMoney renders v with exactly the currency's minor-unit digits.
func FormatMoney(v decimal.Decimal, currency string) string {
	return v.StringFixed(MinorUnits(currency))
}

// WeightPlaces is the precision of weights in kilograms (grams).
const WeightPlaces = 3

// FormatWeight renders a weight in kilograms with gram precision.
func FormatWeight(v decimal.Decimal) string {
	return v.StringFixed(WeightPlaces)
}

// WeightFits reports whether v has no more than WeightPlaces decimals, so
// FormatWeight renders it without rounding.
func WeightFits(v decimal.Decimal) bool {
	return v.Equal(v.Round(WeightPlaces))
}

// HasControl reports whether s contains a control character. Tabs and line
// breaks count: neither artifact format carries them through unchanged.
func HasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}
