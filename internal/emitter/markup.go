package emitter

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/asycuda-export/internal/declaration"
)

// =============================================================================
// XML DOCUMENT STRUCTURE
// =============================================================================
//
//   <AsycudaDeclaration version="1.0">
//     <Header>...</Header>
//     <Exporter>...</Exporter>
//     <Declarant>...</Declarant>
//     <DeclarationDetails>...</DeclarationDetails>   <!-- totals derived -->
//     <Items>
//       <Item>...</Item>
//     </Items>
//   </AsycudaDeclaration>

type xmlDocument struct {
	XMLName   xml.Name   `xml:"AsycudaDeclaration"`
	Version   string     `xml:"version,attr"`
	Header    xmlHeader  `xml:"Header"`
	Exporter  xmlEntity  `xml:"Exporter"`
	Declarant xmlEntity  `xml:"Declarant"`
	Details   xmlDetails `xml:"DeclarationDetails"`
	Items     []xmlItem  `xml:"Items>Item"`
}

type xmlHeader struct {
	RegistrationNumber string `xml:"RegistrationNumber"`
	DeclarationType    string `xml:"DeclarationType"`
	CustomsOffice      string `xml:"CustomsOffice"`
	Date               string `xml:"Date"`
}

type xmlEntity struct {
	ID           string `xml:"ID"`
	Name         string `xml:"Name"`
	AddressLine1 string `xml:"AddressLine1"`
	AddressLine2 string `xml:"AddressLine2,omitempty"`
	City         string `xml:"City"`
	Country      string `xml:"Country"`
}

type xmlDetails struct {
	GeneralProcedureCode    string `xml:"GeneralProcedureCode"`
	ExtendedProcedureCode   string `xml:"ExtendedProcedureCode"`
	CountryOfDestination    string `xml:"CountryOfDestination"`
	ModeOfTransport         string `xml:"ModeOfTransport"`
	OfficeOfEntryExit       string `xml:"OfficeOfEntryExit"`
	CurrencyCode            string `xml:"CurrencyCode"`
	ExchangeRate            string `xml:"ExchangeRate"`
	TotalPackages           int    `xml:"TotalPackages"`
	TotalCustomsValue       string `xml:"TotalCustomsValue"`
	CommercialReference     string `xml:"CommercialReference"`
	ValuationMethod         string `xml:"ValuationMethod,omitempty"`
	DeliveryTerms           string `xml:"DeliveryTerms,omitempty"`
	PlaceOfLoading          string `xml:"PlaceOfLoading,omitempty"`
	ManifestReference       string `xml:"ManifestReference,omitempty"`
	WarehouseIdentification string `xml:"WarehouseIdentification,omitempty"`
	DeclarantSignature      string `xml:"DeclarantSignature,omitempty"`
}

type xmlItem struct {
	ItemNumber       int    `xml:"ItemNumber"`
	HSCode           string `xml:"HSCode"`
	Description      string `xml:"Description"`
	CountryOfOrigin  string `xml:"CountryOfOrigin"`
	GrossWeight      string `xml:"GrossWeight"`
	NetWeight        string `xml:"NetWeight"`
	StatisticalUnit  string `xml:"StatisticalUnit"`
	Quantity         string `xml:"Quantity"`
	CustomsValue     string `xml:"CustomsValue"`
	PackageType      string `xml:"PackageType"`
	PackageCount     int    `xml:"PackageCount"`
	MarksAndNumbers  string `xml:"MarksAndNumbers"`
	PreviousDocument string `xml:"PreviousDocument,omitempty"`
}

// =============================================================================
// EMIT
// =============================================================================

// Markup emits the ASYCUDA XML document.
type Markup struct{}

func (Markup) Format() string      { return "xml" }
func (Markup) ContentType() string { return "application/xml" }
func (Markup) Extension() string   { return ".xml" }

// Emit renders d as indented UTF-8 XML.
func (m Markup) Emit(d *declaration.Declaration) ([]byte, error) {
	if err := emptyDeclaration(m.Format(), d); err != nil {
		return nil, err
	}
	if err := checkRoundTrip(m.Format(), d); err != nil {
		return nil, err
	}

	doc := xmlDocument{
		Version: "1.0",
		Header: xmlHeader{
			RegistrationNumber: d.RegistrationNumber,
			DeclarationType:    string(d.Type),
			CustomsOffice:      d.CustomsOffice,
			Date:               d.Date.Format(declaration.DateLayout),
		},
		Exporter:  toXMLEntity(d.Exporter),
		Declarant: toXMLEntity(d.Declarant),
		Details: xmlDetails{
			GeneralProcedureCode:    d.GeneralProcedureCode,
			ExtendedProcedureCode:   d.ExtendedProcedureCode,
			CountryOfDestination:    d.DestinationCountry,
			ModeOfTransport:         d.TransportMode,
			OfficeOfEntryExit:       d.EntryExitOffice,
			CurrencyCode:            d.Currency,
			ExchangeRate:            d.ExchangeRate.String(),
			TotalPackages:           d.TotalPackages(),
			TotalCustomsValue:       declaration.FormatMoney(d.TotalValue(), d.Currency),
			CommercialReference:     d.CommercialReference,
			ValuationMethod:         d.ValuationMethod,
			DeliveryTerms:           d.DeliveryTerms,
			PlaceOfLoading:          d.PlaceOfLoading,
			ManifestReference:       d.ManifestReference,
			WarehouseIdentification: d.WarehouseIdentification,
			DeclarantSignature:      d.DeclarantSignature,
		},
	}
	for _, item := range d.Items {
		doc.Items = append(doc.Items, xmlItem{
			ItemNumber:       item.Number,
			HSCode:           item.HSCode,
			Description:      item.Description,
			CountryOfOrigin:  item.Origin,
			GrossWeight:      declaration.FormatWeight(item.GrossWeight),
			NetWeight:        declaration.FormatWeight(item.NetWeight),
			StatisticalUnit:  item.StatisticalUnit,
			Quantity:         item.Quantity.String(),
			CustomsValue:     declaration.FormatMoney(item.CustomsValue, d.Currency),
			PackageType:      item.PackageType,
			PackageCount:     item.PackageCount,
			MarksAndNumbers:  item.MarksAndNumbers,
			PreviousDocument: item.PreviousDocument,
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, &FormatEmissionError{Format: m.Format(), Err: fmt.Errorf("failed to marshal XML: %w", err)}
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func toXMLEntity(e declaration.Entity) xmlEntity {
	return xmlEntity{
		ID:           e.TaxID,
		Name:         e.Name,
		AddressLine1: e.AddressLine1,
		AddressLine2: e.AddressLine2,
		City:         e.City,
		Country:      e.Country,
	}
}

func fromXMLEntity(e xmlEntity) declaration.Entity {
	return declaration.Entity{
		TaxID:        e.ID,
		Name:         e.Name,
		AddressLine1: e.AddressLine1,
		AddressLine2: e.AddressLine2,
		City:         e.City,
		Country:      e.Country,
	}
}

// =============================================================================
// PARSE
// =============================================================================

// ParseMarkup reads a document produced by Markup.Emit. The stored totals
// must equal the sums recomputed from the items.
func ParseMarkup(data []byte) (*declaration.Declaration, error) {
	var doc xmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}

	date, err := time.Parse(declaration.DateLayout, doc.Header.Date)
	if err != nil {
		return nil, fmt.Errorf("Header/Date: %w", err)
	}
	rate, err := decimal.NewFromString(doc.Details.ExchangeRate)
	if err != nil {
		return nil, fmt.Errorf("DeclarationDetails/ExchangeRate: %w", err)
	}

	d := declaration.New(fromXMLEntity(doc.Exporter), fromXMLEntity(doc.Declarant))
	d.RegistrationNumber = doc.Header.RegistrationNumber
	d.Type = declaration.Type(doc.Header.DeclarationType)
	d.CustomsOffice = doc.Header.CustomsOffice
	d.Date = date
	d.GeneralProcedureCode = doc.Details.GeneralProcedureCode
	d.ExtendedProcedureCode = doc.Details.ExtendedProcedureCode
	d.DestinationCountry = doc.Details.CountryOfDestination
	d.TransportMode = doc.Details.ModeOfTransport
	d.EntryExitOffice = doc.Details.OfficeOfEntryExit
	d.Currency = doc.Details.CurrencyCode
	d.ExchangeRate = rate
	d.CommercialReference = doc.Details.CommercialReference
	d.ValuationMethod = doc.Details.ValuationMethod
	d.DeliveryTerms = doc.Details.DeliveryTerms
	d.PlaceOfLoading = doc.Details.PlaceOfLoading
	d.ManifestReference = doc.Details.ManifestReference
	d.WarehouseIdentification = doc.Details.WarehouseIdentification
	d.DeclarantSignature = doc.Details.DeclarantSignature

	for i, x := range doc.Items {
		item, err := parseItem(x)
		if err != nil {
			return nil, fmt.Errorf("Items/Item[%d]: %w", i+1, err)
		}
		d.Items = append(d.Items, item)
	}

	if got := d.TotalPackages(); got != doc.Details.TotalPackages {
		return nil, fmt.Errorf("TotalPackages is %d but items sum to %d", doc.Details.TotalPackages, got)
	}
	total, err := decimal.NewFromString(doc.Details.TotalCustomsValue)
	if err != nil {
		return nil, fmt.Errorf("DeclarationDetails/TotalCustomsValue: %w", err)
	}
	if sum := d.TotalValue(); !sum.Equal(total) {
		return nil, fmt.Errorf("TotalCustomsValue is %s but items sum to %s", total, sum)
	}
	return d, nil
}

func parseItem(x xmlItem) (declaration.Item, error) {
	item := declaration.Item{
		Number:           x.ItemNumber,
		HSCode:           x.HSCode,
		Description:      x.Description,
		Origin:           x.CountryOfOrigin,
		StatisticalUnit:  x.StatisticalUnit,
		PackageType:      x.PackageType,
		PackageCount:     x.PackageCount,
		MarksAndNumbers:  x.MarksAndNumbers,
		PreviousDocument: x.PreviousDocument,
	}
	var err error
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"GrossWeight", x.GrossWeight, &item.GrossWeight},
		{"NetWeight", x.NetWeight, &item.NetWeight},
		{"Quantity", x.Quantity, &item.Quantity},
		{"CustomsValue", x.CustomsValue, &item.CustomsValue},
	} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return item, fmt.Errorf("%s: invalid number %s", f.name, strconv.Quote(f.raw))
		}
	}
	return item, nil
}
