package declaration

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Field is one populated declaration field, addressed by its path.
type Field struct {
	Path  string
	Label string
	Value string
}

// ItemPath returns the path prefix of the item at index i.
func ItemPath(i int) string {
	return fmt.Sprintf("items[%d]", i)
}

// HeaderFields returns every populated declaration-level field in form order.
// Empty optional fields are omitted.
func (d *Declaration) HeaderFields() []Field {
	var fields []Field
	add := func(path, label, value string) {
		if value != "" {
			fields = append(fields, Field{Path: path, Label: label, Value: value})
		}
	}

	add("registration_number", "Registration Number", d.RegistrationNumber)
	add("type", "Declaration Type", string(d.Type))
	add("customs_office", "Customs Office", d.CustomsOffice)
	if !d.Date.IsZero() {
		add("date", "Date", d.Date.Format(DateLayout))
	}
	add("general_procedure_code", "General Procedure Code", d.GeneralProcedureCode)
	add("extended_procedure_code", "Extended Procedure Code", d.ExtendedProcedureCode)
	add("destination_country", "Country of Destination", d.DestinationCountry)
	add("transport_mode", "Mode of Transport", d.TransportMode)
	add("entry_exit_office", "Office of Entry/Exit", d.EntryExitOffice)
	add("currency", "Currency Code", d.Currency)
	if !d.ExchangeRate.IsZero() {
		add("exchange_rate", "Exchange Rate", d.ExchangeRate.String())
	}
	add("commercial_reference", "Commercial Reference", d.CommercialReference)
	add("valuation_method", "Valuation Method", d.ValuationMethod)
	add("delivery_terms", "Delivery Terms", d.DeliveryTerms)
	add("place_of_loading", "Place of Loading", d.PlaceOfLoading)
	add("manifest_reference", "Manifest Reference", d.ManifestReference)
	add("warehouse_identification", "Warehouse Identification", d.WarehouseIdentification)
	add("declarant_signature", "Declarant Signature", d.DeclarantSignature)

	for _, e := range []struct {
		prefix, label string
		entity        Entity
	}{
		{"exporter", "Exporter", d.Exporter},
		{"declarant", "Declarant", d.Declarant},
	} {
		add(e.prefix+".tax_id", e.label+" ID", e.entity.TaxID)
		add(e.prefix+".name", e.label+" Name", e.entity.Name)
		add(e.prefix+".address_line1", e.label+" Address", e.entity.AddressLine1)
		add(e.prefix+".address_line2", e.label+" Address 2", e.entity.AddressLine2)
		add(e.prefix+".city", e.label+" City", e.entity.City)
		add(e.prefix+".country", e.label+" Country", e.entity.Country)
	}

	return fields
}

// ItemFields returns every populated field of the item at index i.
func (d *Declaration) ItemFields(i int) []Field {
	item := d.Items[i]
	prefix := ItemPath(i)
	var fields []Field
	add := func(name, label, value string) {
		if value != "" {
			fields = append(fields, Field{Path: prefix + "." + name, Label: label, Value: value})
		}
	}

	add("number", "Item #", strconv.Itoa(item.Number))
	add("hs_code", "HS Code", item.HSCode)
	add("description", "Description", item.Description)
	add("origin", "Origin", item.Origin)
	add("gross_weight", "Gross Weight", FormatWeight(item.GrossWeight))
	add("net_weight", "Net Weight", FormatWeight(item.NetWeight))
	add("statistical_unit", "Unit", item.StatisticalUnit)
	add("quantity", "Quantity", item.Quantity.String())
	add("customs_value", "Value", FormatMoney(item.CustomsValue, d.Currency))
	add("package_type", "Package Type", item.PackageType)
	add("package_count", "Packages", strconv.Itoa(item.PackageCount))
	add("marks_and_numbers", "Marks", item.MarksAndNumbers)
	add("previous_document", "Previous Doc", item.PreviousDocument)
	return fields
}

// Fields returns every populated field of the declaration: header fields
// first, then each item's fields in item order.
func (d *Declaration) Fields() []Field {
	fields := d.HeaderFields()
	for i := range d.Items {
		fields = append(fields, d.ItemFields(i)...)
	}
	return fields
}

// =============================================================================
// COMPARISON
// =============================================================================

// Diff returns the paths of all fields whose values differ between a and b.
// Decimal values are compared numerically, so 90 and 90.00 are equal.
func Diff(a, b *Declaration) []string {
	var paths []string
	str := func(path, x, y string) {
		if x != y {
			paths = append(paths, path)
		}
	}
	dec := func(path string, x, y decimal.Decimal) {
		if !x.Equal(y) {
			paths = append(paths, path)
		}
	}

	str("registration_number", a.RegistrationNumber, b.RegistrationNumber)
	str("type", string(a.Type), string(b.Type))
	str("customs_office", a.CustomsOffice, b.CustomsOffice)
	str("date", a.Date.Format(DateLayout), b.Date.Format(DateLayout))
	str("general_procedure_code", a.GeneralProcedureCode, b.GeneralProcedureCode)
	str("extended_procedure_code", a.ExtendedProcedureCode, b.ExtendedProcedureCode)
	str("destination_country", a.DestinationCountry, b.DestinationCountry)
	str("transport_mode", a.TransportMode, b.TransportMode)
	str("entry_exit_office", a.EntryExitOffice, b.EntryExitOffice)
	str("currency", a.Currency, b.Currency)
	dec("exchange_rate", a.ExchangeRate, b.ExchangeRate)
	str("commercial_reference", a.CommercialReference, b.CommercialReference)
	str("valuation_method", a.ValuationMethod, b.ValuationMethod)
	str("delivery_terms", a.DeliveryTerms, b.DeliveryTerms)
	str("place_of_loading", a.PlaceOfLoading, b.PlaceOfLoading)
	str("manifest_reference", a.ManifestReference, b.ManifestReference)
	str("warehouse_identification", a.WarehouseIdentification, b.WarehouseIdentification)
	str("declarant_signature", a.DeclarantSignature, b.DeclarantSignature)

	if a.Exporter != b.Exporter {
		paths = append(paths, "exporter")
	}
	if a.Declarant != b.Declarant {
		paths = append(paths, "declarant")
	}

	if len(a.Items) != len(b.Items) {
		return append(paths, "items")
	}
	for i := range a.Items {
		x, y := a.Items[i], b.Items[i]
		p := ItemPath(i) + "."
		if x.Number != y.Number {
			paths = append(paths, p+"number")
		}
		str(p+"hs_code", x.HSCode, y.HSCode)
		str(p+"description", x.Description, y.Description)
		str(p+"origin", x.Origin, y.Origin)
		dec(p+"gross_weight", x.GrossWeight, y.GrossWeight)
		dec(p+"net_weight", x.NetWeight, y.NetWeight)
		str(p+"statistical_unit", x.StatisticalUnit, y.StatisticalUnit)
		dec(p+"quantity", x.Quantity, y.Quantity)
		dec(p+"customs_value", x.CustomsValue, y.CustomsValue)
		str(p+"package_type", x.PackageType, y.PackageType)
		if x.PackageCount != y.PackageCount {
			paths = append(paths, p+"package_count")
		}
		str(p+"marks_and_numbers", x.MarksAndNumbers, y.MarksAndNumbers)
		str(p+"previous_document", x.PreviousDocument, y.PreviousDocument)
	}
	return paths
}

// Equal reports whether a and b carry the same field values.
func Equal(a, b *Declaration) bool {
	if a == nil || b == nil {
		return a == b
	}
	return len(Diff(a, b)) == 0
}
