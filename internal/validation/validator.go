// =============================================================================
// ASYCUDA Export - Validation Engine
// =============================================================================
//
// Validates a candidate declaration before any artifact is produced.
//
// VALIDATION STRATEGY:
//   Every rule runs; nothing short-circuits. Rules are grouped in four
//   categories:
//   1. Structural: required fields, code patterns, maximum lengths, the
//      delimited separator and control characters inside free text
//   2. Range: positive weights, values and quantities, gross >= net
//   3. Cross-field: dense item numbering, minor-unit and weight precision,
//      code tables, registration uniqueness within a batch
//   4. Referential: HS codes unknown to the catalog (warning only)
//
// ERROR HANDLING:
//   - Diagnostics are collected, not raised
//   - Each diagnostic carries a field path, severity, rule id and category
//   - Errors make the result invalid, warnings do not
//
// =============================================================================

package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/asycuda-export/internal/catalog"
	"github.com/ginjaninja78/asycuda-export/internal/declaration"
)

// =============================================================================
// DIAGNOSTICS
// =============================================================================

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Category groups rules.
type Category string

const (
	CategoryStructural  Category = "structural"
	CategoryRange       Category = "range"
	CategoryCrossField  Category = "cross_field"
	CategoryReferential Category = "referential"
)

// Rule ids.
const (
	RuleRequired              = "structural/required"
	RulePattern               = "structural/pattern"
	RuleMaxLength             = "structural/max_length"
	RuleSeparator             = "structural/separator"
	RuleControlCharacter      = "structural/control_character"
	RuleNoItems               = "structural/items"
	RulePositive              = "range/positive"
	RuleGrossNet              = "range/gross_net"
	RuleItemNumber            = "cross_field/item_number"
	RuleMinorUnit             = "cross_field/minor_unit"
	RuleWeightPrecision       = "cross_field/weight_precision"
	RuleCodeTable             = "cross_field/code_table"
	RuleDuplicateRegistration = "cross_field/duplicate_registration"
	RuleUnknownHSCode         = "referential/hs_code"
)

// Diagnostic is a single validation finding.
type Diagnostic struct {
	// Path addresses the field, e.g. "items[2].gross_weight".
	Path     string   `json:"path"`
	Severity Severity `json:"severity"`
	Rule     string   `json:"rule"`
	Category Category `json:"category"`
	Message  string   `json:"message"`

	// Value is the offending value, if any.
	Value string `json:"value,omitempty"`
}

// Error implements the error interface.
func (d Diagnostic) Error() string {
	if d.Value == "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", strings.ToUpper(string(d.Severity)), d.Path, d.Message, d.Rule)
	}
	return fmt.Sprintf("[%s] %s: %s (%s, value: '%s')", strings.ToUpper(string(d.Severity)), d.Path, d.Message, d.Rule, d.Value)
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// Result is the outcome of validating one declaration. It is built fresh for
// each call.
type Result struct {
	// Valid is true if there are no errors.
	Valid bool `json:"valid"`

	// Diagnostics are in rule order: header, entities, items, cross-field.
	Diagnostics []Diagnostic `json:"diagnostics"`

	ErrorCount   int `json:"error_count"`
	WarningCount int `json:"warning_count"`
}

// Errors returns the error diagnostics.
func (r *Result) Errors() []Diagnostic {
	return r.filter(SeverityError)
}

// Warnings returns the warning diagnostics.
func (r *Result) Warnings() []Diagnostic {
	return r.filter(SeverityWarning)
}

func (r *Result) filter(s Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == s {
			out = append(out, d)
		}
	}
	return out
}

// Has reports whether the result contains a diagnostic for rule at path.
func (r *Result) Has(rule, path string) bool {
	for _, d := range r.Diagnostics {
		if d.Rule == rule && d.Path == path {
			return true
		}
	}
	return false
}

// =============================================================================
// VALIDATOR
// =============================================================================

var (
	registrationPattern = regexp.MustCompile(`^[A-Z0-9]{1,20}$`)
	typePattern         = regexp.MustCompile(`^EX[1-3]$`)
	officePattern       = regexp.MustCompile(`^LC[A-Z]{2,3}$`)
	gpcPattern          = regexp.MustCompile(`^\d{4}$`)
	epcPattern          = regexp.MustCompile(`^\d{3}$`)
	countryPattern      = regexp.MustCompile(`^[A-Z]{2}$`)
	currencyPattern     = regexp.MustCompile(`^[A-Z]{3}$`)
	hsPattern           = regexp.MustCompile(`^\d{6,10}$`)
)

// Maximum lengths, in characters.
const (
	MaxDescription         = 280
	MaxCommercialReference = 35
	MaxEntityName          = 70
	MaxMarks               = 140
	MaxPreviousDocument    = 50
)

// Options contains options for validation.
type Options struct {
	// TreatWarningsAsErrors makes any warning invalidate the result.
	// Default: false
	TreatWarningsAsErrors bool
}

// Validator checks declarations against a catalog. The catalog may be nil,
// in which case code-table and referential rules are skipped.
type Validator struct {
	catalog *catalog.Catalog
	options Options
	structs *validator.Validate
}

// NewValidator creates a Validator using cat for code-table lookups.
func NewValidator(cat *catalog.Catalog) *Validator {
	return NewValidatorWithOptions(cat, Options{})
}

// NewValidatorWithOptions creates a Validator with custom options.
func NewValidatorWithOptions(cat *catalog.Catalog, options Options) *Validator {
	structs := validator.New()
	structs.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{catalog: cat, options: options, structs: structs}
}

// Validate runs every rule against d with a default Validator.
func Validate(d *declaration.Declaration, cat *catalog.Catalog) *Result {
	return NewValidator(cat).Validate(d)
}

// Validate runs every rule against d.
func (v *Validator) Validate(d *declaration.Declaration) *Result {
	c := &collector{}
	if d == nil {
		c.add(CategoryStructural, SeverityError, RuleRequired, "declaration", "", "declaration is missing")
		return c.result(v.options)
	}

	v.validateHeader(c, d)
	v.validateEntity(c, "exporter", d.Exporter)
	v.validateEntity(c, "declarant", d.Declarant)

	if len(d.Items) == 0 {
		c.add(CategoryStructural, SeverityError, RuleNoItems, "items", "", "declaration has no items")
	}
	for i := range d.Items {
		v.validateItem(c, d, i)
	}

	v.validateSeparators(c, d)
	return c.result(v.options)
}

// ValidateBatch validates each declaration and additionally flags
// registration numbers used more than once in the batch. Results are in
// input order.
func (v *Validator) ValidateBatch(ds []*declaration.Declaration) []*Result {
	results := make([]*Result, len(ds))
	first := make(map[string]int, len(ds))
	for i, d := range ds {
		results[i] = v.Validate(d)
		if d == nil || d.RegistrationNumber == "" {
			continue
		}
		if j, seen := first[d.RegistrationNumber]; seen {
			c := &collector{diags: results[i].Diagnostics}
			c.add(CategoryCrossField, SeverityError, RuleDuplicateRegistration, "registration_number", d.RegistrationNumber,
				fmt.Sprintf("registration number already used by declaration %d in this batch", j+1))
			results[i] = c.result(v.options)
			continue
		}
		first[d.RegistrationNumber] = i
	}
	return results
}

// =============================================================================
// RULES
// =============================================================================

func (v *Validator) validateHeader(c *collector, d *declaration.Declaration) {
	c.pattern("registration_number", d.RegistrationNumber, registrationPattern, "alphanumeric, at most 20 characters")
	c.pattern("type", string(d.Type), typePattern, "EX1, EX2 or EX3")
	c.pattern("customs_office", d.CustomsOffice, officePattern, "an LC office code")
	if d.Date.IsZero() {
		c.add(CategoryStructural, SeverityError, RuleRequired, "date", "", "date is required")
	}
	c.pattern("general_procedure_code", d.GeneralProcedureCode, gpcPattern, "4 digits")
	c.pattern("extended_procedure_code", d.ExtendedProcedureCode, epcPattern, "3 digits")
	c.pattern("destination_country", d.DestinationCountry, countryPattern, "an ISO alpha-2 code")
	c.required("transport_mode", d.TransportMode)
	c.pattern("entry_exit_office", d.EntryExitOffice, officePattern, "an LC office code")
	c.pattern("currency", d.Currency, currencyPattern, "an ISO 4217 code")
	if c.required("commercial_reference", d.CommercialReference) {
		c.maxLength("commercial_reference", d.CommercialReference, MaxCommercialReference)
	}

	if !d.ExchangeRate.IsPositive() {
		c.add(CategoryRange, SeverityError, RulePositive, "exchange_rate", d.ExchangeRate.String(), "exchange rate must be greater than zero")
	}

	if v.catalog == nil {
		return
	}
	v.codeTable(c, "customs_office", d.CustomsOffice, v.catalog.HasOffice)
	v.codeTable(c, "entry_exit_office", d.EntryExitOffice, v.catalog.HasOffice)
	v.codeTable(c, "transport_mode", d.TransportMode, v.catalog.HasTransportMode)
	v.codeTable(c, "currency", d.Currency, v.catalog.HasCurrency)
}

// validateEntity applies the Entity struct tags.
func (v *Validator) validateEntity(c *collector, prefix string, e declaration.Entity) {
	err := v.structs.Struct(e)
	if err == nil {
		return
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		c.add(CategoryStructural, SeverityError, RuleRequired, prefix, "", err.Error())
		return
	}
	for _, fe := range verrs {
		path := prefix + "." + fe.Field()
		value := fmt.Sprint(fe.Value())
		switch fe.Tag() {
		case "required":
			c.add(CategoryStructural, SeverityError, RuleRequired, path, "", fe.Field()+" is required")
		case "max":
			c.add(CategoryStructural, SeverityError, RuleMaxLength, path, value,
				fmt.Sprintf("value exceeds maximum length of %s characters", fe.Param()))
		default:
			c.add(CategoryStructural, SeverityError, RulePattern, path, value,
				fmt.Sprintf("value failed %s=%s", fe.Tag(), fe.Param()))
		}
	}
}

func (v *Validator) validateItem(c *collector, d *declaration.Declaration, i int) {
	item := d.Items[i]
	p := declaration.ItemPath(i) + "."

	if item.Number != i+1 {
		c.add(CategoryCrossField, SeverityError, RuleItemNumber, p+"number", fmt.Sprint(item.Number),
			fmt.Sprintf("item numbers must run 1..n without gaps, expected %d", i+1))
	}

	hsOK := c.pattern(p+"hs_code", item.HSCode, hsPattern, "6 to 10 digits")
	if c.required(p+"description", item.Description) {
		c.maxLength(p+"description", item.Description, MaxDescription)
	}
	c.pattern(p+"origin", item.Origin, countryPattern, "an ISO alpha-2 code")
	c.required(p+"statistical_unit", item.StatisticalUnit)
	c.required(p+"package_type", item.PackageType)
	c.maxLength(p+"marks_and_numbers", item.MarksAndNumbers, MaxMarks)
	c.maxLength(p+"previous_document", item.PreviousDocument, MaxPreviousDocument)

	c.weight(p+"gross_weight", item.GrossWeight)
	c.weight(p+"net_weight", item.NetWeight)
	c.positive(p+"quantity", item.Quantity)
	if c.positive(p+"customs_value", item.CustomsValue) {
		if rounded := declaration.RoundMoney(item.CustomsValue, d.Currency); !rounded.Equal(item.CustomsValue) {
			c.add(CategoryCrossField, SeverityError, RuleMinorUnit, p+"customs_value", item.CustomsValue.String(),
				fmt.Sprintf("value has more than %d decimal places for %s", declaration.MinorUnits(d.Currency), d.Currency))
		}
	}
	if item.PackageCount < 1 {
		c.add(CategoryRange, SeverityError, RulePositive, p+"package_count", fmt.Sprint(item.PackageCount),
			"package count must be at least 1")
	}
	if item.GrossWeight.LessThan(item.NetWeight) {
		c.add(CategoryRange, SeverityError, RuleGrossNet, p+"gross_weight", item.GrossWeight.String(),
			fmt.Sprintf("gross weight %s is less than net weight %s", item.GrossWeight, item.NetWeight))
	}

	if v.catalog == nil {
		return
	}
	v.codeTable(c, p+"statistical_unit", item.StatisticalUnit, v.catalog.HasUnit)
	v.codeTable(c, p+"package_type", item.PackageType, v.catalog.HasPackageType)
	if hsOK && !v.catalog.HasHSCode(item.HSCode) {
		c.add(CategoryReferential, SeverityWarning, RuleUnknownHSCode, p+"hs_code", item.HSCode,
			"HS code is not in the reference catalog")
	}
}

// validateSeparators flags the delimited separator and control characters in
// any populated field.
func (v *Validator) validateSeparators(c *collector, d *declaration.Declaration) {
	for _, f := range d.Fields() {
		if strings.Contains(f.Value, declaration.Separator) {
			c.add(CategoryStructural, SeverityError, RuleSeparator, f.Path, f.Value,
				fmt.Sprintf("value contains the reserved separator %q", declaration.Separator))
		}
		if declaration.HasControl(f.Value) {
			c.add(CategoryStructural, SeverityError, RuleControlCharacter, f.Path, fmt.Sprintf("%q", f.Value),
				"value contains a control character such as a tab or line break")
		}
	}
}

func (v *Validator) codeTable(c *collector, path, code string, known func(string) bool) {
	if code == "" || known(code) {
		return
	}
	c.add(CategoryCrossField, SeverityError, RuleCodeTable, path, code, "code is not in the reference code table")
}

// =============================================================================
// COLLECTOR
// =============================================================================

type collector struct {
	diags []Diagnostic
}

func (c *collector) add(cat Category, sev Severity, rule, path, value, msg string) {
	c.diags = append(c.diags, Diagnostic{
		Path:     path,
		Severity: sev,
		Rule:     rule,
		Category: cat,
		Message:  msg,
		Value:    value,
	})
}

// required reports whether value is present, recording an error if not.
func (c *collector) required(path, value string) bool {
	if strings.TrimSpace(value) == "" {
		c.add(CategoryStructural, SeverityError, RuleRequired, path, "", "value is required")
		return false
	}
	return true
}

// pattern checks a required value against re and reports whether it passed.
func (c *collector) pattern(path, value string, re *regexp.Regexp, want string) bool {
	if !c.required(path, value) {
		return false
	}
	if !re.MatchString(value) {
		c.add(CategoryStructural, SeverityError, RulePattern, path, value, "value must be "+want)
		return false
	}
	return true
}

func (c *collector) maxLength(path, value string, max int) {
	if n := utf8.RuneCountInString(value); n > max {
		c.add(CategoryStructural, SeverityError, RuleMaxLength, path, value,
			fmt.Sprintf("value exceeds maximum length of %d characters (actual: %d)", max, n))
	}
}

func (c *collector) positive(path string, v decimal.Decimal) bool {
	if !v.IsPositive() {
		c.add(CategoryRange, SeverityError, RulePositive, path, v.String(), "value must be greater than zero")
		return false
	}
	return true
}

// weight checks that v is positive and has at most gram precision.
func (c *collector) weight(path string, v decimal.Decimal) {
	if !c.positive(path, v) {
		return
	}
	if !declaration.WeightFits(v) {
		c.add(CategoryCrossField, SeverityError, RuleWeightPrecision, path, v.String(),
			fmt.Sprintf("weight has more than %d decimal places", declaration.WeightPlaces))
	}
}

func (c *collector) result(opts Options) *Result {
	r := &Result{Valid: true, Diagnostics: c.diags}
	if r.Diagnostics == nil {
		r.Diagnostics = []Diagnostic{}
	}
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			r.ErrorCount++
			r.Valid = false
			continue
		}
		r.WarningCount++
		if opts.TreatWarningsAsErrors {
			r.Valid = false
		}
	}
	return r
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatDiagnostics formats diagnostics for display or logging.
func FormatDiagnostics(diags []Diagnostic) string {
	if len(diags) == 0 {
		return "No validation errors."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Validation completed with %d diagnostic(s):\n\n", len(diags))
	for i, d := range diags {
		fmt.Fprintf(&b, "%d. %s\n", i+1, d.Error())
	}
	return b.String()
}
