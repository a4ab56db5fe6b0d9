// =============================================================================
// ASYCUDA Export - Reference Catalog
// =============================================================================
//
// The reference catalog holds the lookup tables used while building a
// declaration:
//   - product descriptions -> HS code, category, default unit, origin
//   - country names and aliases -> ISO alpha-2 codes
//   - customs office aliases -> office codes
//   - carrier aliases -> transport mode codes
//   - the code lists for units, package types, currencies and offices
//   - keyword rules used as a last-resort HS classification
//
// IMMUTABILITY:
//   A Catalog is built once by New and never changes afterwards. Reloading
//   produces a new Catalog that replaces the old one wholesale (see Store),
//   so builds running against the old instance are unaffected.
//
// =============================================================================

package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/ginjaninja78/asycuda-export/internal/textnorm"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// INPUT DATA
// =============================================================================

// Entry is one product in the catalog.
type Entry struct {
	// Key is the catalog description as written in the reference data.
	Key string `yaml:"key"`

	HSCode   string `yaml:"hs_code"`
	Category string `yaml:"category,omitempty"`
	Unit     string `yaml:"unit,omitempty"`

	// Origin is an optional ISO alpha-2 origin for the product.
	Origin string `yaml:"origin,omitempty"`

	// CNumber and Line identify the import entry the goods arrived on.
	// They feed the previous document reference of an item.
	CNumber string `yaml:"c_number,omitempty"`
	Line    int    `yaml:"line,omitempty"`

	normKey string
}

// NormKey returns the normalised catalog key.
func (e Entry) NormKey() string {
	return e.normKey
}

// KeywordRule maps a keyword or phrase to an HS code.
type KeywordRule struct {
	Keyword string `yaml:"keyword"`
	HSCode  string `yaml:"hs_code"`
}

// Data is the raw reference dataset a Catalog is built from.
type Data struct {
	Products []Entry `yaml:"products"`

	// Alias tables. Keys are free text, values are codes.
	Countries map[string]string `yaml:"countries"`
	Offices   map[string]string `yaml:"offices"`
	Carriers  map[string]string `yaml:"carriers"`

	// Code lists.
	HSCodes        []string `yaml:"hs_codes"`
	Units          []string `yaml:"units"`
	PackageTypes   []string `yaml:"package_types"`
	Currencies     []string `yaml:"currencies"`
	TransportModes []string `yaml:"transport_modes"`
	OfficeCodes    []string `yaml:"office_codes"`

	Keywords []KeywordRule `yaml:"keywords"`

	// DocumentOffices maps an HS chapter (two digits) to the customs office
	// that registered the original import.
	DocumentOffices map[string]string `yaml:"document_offices"`
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is an immutable reference catalog.
type Catalog struct {
	version string

	entries []Entry
	hsCodes map[string]struct{}

	countries []alias
	offices   []alias
	carriers  []alias

	units          map[string]struct{}
	packageTypes   map[string]struct{}
	currencies     map[string]struct{}
	transportModes map[string]struct{}
	officeCodes    map[string]struct{}
	countryCodes   map[string]struct{}

	keywords        []keyword
	documentOffices map[string]string
}

type alias struct {
	tokens []string
	code   string
}

type keyword struct {
	tokens []string
	hsCode string
}

// New builds a Catalog from data. The input is not retained.
func New(data Data) *Catalog {
	c := &Catalog{
		hsCodes:         make(map[string]struct{}),
		units:           toSet(data.Units),
		packageTypes:    toSet(data.PackageTypes),
		currencies:      toSet(data.Currencies),
		transportModes:  toSet(data.TransportModes),
		officeCodes:     toSet(data.OfficeCodes),
		countryCodes:    make(map[string]struct{}),
		documentOffices: make(map[string]string, len(data.DocumentOffices)),
	}

	c.entries = make([]Entry, 0, len(data.Products))
	for _, e := range data.Products {
		e.normKey = textnorm.Normalize(e.Key)
		if e.normKey == "" || e.HSCode == "" {
			continue
		}
		c.entries = append(c.entries, e)
		c.hsCodes[e.HSCode] = struct{}{}
	}
	for _, code := range data.HSCodes {
		c.hsCodes[code] = struct{}{}
	}

	c.countries = buildAliases(data.Countries)
	for _, code := range data.Countries {
		c.countryCodes[strings.ToUpper(code)] = struct{}{}
	}
	c.offices = buildAliases(data.Offices)
	for _, code := range data.Offices {
		c.officeCodes[strings.ToUpper(code)] = struct{}{}
	}
	c.carriers = buildAliases(data.Carriers)
	for _, code := range data.Carriers {
		c.transportModes[strings.ToUpper(code)] = struct{}{}
	}

	for _, rule := range data.Keywords {
		tokens := textnorm.Tokens(rule.Keyword)
		if len(tokens) == 0 || rule.HSCode == "" {
			continue
		}
		c.keywords = append(c.keywords, keyword{tokens: tokens, hsCode: rule.HSCode})
		c.hsCodes[rule.HSCode] = struct{}{}
	}
	// Longest phrase first so "cosmetic bag" wins over "bag".
	sort.SliceStable(c.keywords, func(i, j int) bool {
		return len(c.keywords[i].tokens) > len(c.keywords[j].tokens)
	})

	for chapter, office := range data.DocumentOffices {
		c.documentOffices[chapter] = office
	}

	c.version = computeVersion(data)
	return c
}

// Version returns a short content hash identifying this catalog.
func (c *Catalog) Version() string {
	return c.version
}

// Len returns the number of product entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entry returns a copy of the product entry at index i (insertion order).
func (c *Catalog) Entry(i int) Entry {
	return c.entries[i]
}

// HasHSCode reports whether code appears anywhere in the catalog.
func (c *Catalog) HasHSCode(code string) bool {
	_, ok := c.hsCodes[code]
	return ok
}

// HasUnit reports whether code is a known statistical unit.
func (c *Catalog) HasUnit(code string) bool { return has(c.units, code) }

// HasPackageType reports whether code is a known package type.
func (c *Catalog) HasPackageType(code string) bool { return has(c.packageTypes, code) }

// HasCurrency reports whether code is a known currency.
func (c *Catalog) HasCurrency(code string) bool { return has(c.currencies, code) }

// HasTransportMode reports whether code is a known transport mode.
func (c *Catalog) HasTransportMode(code string) bool { return has(c.transportModes, code) }

// HasOffice reports whether code is a known customs office.
func (c *Catalog) HasOffice(code string) bool { return has(c.officeCodes, code) }

// Country resolves a country name, alias or code to its alpha-2 code.
func (c *Catalog) Country(text string) (string, bool) {
	if code := strings.ToUpper(strings.TrimSpace(text)); len(code) == 2 {
		if _, ok := c.countryCodes[code]; ok {
			return code, true
		}
	}
	return lookupAlias(c.countries, text)
}

// Office resolves a port or office alias to an office code.
func (c *Catalog) Office(text string) (string, bool) {
	if code := strings.ToUpper(strings.TrimSpace(text)); has(c.officeCodes, code) {
		return code, true
	}
	return lookupAlias(c.offices, text)
}

// Carrier resolves a vessel or airline name to a transport mode code.
func (c *Catalog) Carrier(text string) (string, bool) {
	return lookupAlias(c.carriers, text)
}

// Keyword returns the HS code of the first keyword rule contained in text.
func (c *Catalog) Keyword(text string) (string, string, bool) {
	tokens := textnorm.Tokens(text)
	for _, k := range c.keywords {
		if containsPhrase(tokens, k.tokens) {
			return k.hsCode, strings.Join(k.tokens, " "), true
		}
	}
	return "", "", false
}

// DocumentOffice returns the office that registered imports of the HS chapter.
func (c *Catalog) DocumentOffice(hsCode string) (string, bool) {
	if len(hsCode) < 2 {
		return "", false
	}
	office, ok := c.documentOffices[hsCode[:2]]
	return office, ok
}

// Stats summarises the catalog contents.
type Stats struct {
	Version   string `json:"version"`
	Products  int    `json:"products"`
	HSCodes   int    `json:"hs_codes"`
	Keywords  int    `json:"keywords"`
	Countries int    `json:"countries"`
	Offices   int    `json:"offices"`
}

// Stats returns summary counts for logs and the CLI.
func (c *Catalog) Stats() Stats {
	return Stats{
		Version:   c.version,
		Products:  len(c.entries),
		HSCodes:   len(c.hsCodes),
		Keywords:  len(c.keywords),
		Countries: len(c.countryCodes),
		Offices:   len(c.officeCodes),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToUpper(strings.TrimSpace(v))] = struct{}{}
	}
	return set
}

func has(set map[string]struct{}, code string) bool {
	_, ok := set[strings.ToUpper(code)]
	return ok
}

// buildAliases normalises alias keys and orders them longest first, then
// alphabetically, so lookups are deterministic.
func buildAliases(table map[string]string) []alias {
	aliases := make([]alias, 0, len(table))
	for text, code := range table {
		tokens := textnorm.Tokens(text)
		if len(tokens) == 0 {
			continue
		}
		aliases = append(aliases, alias{tokens: tokens, code: strings.ToUpper(code)})
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i].tokens) != len(aliases[j].tokens) {
			return len(aliases[i].tokens) > len(aliases[j].tokens)
		}
		return strings.Join(aliases[i].tokens, " ") < strings.Join(aliases[j].tokens, " ")
	})
	return aliases
}

func lookupAlias(aliases []alias, text string) (string, bool) {
	tokens := textnorm.Tokens(text)
	if len(tokens) == 0 {
		return "", false
	}
	for _, a := range aliases {
		if containsPhrase(tokens, a.tokens) {
			return a.code, true
		}
	}
	return "", false
}

// containsPhrase reports whether phrase occurs as a contiguous token run.
func containsPhrase(tokens, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j := range phrase {
			if tokens[i+j] != phrase[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func computeVersion(data Data) string {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return "unknown"
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:6])
}
