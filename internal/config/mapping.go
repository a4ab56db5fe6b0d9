package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/asycuda-export/internal/declaration"
	"github.com/ginjaninja78/asycuda-export/internal/estimator"
	"github.com/ginjaninja78/asycuda-export/internal/salesreport"
	"github.com/ginjaninja78/asycuda-export/internal/transform"
)

// =============================================================================
// MAPPING CONFIGURATION STRUCTURE
// =============================================================================

// MappingConfig describes how one shop's sales reports become declarations.
// Each YAML file in the mappings directory holds one MappingConfig.
type MappingConfig struct {
	// =========================================================================
	// IDENTIFICATION
	// =========================================================================

	// Name is used in logs and error messages.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Code is a short identifier, available as {mapping} in output names.
	Code string `yaml:"code" json:"code"`

	// FileMatchingPatterns are glob patterns matched against report file
	// names, e.g. "dutyfree_*.csv". The first mapping with a match is used.
	FileMatchingPatterns []string `yaml:"file_matching_patterns" json:"file_matching_patterns"`

	// =========================================================================
	// INPUT
	// =========================================================================

	CSVSettings salesreport.Settings `yaml:"csv_settings" json:"csv_settings"`
	Columns     salesreport.Columns  `yaml:"columns" json:"columns"`

	// TransformationRules clean raw values before mapping.
	TransformationRules []transform.Rule `yaml:"transformation_rules" json:"transformation_rules" validate:"dive"`

	// =========================================================================
	// MAPPING
	// =========================================================================

	Matching Matching `yaml:"matching" json:"matching"`

	// Header holds the declaration header defaults.
	Header Header `yaml:"declaration" json:"declaration"`

	Exporter  declaration.Entity `yaml:"exporter" json:"exporter"`
	Declarant declaration.Entity `yaml:"declarant" json:"declarant"`

	// RegistrationPrefix starts every registration number. Together with
	// the 8-digit date and 6-digit sequence it must fit in 20 characters.
	RegistrationPrefix string `yaml:"registration_prefix" json:"registration_prefix" validate:"max=6"`

	// CommercialPrefix starts the commercial reference. Default: "REF"
	CommercialPrefix string `yaml:"commercial_prefix" json:"commercial_prefix"`

	Estimator estimator.Table `yaml:"estimator" json:"estimator"`

	// Workers bounds the row worker pool. Default: 4
	Workers int `yaml:"workers" json:"workers" validate:"gte=1"`
}

// Matching configures HS code resolution.
type Matching struct {
	// FuzzyThreshold is the minimum similarity (0-100). Default: 80
	FuzzyThreshold int `yaml:"fuzzy_threshold" json:"fuzzy_threshold" validate:"gte=0,lte=100"`

	// KeywordFallback classifies unmatched descriptions by keyword rules.
	KeywordFallback bool `yaml:"keyword_fallback" json:"keyword_fallback"`

	// DefaultHSCode is used when nothing else matches. Empty means the row
	// is rejected instead.
	DefaultHSCode string `yaml:"default_hs_code" json:"default_hs_code" validate:"omitempty,numeric,min=6,max=10"`

	// DefaultOrigin is the country of origin when neither the row nor the
	// catalog gives one. Default: "US"
	DefaultOrigin string `yaml:"default_origin" json:"default_origin" validate:"len=2,uppercase"`
}

// Header holds the declaration header defaults and the per-item defaults.
type Header struct {
	Type                    string  `yaml:"type" json:"type" validate:"oneof=EX1 EX2 EX3"`
	CustomsOffice           string  `yaml:"customs_office" json:"customs_office" validate:"required"`
	GeneralProcedureCode    string  `yaml:"general_procedure_code" json:"general_procedure_code" validate:"len=4,numeric"`
	ExtendedProcedureCode   string  `yaml:"extended_procedure_code" json:"extended_procedure_code" validate:"len=3,numeric"`
	DestinationCountry      string  `yaml:"destination_country" json:"destination_country" validate:"len=2"`
	TransportMode           string  `yaml:"transport_mode" json:"transport_mode" validate:"required"`
	EntryExitOffice         string  `yaml:"entry_exit_office" json:"entry_exit_office" validate:"required"`
	Currency                string  `yaml:"currency" json:"currency" validate:"len=3,uppercase"`
	ExchangeRate            float64 `yaml:"exchange_rate" json:"exchange_rate" validate:"gt=0"`
	ValuationMethod         string  `yaml:"valuation_method" json:"valuation_method"`
	DeliveryTerms           string  `yaml:"delivery_terms" json:"delivery_terms"`
	PlaceOfLoading          string  `yaml:"place_of_loading" json:"place_of_loading"`
	ManifestReference       string  `yaml:"manifest_reference" json:"manifest_reference"`
	WarehouseIdentification string  `yaml:"warehouse_identification" json:"warehouse_identification"`
	DeclarantSignature      string  `yaml:"declarant_signature" json:"declarant_signature"`

	// Item defaults.
	StatisticalUnit string `yaml:"statistical_unit" json:"statistical_unit" validate:"required"`
	PackageType     string `yaml:"package_type" json:"package_type" validate:"required"`
	MarksAndNumbers string `yaml:"marks_and_numbers" json:"marks_and_numbers"`

	// RowCurrency is assumed for rows without a currency column. When it
	// differs from Currency the row value is multiplied by ExchangeRate.
	RowCurrency string `yaml:"row_currency" json:"row_currency" validate:"omitempty,len=3,uppercase"`
}

// DefaultHeader returns the header defaults for exports from Saint Lucia.
func DefaultHeader() Header {
	return Header{
		Type:                  "EX3",
		CustomsOffice:         "LCVFP",
		GeneralProcedureCode:  "3071",
		ExtendedProcedureCode: "113",
		DestinationCountry:    "VC",
		TransportMode:         "VC",
		EntryExitOffice:       "LCHB",
		Currency:              "XCD",
		ExchangeRate:          1.0,
		ValuationMethod:       "1",
		DeliveryTerms:         "CIF",
		StatisticalUnit:       "NMB",
		PackageType:           "PE",
		MarksAndNumbers:       declaration.DefaultMarks,
	}
}

// DefaultMapping returns a complete mapping with every default applied.
func DefaultMapping() MappingConfig {
	m := MappingConfig{Name: "default"}
	ApplyMappingDefaults(&m)
	return m
}

// =============================================================================
// LOADING
// =============================================================================

// LoadMappingConfigs loads every *.yaml and *.yml file in dir. The result is
// sorted by file name so pattern matching is deterministic.
func LoadMappingConfigs(dir string) ([]*MappingConfig, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list mapping files: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list mapping files: %w", err)
	}
	files = append(files, ymlFiles...)
	sort.Strings(files)

	configs := make([]*MappingConfig, 0, len(files))
	for _, file := range files {
		m, err := LoadMappingConfig(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		configs = append(configs, m)
	}
	return configs, nil
}

// LoadMappingConfig loads and validates a single mapping file.
func LoadMappingConfig(path string) (*MappingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseMappingConfig(data, filepath.Base(path))
}

// ParseMappingConfig parses YAML mapping data. name is used when the file
// does not set one.
func ParseMappingConfig(data []byte, name string) (*MappingConfig, error) {
	var m MappingConfig
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse mapping: %w", err)
	}
	if m.Name == "" {
		m.Name = name
	}
	ApplyMappingDefaults(&m)
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mapping %s: %w", m.Name, err)
	}
	return &m, nil
}

// ApplyMappingDefaults fills every unset option.
func ApplyMappingDefaults(m *MappingConfig) {
	if m.CSVSettings.Delimiter == "" {
		m.CSVSettings.Delimiter = ","
	}
	if m.CSVSettings.HeaderRows == 0 {
		m.CSVSettings.HeaderRows = 1
	}

	def := salesreport.DefaultColumns()
	c := &m.Columns
	fill(&c.Description, def.Description)
	fill(&c.Quantity, def.Quantity)
	fill(&c.UnitPrice, def.UnitPrice)
	fill(&c.Currency, def.Currency)
	fill(&c.HSCode, def.HSCode)
	fill(&c.Origin, def.Origin)
	fill(&c.Barcode, def.Barcode)
	fill(&c.NetWeight, def.NetWeight)
	fill(&c.Vessel, def.Vessel)
	fill(&c.Port, def.Port)
	fill(&c.Destination, def.Destination)

	if m.Matching.FuzzyThreshold == 0 {
		m.Matching.FuzzyThreshold = 80
	}
	fill(&m.Matching.DefaultOrigin, "US")

	dh := DefaultHeader()
	h := &m.Header
	fill(&h.Type, dh.Type)
	fill(&h.CustomsOffice, dh.CustomsOffice)
	fill(&h.GeneralProcedureCode, dh.GeneralProcedureCode)
	fill(&h.ExtendedProcedureCode, dh.ExtendedProcedureCode)
	fill(&h.DestinationCountry, dh.DestinationCountry)
	fill(&h.TransportMode, dh.TransportMode)
	fill(&h.EntryExitOffice, dh.EntryExitOffice)
	fill(&h.Currency, dh.Currency)
	if h.ExchangeRate == 0 {
		h.ExchangeRate = dh.ExchangeRate
	}
	fill(&h.ValuationMethod, dh.ValuationMethod)
	fill(&h.DeliveryTerms, dh.DeliveryTerms)
	fill(&h.StatisticalUnit, dh.StatisticalUnit)
	fill(&h.PackageType, dh.PackageType)
	fill(&h.MarksAndNumbers, dh.MarksAndNumbers)
	fill(&h.RowCurrency, h.Currency)

	fill(&m.CommercialPrefix, "REF")
	if m.Workers == 0 {
		m.Workers = 4
	}
}

// Validate checks the mapping's struct tags.
func (m *MappingConfig) Validate() error {
	if err := validate.Struct(m); err != nil {
		return describe(err)
	}
	if _, err := transform.New(m.TransformationRules); err != nil {
		return err
	}
	if _, err := estimator.New(m.Estimator); err != nil {
		return err
	}
	return nil
}

// FindMapping returns the first mapping whose patterns match the base name
// of filePath, or nil.
func FindMapping(filePath string, mappings []*MappingConfig) *MappingConfig {
	fileName := filepath.Base(filePath)
	for _, m := range mappings {
		for _, pattern := range m.FileMatchingPatterns {
			matched, err := filepath.Match(pattern, fileName)
			if err != nil {
				continue
			}
			if matched {
				return m
			}
		}
	}
	return nil
}

func fill(field *string, def string) {
	if *field == "" {
		*field = def
	}
}
