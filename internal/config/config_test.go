package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMainConfig_Defaults(t *testing.T) {
	cfg, err := LoadMainConfig("")
	require.NoError(t, err)

	assert.Equal(t, "./input", cfg.InputDir)
	assert.Equal(t, "{registration}", cfg.OutputFileFormat)
	assert.Equal(t, []string{"xml", "txt", "xlsx", "html"}, cfg.Formats)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "none", cfg.Ledger.Driver)
	assert.Equal(t, "memory", cfg.Sequencer.Type)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadMainConfig_FileAndEnv(t *testing.T) {
	path := writeYAML(t, t.TempDir(), "config.yaml", `
input_dir: /data/in
formats: [xml, txt]
ledger:
  driver: sqlite
  dsn: ledger.db
sequencer:
  type: ledger
`)
	t.Setenv("ASYCUDA_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("ASYCUDA_LOG_LEVEL", "debug")

	cfg, err := LoadMainConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/in", cfg.InputDir)
	assert.Equal(t, []string{"xml", "txt"}, cfg.Formats)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Notify.Brokers)
	assert.Equal(t, "ledger.db", cfg.Ledger.DSN)
}

func TestLoadMainConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		msg     string
	}{
		{"unknown format", "formats: [pdf]", "Formats"},
		{"s3 without bucket", "storage:\n  type: s3", "S3Bucket"},
		{"sqlite without dsn", "ledger:\n  driver: sqlite", "DSN"},
		{"redis without addr", "sequencer:\n  type: redis", "RedisAddr"},
		{"ledger sequencer without ledger", "sequencer:\n  type: ledger", "ledger driver"},
		{"bad log level", "log_level: loud", "LogLevel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeYAML(t, t.TempDir(), "config.yaml", tt.content)
			_, err := LoadMainConfig(path)
			assert.ErrorContains(t, err, tt.msg)
		})
	}

	_, err := LoadMainConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := &MainConfig{
		InputDir:        filepath.Join(root, "in"),
		OutputDir:       filepath.Join(root, "out"),
		InputArchiveDir: filepath.Join(root, "archive"),
	}
	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, cfg.OutputDir)
	assert.DirExists(t, cfg.InputArchiveDir)
}

const partiesYAML = `
exporter:
  tax_id: "100200300"
  name: Duty Free Caribbean Ltd
  address_line1: Pointe Seraphine
  city: Castries
  country: LC
declarant:
  tax_id: "900800"
  name: Island Brokers
  address_line1: Jeremie Street
`

const dutyFreeMapping = `
name: Duty Free Castries
code: DFC
file_matching_patterns: ["dutyfree_*.csv", "df_*.xlsx"]
columns:
  description: Item
registration_prefix: LCDF
transformation_rules:
  - field: hs_code
    actions:
      - type: extract_digits
matching:
  fuzzy_threshold: 85
  keyword_fallback: true
estimator:
  packaging_factor: 1.1
` + partiesYAML

func TestLoadMappingConfigs(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "b_dutyfree.yaml", dutyFreeMapping)
	writeYAML(t, dir, "a_other.yml", "name: Other\nfile_matching_patterns: [\"other_*.csv\"]\n"+partiesYAML)

	mappings, err := LoadMappingConfigs(dir)
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, "Duty Free Castries", mappings[1].Name, "sorted by file name")

	m := mappings[1]
	assert.Equal(t, "Item", m.Columns.Description)
	assert.Equal(t, "number", m.Columns.Quantity, "unset columns take defaults")
	assert.Equal(t, 85, m.Matching.FuzzyThreshold)
	assert.True(t, m.Matching.KeywordFallback)
	assert.Equal(t, "US", m.Matching.DefaultOrigin)
	assert.Equal(t, "EX3", m.Header.Type)
	assert.Equal(t, "LCVFP", m.Header.CustomsOffice)
	assert.Equal(t, "XCD", m.Header.RowCurrency)
	assert.Equal(t, "REF", m.CommercialPrefix)
	assert.Equal(t, 4, m.Workers)
	assert.Equal(t, 1.1, m.Estimator.PackagingFactor)

	assert.Same(t, m, FindMapping("/in/dutyfree_2026-10-17.csv", mappings))
	assert.Same(t, mappings[0], FindMapping("other_1.csv", mappings))
	assert.Nil(t, FindMapping("unknown.csv", mappings))
}

func TestParseMappingConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		patch string
		msg   string
	}{
		{"threshold above 100", "\nmatching:\n  fuzzy_threshold: 150\n", "FuzzyThreshold"},
		{"bad declaration type", "\ndeclaration:\n  type: IM4\n", "Type"},
		{"prefix too long", "\nregistration_prefix: LCDUTYFREE\n", "RegistrationPrefix"},
		{"unknown action", "\ntransformation_rules:\n  - field: x\n    actions:\n      - type: explode\n", "unknown transformation type"},
		{"factor below one", "\nestimator:\n  packaging_factor: 0.5\n", "PackagingFactor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMappingConfig([]byte("name: Bad\n"+partiesYAML+tt.patch), "x.yaml")
			assert.ErrorContains(t, err, tt.msg)
		})
	}

	_, err := ParseMappingConfig([]byte("name: no parties\n"), "x.yaml")
	assert.ErrorContains(t, err, "Exporter.TaxID")
}
