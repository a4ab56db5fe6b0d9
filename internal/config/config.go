// =============================================================================
// ASYCUDA Export - Configuration Module
// =============================================================================
//
// This module loads the application configuration and the per-shop mapping
// configurations.
//
// CONFIGURATION FILES:
//   1. Main Config (config.yaml): directories, formats, storage, ledger,
//      sequencer, notifications and HTTP settings
//   2. Mapping Configs (mappings/*.yaml): how one shop's sales report is
//      turned into a declaration (columns, matching, header defaults, parties)
//
// LOADING ORDER:
//   read YAML -> apply defaults -> apply ASYCUDA_* environment overrides ->
//   validate struct tags
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is shared by every config type; validator caches struct metadata.
var validate = validator.New()

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is scanned for sales reports (.csv, .xlsx).
	// Default: "./input"
	InputDir string `yaml:"input_dir" validate:"required"`

	// OutputDir receives the generated artifacts when storage is local.
	// Default: "./output"
	OutputDir string `yaml:"output_dir" validate:"required"`

	// InputArchiveDir receives sales reports after fully successful runs.
	// Default: "./input_archive"
	InputArchiveDir string `yaml:"input_archive_dir" validate:"required"`

	// MappingsDir holds the mapping configurations, one YAML file per shop.
	// Default: "./mappings"
	MappingsDir string `yaml:"mappings_dir" validate:"required"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogLevel: "debug", "info", "warn", "error". Default: "info"
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// LogFormat: "text" or "json". Default: "text"
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputFileFormat names artifacts, without extension.
	// Placeholders:
	//   {registration} - Registration number of the declaration
	//   {uuid}         - A random UUID
	//   {timestamp}    - Current timestamp (YYYYMMDD_HHMMSS)
	//   {date}         - Current date (YYYYMMDD)
	//   {mapping}      - Mapping code
	// Default: "{registration}"
	OutputFileFormat string `yaml:"output_file_format" validate:"required"`

	// Formats lists the artifacts written per declaration.
	// Default: [xml, txt, xlsx, html]
	Formats []string `yaml:"formats" validate:"min=1,dive,oneof=xml txt xlsx html"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// MaxConcurrency is the number of reports processed at once. Default: 4
	MaxConcurrency int `yaml:"max_concurrency" validate:"gte=1"`

	// ContinueOnError keeps processing other reports after one fails.
	ContinueOnError bool `yaml:"continue_on_error"`

	// =========================================================================
	// BACKENDS
	// =========================================================================

	Catalog   CatalogConfig   `yaml:"catalog"`
	Storage   StorageConfig   `yaml:"storage"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Sequencer SequencerConfig `yaml:"sequencer"`
	Notify    NotifyConfig    `yaml:"notify"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// CatalogConfig points at the reference data file.
type CatalogConfig struct {
	// Path is a CSV, XLSX or YAML reference file merged over the builtin
	// code tables. Empty means builtin tables only.
	Path string `yaml:"path"`

	// Watch reloads the catalog when the file changes (serve only).
	Watch bool `yaml:"watch"`
}

// StorageConfig selects where artifacts are written.
type StorageConfig struct {
	// Type is "local" or "s3". Default: "local"
	Type string `yaml:"type" validate:"oneof=local s3"`

	// LocalBaseDir defaults to the output directory.
	LocalBaseDir string `yaml:"local_base_dir"`

	S3Bucket    string `yaml:"s3_bucket" validate:"required_if=Type s3"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Prefix    string `yaml:"s3_prefix"`
}

// LedgerConfig selects the declaration ledger database.
type LedgerConfig struct {
	// Driver is "none", "sqlite" or "postgres". Default: "none"
	Driver string `yaml:"driver" validate:"oneof=none sqlite postgres"`

	// DSN is a file path for sqlite or a connection URL for postgres.
	DSN string `yaml:"dsn" validate:"required_unless=Driver none"`
}

// SequencerConfig selects where registration sequence numbers come from.
type SequencerConfig struct {
	// Type is "memory", "ledger" or "redis". Default: "memory"
	Type string `yaml:"type" validate:"oneof=memory ledger redis"`

	RedisAddr string `yaml:"redis_addr" validate:"required_if=Type redis"`
}

// NotifyConfig configures export notifications. No brokers disables them.
type NotifyConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// =============================================================================
// LOADING
// =============================================================================

// LoadMainConfig loads the main configuration from a YAML file. An empty path
// yields the defaults, still subject to environment overrides.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be read or parsed, or fails validation.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	var cfg MainConfig

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyMainConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyMainConfigDefaults sets default values for any unset option.
func applyMainConfigDefaults(cfg *MainConfig) {
	if cfg.InputDir == "" {
		cfg.InputDir = "./input"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./output"
	}
	if cfg.InputArchiveDir == "" {
		cfg.InputArchiveDir = "./input_archive"
	}
	if cfg.MappingsDir == "" {
		cfg.MappingsDir = "./mappings"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.OutputFileFormat == "" {
		cfg.OutputFileFormat = "{registration}"
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []string{"xml", "txt", "xlsx", "html"}
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.S3Region == "" {
		cfg.Storage.S3Region = "us-east-1"
	}
	if cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = "none"
	}
	if cfg.Sequencer.Type == "" {
		cfg.Sequencer.Type = "memory"
	}
	if cfg.Notify.Topic == "" {
		cfg.Notify.Topic = "asycuda.declarations"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
}

// Validate checks struct tags and the rules that span sections.
func (c *MainConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return describe(err)
	}
	if c.Sequencer.Type == "ledger" && c.Ledger.Driver == "none" {
		return fmt.Errorf("sequencer type ledger needs a ledger driver")
	}
	return nil
}

// EnsureDirectories creates the working directories if they are missing.
func (c *MainConfig) EnsureDirectories() error {
	for _, dir := range []string{c.InputDir, c.OutputDir, c.InputArchiveDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// describe flattens validator errors into one readable message using the
// namespaced field names, e.g. "MainConfig.Storage.S3Bucket".
func describe(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
