package config

import (
	"os"
	"strconv"
	"strings"
)

// applyEnvOverrides lets deployments override file settings with ASYCUDA_*
// variables. Secrets such as the S3 keys and the ledger DSN are usually set
// this way rather than in the file.
func applyEnvOverrides(cfg *MainConfig) {
	cfg.InputDir = getEnvOrDefault("ASYCUDA_INPUT_DIR", cfg.InputDir)
	cfg.OutputDir = getEnvOrDefault("ASYCUDA_OUTPUT_DIR", cfg.OutputDir)
	cfg.MappingsDir = getEnvOrDefault("ASYCUDA_MAPPINGS_DIR", cfg.MappingsDir)
	cfg.LogLevel = getEnvOrDefault("ASYCUDA_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("ASYCUDA_LOG_FORMAT", cfg.LogFormat)
	cfg.MaxConcurrency = getIntOrDefault("ASYCUDA_MAX_CONCURRENCY", cfg.MaxConcurrency)

	cfg.Catalog.Path = getEnvOrDefault("ASYCUDA_CATALOG_PATH", cfg.Catalog.Path)
	cfg.Catalog.Watch = getBoolOrDefault("ASYCUDA_CATALOG_WATCH", cfg.Catalog.Watch)

	cfg.Storage.Type = getEnvOrDefault("ASYCUDA_STORAGE_TYPE", cfg.Storage.Type)
	cfg.Storage.S3Bucket = getEnvOrDefault("ASYCUDA_S3_BUCKET", cfg.Storage.S3Bucket)
	cfg.Storage.S3Region = getEnvOrDefault("ASYCUDA_S3_REGION", cfg.Storage.S3Region)
	cfg.Storage.S3Endpoint = getEnvOrDefault("ASYCUDA_S3_ENDPOINT", cfg.Storage.S3Endpoint)
	cfg.Storage.S3AccessKey = getEnvOrDefault("ASYCUDA_S3_ACCESS_KEY", cfg.Storage.S3AccessKey)
	cfg.Storage.S3SecretKey = getEnvOrDefault("ASYCUDA_S3_SECRET_KEY", cfg.Storage.S3SecretKey)

	cfg.Ledger.Driver = getEnvOrDefault("ASYCUDA_LEDGER_DRIVER", cfg.Ledger.Driver)
	cfg.Ledger.DSN = getEnvOrDefault("ASYCUDA_LEDGER_DSN", cfg.Ledger.DSN)

	cfg.Sequencer.Type = getEnvOrDefault("ASYCUDA_SEQUENCER", cfg.Sequencer.Type)
	cfg.Sequencer.RedisAddr = getEnvOrDefault("ASYCUDA_REDIS_ADDR", cfg.Sequencer.RedisAddr)

	if brokers := os.Getenv("ASYCUDA_KAFKA_BROKERS"); brokers != "" {
		cfg.Notify.Brokers = parseCommaSeparated(brokers)
	}
	cfg.Notify.Topic = getEnvOrDefault("ASYCUDA_KAFKA_TOPIC", cfg.Notify.Topic)

	cfg.HTTP.Addr = getEnvOrDefault("ASYCUDA_HTTP_ADDR", cfg.HTTP.Addr)
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntOrDefault returns the integer value of an environment variable or a default value
func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolOrDefault returns the boolean value of an environment variable or a default value
func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// parseCommaSeparated splits a comma-separated string into trimmed parts
func parseCommaSeparated(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
