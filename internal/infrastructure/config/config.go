// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	apiKey := cfg.TextGen.APIKey
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Sources       SourcesConfig       `yaml:"sources"`
	TextGen       TextGenConfig       `yaml:"textgen"`
	Cache         CacheConfig         `yaml:"cache"`
	Storage       StorageConfig       `yaml:"storage"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// SourcesConfig points at the transaction feed and the per-domain record
// feeds. Records maps a domain name (retail, warehouse, ...) to a JSON file.
type SourcesConfig struct {
	TransactionsPath string            `yaml:"transactions_path"`
	CategoriesPath   string            `yaml:"categories_path"`
	UpdatesPath      string            `yaml:"updates_path"`
	Records          map[string]string `yaml:"records"`
}

// TextGenConfig holds the classification service configuration
type TextGenConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// CacheConfig holds classification cache settings
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

// StorageConfig holds run-history database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// PipelineConfig holds batching and concurrency settings
type PipelineConfig struct {
	BatchSize     int `yaml:"batch_size"`
	MaxConcurrent int `yaml:"max_concurrent"`
	LookbackDays  int `yaml:"lookback_days"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${OPENAI_API_KEY})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	return &Config{
		Sources: SourcesConfig{
			TransactionsPath: getEnv("LEDGERMATCH_TRANSACTIONS", "transactions.json"),
			CategoriesPath:   getEnv("LEDGERMATCH_CATEGORIES", "categories.json"),
			UpdatesPath:      getEnv("LEDGERMATCH_UPDATES", "updates.jsonl"),
		},
		TextGen: TextGenConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o"),
			Temperature: 0.1,
			MaxTokens:   getEnvInt("OPENAI_MAX_TOKENS", 4096),
		},
		Cache: CacheConfig{
			Dir: getEnv("LEDGERMATCH_CACHE_DIR", ".ledgermatch/cache"),
		},
		Storage: StorageConfig{
			DatabasePath: getEnv("LEDGERMATCH_DB_PATH", "ledgermatch.db"),
		},
		Pipeline: PipelineConfig{
			BatchSize:     getEnvInt("LEDGERMATCH_BATCH_SIZE", 10),
			MaxConcurrent: getEnvInt("LEDGERMATCH_MAX_CONCURRENT", 3),
			LookbackDays:  getEnvInt("LEDGERMATCH_LOOKBACK_DAYS", 14),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

// GetAPIKey retrieves an API key from config first, then tries multiple environment variable names
// Usage: GetAPIKey(cfg.TextGen.APIKey, "OPENAI_API_KEY", "OPENAI_APIKEY")
func (c *Config) GetAPIKey(configValue string, envVarNames ...string) string {
	if configValue != "" {
		return configValue
	}

	for _, envVar := range envVarNames {
		if val := os.Getenv(envVar); val != "" {
			return val
		}
	}

	return ""
}
