// config.go - Configuration for the note-ledger daemon.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration.
type Config struct {
	// Asset definition
	AssetSymbol   string `json:"asset_symbol"`
	AssetDecimals uint8  `json:"asset_decimals"`

	// Demo scenario amounts
	IssueAmount       uint64 `json:"issue_amount"`
	FirstSplitAmount  uint64 `json:"first_split_amount"`
	SecondSplitAmount uint64 `json:"second_split_amount"`

	// File paths
	ChainPath string `json:"chain_path"`
	KeyDir    string `json:"key_dir"`

	// HTTP
	Port           int `json:"port"`
	TimeoutSeconds int `json:"timeout_seconds"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Rate limiting on /transfer
	RateLimitBurst  int `json:"rate_limit_burst"`
	RateLimitRefill int `json:"rate_limit_refill"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AssetSymbol:       "NOTE",
		AssetDecimals:     6,
		IssueAmount:       100,
		FirstSplitAmount:  30,
		SecondSplitAmount: 20,
		ChainPath:         "chain.json",
		KeyDir:            "keys",
		Port:              8080,
		TimeoutSeconds:    30,
		LogLevel:          "info",
		LogFile:           "",
		RateLimitBurst:    10,
		RateLimitRefill:   2,
	}
}

// LoadConfig loads the configuration from file, writing the defaults
// first if no file exists yet.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		return &config, nil
	}

	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}
	return config, nil
}

// SaveConfig writes the configuration to file.
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.AssetSymbol == "" || len(c.AssetSymbol) > 31 {
		return fmt.Errorf("asset_symbol must be 1..31 bytes")
	}
	if c.IssueAmount == 0 {
		return fmt.Errorf("issue_amount must be positive")
	}
	if c.FirstSplitAmount > c.IssueAmount-c.FirstSplitAmount {
		return fmt.Errorf("first_split_amount must not exceed the remaining change")
	}
	remainder := c.IssueAmount - c.FirstSplitAmount
	if c.SecondSplitAmount > remainder-c.SecondSplitAmount {
		return fmt.Errorf("second_split_amount must not exceed the remaining change")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	if c.RateLimitBurst <= 0 || c.RateLimitRefill <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	return nil
}
