// Package config holds runtime configuration for a claimload run.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for a claimload run.
type Config struct {
	DSN            string
	FilePath       string
	LogFormat      string // "text" or "json"
	BatchSize      int    // claims per migration batch
	FlushThreshold int    // distinct claims buffered before an aggregation flush
	OutDir         string // run logs and segregation buckets

	Catalogs CatalogPaths `yaml:"catalogs"`
}

// CatalogPaths locates the reference files the code matcher preloads.
type CatalogPaths struct {
	Drugs     string `yaml:"drugs"`
	Services  string `yaml:"services"`
	Providers string `yaml:"providers"`
}

// yamlConfig is the on-disk YAML structure.
type yamlConfig struct {
	Catalogs CatalogPaths `yaml:"catalogs"`
}

// LoadFromFile reads a YAML config file and merges its values into Config.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if yc.Catalogs.Drugs != "" {
		c.Catalogs.Drugs = yc.Catalogs.Drugs
	}
	if yc.Catalogs.Services != "" {
		c.Catalogs.Services = yc.Catalogs.Services
	}
	if yc.Catalogs.Providers != "" {
		c.Catalogs.Providers = yc.Catalogs.Providers
	}
	return nil
}

// LoadEnv fills unset fields from the environment: DATABASE_URL for the DSN
// and BATCH_SIZE for the batch size.
func (c *Config) LoadEnv() error {
	if c.DSN == "" {
		c.DSN = os.Getenv("DATABASE_URL")
	}
	if c.BatchSize == 0 {
		if v := os.Getenv("BATCH_SIZE"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid BATCH_SIZE %q", v)
			}
			c.BatchSize = n
		}
	}
	return nil
}

// Validate checks required fields and returns an error if the config is
// invalid.
func (c *Config) Validate() error {
	if c.FilePath == "" {
		return fmt.Errorf("--file is required")
	}
	if _, err := os.Stat(c.FilePath); err != nil {
		return fmt.Errorf("file not accessible: %w", err)
	}
	return nil
}

// ValidateWithDSN checks both file and DSN fields.
func (c *Config) ValidateWithDSN() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DSN == "" {
		return fmt.Errorf("--dsn or DATABASE_URL is required")
	}
	return nil
}

// ValidateCatalogs checks that the matcher's required catalog files are
// configured and readable. The provider registry is optional.
func (c *Config) ValidateCatalogs() error {
	if c.Catalogs.Drugs == "" || c.Catalogs.Services == "" {
		return fmt.Errorf("drug and service catalog paths are required (--config)")
	}
	for _, path := range []string{c.Catalogs.Drugs, c.Catalogs.Services} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("catalog not accessible: %w", err)
		}
	}
	if c.Catalogs.Providers != "" {
		if _, err := os.Stat(c.Catalogs.Providers); err != nil {
			return fmt.Errorf("provider registry not accessible: %w", err)
		}
	}
	return nil
}
