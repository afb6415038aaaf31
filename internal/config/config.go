// Package config loads dupescan settings from YAML and builds the logger.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/ivoronin/dupescan/internal/hasher"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Database        string    `yaml:"database"`
	CacheFile       string    `yaml:"cache_file"`
	Hash            string    `yaml:"hash"`
	Workers         int       `yaml:"workers"`
	MinSize         string    `yaml:"min_size"` // e.g. "1", "4KiB", "1MB"
	ExcludePatterns []string  `yaml:"exclude_patterns"`
	Listen          string    `yaml:"listen"`
	NoProgress      bool      `yaml:"no_progress"`
	Log             LogConfig `yaml:"log"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR, CRITICAL
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file"`   // empty for stderr
}

// MemoryDatabase keeps the index in memory for the lifetime of the process.
const MemoryDatabase = ":memory:"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: MemoryDatabase,
		Hash:     string(hasher.DefaultAlgorithm),
		Workers:  runtime.NumCPU(),
		MinSize:  "0",
		Listen:   ":8080",
		Log: LogConfig{
			Level:  "WARN",
			Format: "text",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	var errs []error

	if c.Database == "" {
		errs = append(errs, errors.New("database must not be empty"))
	}
	if _, err := hasher.ParseAlgorithm(c.Hash); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if _, err := ParseSize(c.MinSize); err != nil {
		errs = append(errs, fmt.Errorf("min_size: %w", err))
	}
	if err := ValidateGlobPatterns(c.ExcludePatterns); err != nil {
		errs = append(errs, fmt.Errorf("exclude_patterns: %w", err))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// MinSizeBytes returns MinSize in bytes. Call after Validate.
func (c *Config) MinSizeBytes() int64 {
	n, _ := ParseSize(c.MinSize)
	return n
}

// Algorithm returns the configured digest. Call after Validate.
func (c *Config) Algorithm() hasher.Algorithm {
	algo, _ := hasher.ParseAlgorithm(c.Hash)
	return algo
}

// ParseSize parses a human-readable size string into bytes.
// Supports formats: "100", "1K", "1MB", "1GiB", etc. Empty means zero.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if bytes > math.MaxInt64 {
		return 0, fmt.Errorf("size %q too large", s)
	}
	return int64(bytes), nil
}

// ValidateGlobPatterns checks that all patterns are valid filepath.Match patterns.
func ValidateGlobPatterns(patterns []string) error {
	for _, pattern := range patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("pattern %q: %w", pattern, err)
		}
	}
	return nil
}
