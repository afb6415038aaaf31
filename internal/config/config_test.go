package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ivoronin/dupescan/internal/hasher"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// Section 1: Size Parsing
// =============================================================================

// TestParseSizeValid tests valid size strings.
// Note: humanize.ParseBytes uses SI units (decimal) for KB/MB/GB (1000-based)
// and IEC units (binary) for KiB/MiB/GiB (1024-based).
func TestParseSizeValid(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		// SI units (decimal, 1000-based)
		{"1k", 1000},
		{"1KB", 1000},
		{"1M", 1000000},
		{"1GB", 1000000000},
		{"1T", 1000000000000},

		// No suffix (bytes)
		{"1234", 1234},
		{"4097", 4097},
		{"0", 0},
		{"", 0},

		// Floating point
		{"1.5M", 1500000},
		{"0.5K", 500},

		// IEC suffixes (binary, 1024-based)
		{"1KiB", 1024},
		{"1MiB", 1048576},
		{"1TiB", 1099511627776},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if err != nil {
				t.Fatalf("ParseSize(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

// TestParseSizeInvalid tests malformed, negative and overflowing sizes.
func TestParseSizeInvalid(t *testing.T) {
	tests := []string{
		"invalid",
		"1.5.5",
		"--100",
		"-1",
		"-100M",
		"999999999999999999T",
		"99999999999999999999",
		"8EiB",
		"9223372036854775808",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			if _, err := ParseSize(input); err == nil {
				t.Errorf("ParseSize(%q) should return error", input)
			}
		})
	}
}

// =============================================================================
// Section 2: Glob Pattern Validation
// =============================================================================

func TestValidateGlobPatterns(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		wantErr  bool
	}{
		{"single wildcard", []string{"*.txt"}, false},
		{"character class", []string{"[abc].txt"}, false},
		{"nil slice", nil, false},
		{"unclosed bracket", []string{"*.txt", "[invalid"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGlobPatterns(tt.patterns)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGlobPatterns(%v) error = %v, wantErr %v", tt.patterns, err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// Section 3: Loading and Validation
// =============================================================================

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error: %v", err)
	}
	if cfg.Database != MemoryDatabase || cfg.Algorithm() != hasher.DefaultAlgorithm || cfg.MinSizeBytes() != 0 {
		t.Errorf("Default() = %+v", cfg)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Listen != ":8080" || cfg.Log.Level != "WARN" {
		t.Errorf("Load(\"\") = %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dupescan.yaml")
	content := `
database: /var/lib/dupescan/index.db
hash: blake3
workers: 3
min_size: 4KiB
exclude_patterns: ["*.tmp", ".git"]
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database != "/var/lib/dupescan/index.db" || cfg.Workers != 3 || len(cfg.ExcludePatterns) != 2 {
		t.Errorf("Load() = %+v", cfg)
	}
	if cfg.Algorithm() != hasher.BLAKE3 {
		t.Errorf("Algorithm() = %q, want blake3", cfg.Algorithm())
	}
	if cfg.MinSizeBytes() != 4096 {
		t.Errorf("MinSizeBytes() = %d, want 4096", cfg.MinSizeBytes())
	}
	// Unset keys keep their defaults
	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q, want default", cfg.Listen)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	tests := []struct {
		name    string
		path    string
		wantMsg string
	}{
		{"missing file", filepath.Join(dir, "missing.yaml"), "read config file"},
		{"malformed yaml", write("bad.yaml", "workers: [1"), "parse config file"},
		{"bad hash", write("hash.yaml", "hash: crc32"), "unknown hash algorithm"},
		{"bad workers", write("workers.yaml", "workers: 0"), "workers must be >= 1"},
		{"bad size", write("size.yaml", "min_size: lots"), "min_size"},
		{"bad pattern", write("glob.yaml", "exclude_patterns: ['[x']"), "exclude_patterns"},
		{"bad level", write("level.yaml", "log: {level: loud}"), "unknown log level"},
		{"bad format", write("format.yaml", "log: {format: xml}"), "unknown log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantMsg)
			}
		})
	}
}

// =============================================================================
// Section 4: Logger
// =============================================================================

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"DEBUG", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"", logrus.WarnLevel},
		{"WARNING", logrus.WarnLevel},
		{"ERROR", logrus.ErrorLevel},
		{"CRITICAL", logrus.FatalLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log, closer, err := NewLogger(LogConfig{Level: tt.level})
			if err != nil {
				t.Fatalf("NewLogger() error: %v", err)
			}
			defer func() { _ = closer.Close() }()
			if log.GetLevel() != tt.want {
				t.Errorf("level = %v, want %v", log.GetLevel(), tt.want)
			}
		})
	}
}

func TestNewLoggerWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dupescan.log")

	log, closer, err := NewLogger(LogConfig{Level: "INFO", Format: "json", File: path})
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}
	log.WithField("path", "/data/a").Info("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"msg":"hello"`)) || !bytes.Contains(data, []byte(`"path":"/data/a"`)) {
		t.Errorf("log file = %s", data)
	}
}
