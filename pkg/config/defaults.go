package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/objfs/pkg/vfs"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyStoreDefaults(&cfg.Store)
	for i := range cfg.Remotes {
		applyStoreDefaults(&cfg.Remotes[i].Store)
	}
	applySessionDefaults(&cfg.Session)
	applyGCDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyStoreDefaults sets object store defaults.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = vfs.DefaultBatchSize
	}

	// Initialize maps if nil
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.Mongo == nil {
		cfg.Mongo = make(map[string]any)
	}

	switch cfg.Type {
	case "badger":
		if _, ok := cfg.Badger["db_path"]; !ok {
			cfg.Badger["db_path"] = filepath.Join(getDataDir(), "db")
		}
	case "mongo":
		if _, ok := cfg.Mongo["uri"]; !ok {
			cfg.Mongo["uri"] = "mongodb://localhost:27017"
		}
		if _, ok := cfg.Mongo["database"]; !ok {
			cfg.Mongo["database"] = "objfs"
		}
	}

	applyContentDefaults(&cfg.Content)
}

// applyContentDefaults sets content store defaults.
func applyContentDefaults(cfg *ContentConfig) {
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if cfg.Type == "filesystem" {
		if _, ok := cfg.Filesystem["path"]; !ok {
			cfg.Filesystem["path"] = filepath.Join(getDataDir(), "content")
		}
	}
}

// applySessionDefaults sets session defaults.
func applySessionDefaults(cfg *SessionConfig) {
	if cfg.Cwd == "" {
		cfg.Cwd = "/"
	}
	if !strings.HasSuffix(cfg.Cwd, "/") {
		cfg.Cwd += "/"
	}
	// User and Home default to empty: "~" then expands to "/"
}

// applyGCDefaults sets garbage collector defaults.
func applyGCDefaults(cfg *Config) {
	// Enabled defaults to false; DryRun defaults to false
	if cfg.GC.Interval == 0 {
		cfg.GC.Interval = 24 * time.Hour
	}
	if cfg.GC.BatchSize == 0 {
		cfg.GC.BatchSize = 1000
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// getDataDir returns the directory for persistent store files.
//
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "objfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "objfs")
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Store: StoreConfig{
			Type: "badger",
			Content: ContentConfig{
				Type: "filesystem",
			},
		},
		Remotes: []RemoteConfig{},
	}

	ApplyDefaults(cfg)
	return cfg
}
