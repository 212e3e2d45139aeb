package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/objfs/pkg/gc"
	"github.com/spf13/viper"
)

// Config represents the complete objfs configuration.
//
// This structure captures all configurable aspects of objfs including:
//   - Logging configuration
//   - The local object store and where it keeps payloads
//   - Named remote stores used as rsync endpoints
//   - Session defaults (working directory, user, home directories)
//   - Stray edge garbage collection
//   - Prometheus metrics
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (OBJFS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type and factory function.
// The StoreConfig struct contains type-specific sections (e.g., store.badger, store.mongo)
// and only the section matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Store is the object store the filesystem is mounted on
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Remotes are named stores reachable as "name:path" addresses
	Remotes []RemoteConfig `mapstructure:"remotes" validate:"dive" yaml:"remotes"`

	// Session contains defaults for new sessions
	Session SessionConfig `mapstructure:"session" yaml:"session"`

	// GC configures stray edge collection
	GC gc.Config `mapstructure:"gc" yaml:"gc"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// StoreConfig specifies an object store.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type StoreConfig struct {
	// Type specifies which object store implementation to use
	// Valid values: memory, badger, mongo
	Type string `mapstructure:"type" validate:"required,oneof=memory badger mongo" yaml:"type"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`

	// Mongo contains MongoDB-specific configuration
	// Only used when Type = "mongo"
	Mongo map[string]any `mapstructure:"mongo" yaml:"mongo,omitempty"`

	// Content selects where object payloads are kept
	Content ContentConfig `mapstructure:"content" yaml:"content"`

	// BatchSize is the page size used when listing directories
	BatchSize int `mapstructure:"batch_size" validate:"gte=0" yaml:"batch_size"`
}

// ContentConfig specifies the payload store behind an object store.
type ContentConfig struct {
	// Type specifies which content store implementation to use
	// Valid values: memory, filesystem, s3. Empty keeps the object store's
	// built-in default.
	Type string `mapstructure:"type" validate:"omitempty,oneof=memory filesystem s3" yaml:"type"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem,omitempty"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
}

// RemoteConfig defines a named store.
type RemoteConfig struct {
	// Name addresses the store in "name:path" arguments
	Name string `mapstructure:"name" validate:"required,excludesall=:/" yaml:"name"`

	// ReadOnly rejects the store as an rsync destination
	ReadOnly bool `mapstructure:"read_only" yaml:"read_only"`

	// Store is the store definition
	Store StoreConfig `mapstructure:"store" yaml:"store"`
}

// SessionConfig contains session defaults.
type SessionConfig struct {
	// Cwd is the initial working directory
	Cwd string `mapstructure:"cwd" validate:"required,startswith=/,endswith=/" yaml:"cwd"`

	// User is the name "~" expands to
	User string `mapstructure:"user" yaml:"user,omitempty"`

	// Home overrides the home directory (default: /home/<user>/)
	Home string `mapstructure:"home" validate:"omitempty,startswith=/" yaml:"home,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled starts the metrics server
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port of the metrics server
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (OBJFS_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the OBJFS_ prefix and underscores
	// Example: OBJFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("OBJFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only overrides keys viper already knows about
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"store.type", "store.batch_size", "store.content.type",
		"session.cwd", "session.user", "session.home",
		"gc.enabled", "gc.interval", "gc.batch_size", "gc.dry_run",
		"metrics.enabled", "metrics.port",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/objfs/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is reported as a PathError
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "objfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "objfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
