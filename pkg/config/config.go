package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marmos91/dittohttp/pkg/adapter/http1"
)

// Config represents the complete DittoHTTP configuration.
//
// This structure captures all configurable aspects of the server:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics endpoint)
//   - Storage root and staging directory
//   - Audit sink selection and sink-specific options
//   - Protocol adapter configurations
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOHTTP_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Audit sinks follow the store configuration pattern: the Audit section holds
// one options map per sink type and only the map matching Type is decoded.
type Config struct {
	// Logging controls operational log output
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Storage locates the served files
	Storage StorageConfig `mapstructure:"storage"`

	// Audit selects where the per-request audit trail goes
	Audit AuditConfig `mapstructure:"audit"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled starts the metrics HTTP server
	Enabled bool `mapstructure:"enabled"`

	// Port is the metrics server port (default 9090)
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// StorageConfig locates the served files.
type StorageConfig struct {
	// Root is the directory request URIs are resolved against.
	// Defaults to the working directory.
	Root string `mapstructure:"root" validate:"required"`

	// TempDir holds anonymous staging files. It should be on the same
	// filesystem as Root. Empty means Root.
	TempDir string `mapstructure:"temp_dir"`

	// FileMode is the octal permission of files created by PUT (e.g. "0600")
	FileMode string `mapstructure:"file_mode" validate:"required"`

	// DirMode is the octal permission of parent directories created by PUT
	DirMode string `mapstructure:"dir_mode" validate:"required"`
}

// AuditConfig selects the audit sink.
//
// The Type field determines which sink is used. Only the corresponding
// type-specific options map is read.
type AuditConfig struct {
	// Type specifies the sink
	// Valid values: file, badger, tee (file and badger), none
	Type string `mapstructure:"type" validate:"required,oneof=file badger tee none"`

	// File contains file sink options (path: stdout, stderr or a file path)
	// Only used when Type = "file" or "tee"
	File map[string]any `mapstructure:"file"`

	// Badger contains BadgerDB sink options (db_path, in_memory, sync_writes)
	// Only used when Type = "badger" or "tee"
	Badger map[string]any `mapstructure:"badger"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// HTTP contains the HTTP file protocol configuration.
	// Uses the http1.HTTPConfig type directly to avoid duplication.
	HTTP http1.HTTPConfig `mapstructure:"http"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOHTTP_*)
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
	cfg, err := LoadUnvalidated(configPath)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadUnvalidated loads configuration with defaults applied but does not
// validate it. The CLI uses it to apply flag overrides before validating.
func LoadUnvalidated(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// envKeys lists the keys bound to environment variables. Viper's
// AutomaticEnv only consults the environment for keys it already knows, so
// keys absent from the config file are bound explicitly.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.metrics.enabled",
	"server.metrics.port",
	"storage.root",
	"storage.temp_dir",
	"storage.file_mode",
	"storage.dir_mode",
	"audit.type",
	"audit.file.path",
	"audit.badger.db_path",
	"audit.badger.in_memory",
	"audit.badger.sync_writes",
	"adapters.http.enabled",
	"adapters.http.port",
	"adapters.http.threads",
	"adapters.http.queue_capacity",
	"adapters.http.header_buffer_size",
	"adapters.http.stream_chunk_size",
	"adapters.http.probe_timeout",
	"adapters.http.header_timeout",
	"adapters.http.read_timeout",
	"adapters.http.write_timeout",
	"adapters.http.linger_timeout",
	"adapters.http.shutdown_timeout",
	"adapters.http.response_lock",
	"adapters.http.max_accept_rate",
	"adapters.http.accept_burst",
	"adapters.http.metrics_log_interval",
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use DITTOHTTP_ prefix and underscores
	// Example: DITTOHTTP_ADAPTERS_HTTP_THREADS=16
	v.SetEnvPrefix("DITTOHTTP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittohttp/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is treated like no file.
		if configPath != "" && errors.Is(err, os.ErrNotExist) {
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
		return filepath.Join(xdgConfig, "dittohttp")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittohttp")
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

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
