package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittohttp/internal/queue"
	"github.com/marmos91/dittohttp/pkg/adapter/http1"
	"github.com/marmos91/dittohttp/pkg/metrics"
)

// Defaults not owned by another package.
const (
	DefaultHTTPPort = 8080
	DefaultFileMode = "0600"
	DefaultDirMode  = "0700"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Sink-specific defaults are filled into every options map, so generated
//     config files show them
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyAuditDefaults(&cfg.Audit)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	// Metrics stay disabled unless configured.
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = metrics.DefaultPort
	}
}

// applyStorageDefaults sets storage defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	// TempDir stays empty: the store stages next to the root.
	if cfg.FileMode == "" {
		cfg.FileMode = DefaultFileMode
	}
	if cfg.DirMode == "" {
		cfg.DirMode = DefaultDirMode
	}
}

// applyAuditDefaults sets audit sink defaults.
func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.Type == "" {
		cfg.Type = "file"
	}

	if cfg.File == nil {
		cfg.File = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	if _, ok := cfg.File["path"]; !ok {
		cfg.File["path"] = "stderr"
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "/tmp/dittohttp-audit"
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// Enable the HTTP adapter when it looks unconfigured (no port), so that
	// a config without an adapters section still serves. An explicit
	// enabled: false next to a port is kept.
	if !cfg.HTTP.Enabled && cfg.HTTP.Port == 0 {
		cfg.HTTP.Enabled = true
	}

	applyHTTPDefaults(&cfg.HTTP)
}

// applyHTTPDefaults sets HTTP adapter defaults. The values match the ones
// http1.New would apply, so generated config files show them.
func applyHTTPDefaults(cfg *http1.HTTPConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultHTTPPort
	}
	if cfg.Threads == 0 {
		cfg.Threads = http1.DefaultThreads
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = queue.DefaultCapacity
	}
	if cfg.HeaderBufferSize == 0 {
		cfg.HeaderBufferSize = 2048
	}
	if cfg.StreamChunkSize == 0 {
		cfg.StreamChunkSize = 2048
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = http1.DefaultProbeTimeout
	}
	if cfg.HeaderTimeout == 0 {
		cfg.HeaderTimeout = http1.DefaultHeaderTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = http1.DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = http1.DefaultWriteTimeout
	}
	if cfg.LingerTimeout == 0 {
		cfg.LingerTimeout = http1.DefaultLingerTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = http1.DefaultShutdownTimeout
	}
	if cfg.ResponseLock == "" {
		cfg.ResponseLock = http1.ResponseLockConnection
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = http1.DefaultMetricsLogInterval
	}
	// MaxAcceptRate and AcceptBurst default to 0 (unlimited)
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Audit: AuditConfig{
			File:   make(map[string]any),
			Badger: make(map[string]any),
		},
		Adapters: AdaptersConfig{
			HTTP: http1.HTTPConfig{
				Enabled: true,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
