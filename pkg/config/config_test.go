package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Write minimal config
	configContent := `
logging:
  level: "INFO"

storage:
  root: "/srv/files"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Storage.Root != "/srv/files" {
		t.Errorf("Expected root '/srv/files', got %q", cfg.Storage.Root)
	}
	if !cfg.Adapters.HTTP.Enabled {
		t.Error("Expected HTTP adapter to be enabled by default")
	}
	if cfg.Adapters.HTTP.Port != DefaultHTTPPort {
		t.Errorf("Expected default HTTP port %d, got %d", DefaultHTTPPort, cfg.Adapters.HTTP.Port)
	}
	if cfg.Adapters.HTTP.Threads != 4 {
		t.Errorf("Expected default threads 4, got %d", cfg.Adapters.HTTP.Threads)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Use a non-existent path so the user's own config is not picked up
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Audit.Type != "file" {
		t.Errorf("Expected default audit type 'file', got %q", cfg.Audit.Type)
	}
	if cfg.Audit.File["path"] != "stderr" {
		t.Errorf("Expected default audit path 'stderr', got %v", cfg.Audit.File["path"])
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configContent := `
[logging]
level = "WARN"
format = "json"

[adapters.http]
enabled = true
port = 8081
threads = 12
probe_timeout = "250ms"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Adapters.HTTP.Port != 8081 {
		t.Errorf("Expected port 8081, got %d", cfg.Adapters.HTTP.Port)
	}
	if cfg.Adapters.HTTP.Threads != 12 {
		t.Errorf("Expected 12 threads, got %d", cfg.Adapters.HTTP.Threads)
	}
	if cfg.Adapters.HTTP.ProbeTimeout != 250*time.Millisecond {
		t.Errorf("Expected probe timeout 250ms, got %v", cfg.Adapters.HTTP.ProbeTimeout)
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
adapters:
  http:
    threads: 2
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("DITTOHTTP_ADAPTERS_HTTP_THREADS", "16")
	t.Setenv("DITTOHTTP_STORAGE_FILE_MODE", "0640")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Adapters.HTTP.Threads != 16 {
		t.Errorf("Expected env override to 16 threads, got %d", cfg.Adapters.HTTP.Threads)
	}
	if cfg.Storage.FileMode != "0640" {
		t.Errorf("Expected file mode '0640' from env, got %q", cfg.Storage.FileMode)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
adapters:
  http:
    response_lock: "sometimes"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown response lock")
	}

	// LoadUnvalidated returns the config so callers can fix it up first
	cfg, err := LoadUnvalidated(configPath)
	if err != nil {
		t.Fatalf("LoadUnvalidated failed: %v", err)
	}
	if cfg.Adapters.HTTP.ResponseLock != "sometimes" {
		t.Errorf("Expected raw response lock to survive, got %q", cfg.Adapters.HTTP.ResponseLock)
	}
}

func TestLoad_AuditBadgerOptions(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
audit:
  type: badger
  badger:
    db_path: "/var/lib/dittohttp/audit"
    sync_writes: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Audit.Type != "badger" {
		t.Errorf("Expected audit type 'badger', got %q", cfg.Audit.Type)
	}
	if cfg.Audit.Badger["db_path"] != "/var/lib/dittohttp/audit" {
		t.Errorf("Expected db_path to be kept, got %v", cfg.Audit.Badger["db_path"])
	}
	if cfg.Audit.Badger["sync_writes"] != true {
		t.Errorf("Expected sync_writes true, got %v", cfg.Audit.Badger["sync_writes"])
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Storage.FileMode != "0600" {
		t.Errorf("Expected default file mode '0600', got %q", cfg.Storage.FileMode)
	}
	if cfg.Storage.DirMode != "0700" {
		t.Errorf("Expected default dir mode '0700', got %q", cfg.Storage.DirMode)
	}
	if cfg.Adapters.HTTP.ResponseLock != "connection" {
		t.Errorf("Expected default response lock 'connection', got %q", cfg.Adapters.HTTP.ResponseLock)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	expected := filepath.Join(tmpDir, "dittohttp")
	if dir := GetConfigDir(); dir != expected {
		t.Errorf("Expected config dir %q, got %q", expected, dir)
	}
	if path := GetDefaultConfigPath(); path != filepath.Join(expected, "config.yaml") {
		t.Errorf("Unexpected default config path %q", path)
	}
	if ConfigExists() {
		t.Error("Expected no config in a fresh directory")
	}
}
