package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittohttp/internal/logger"
	"github.com/marmos91/dittohttp/pkg/audit"
	"github.com/marmos91/dittohttp/pkg/store/fs"
)

// ParseMode parses an octal permission string such as "0600" or "755".
func ParseMode(s string) (os.FileMode, error) {
	if s == "" {
		return 0, fmt.Errorf("empty mode")
	}
	mode, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid octal mode %q", s)
	}
	if mode&^uint64(os.ModePerm) != 0 {
		return 0, fmt.Errorf("mode %q has bits outside 0777", s)
	}
	return os.FileMode(mode), nil
}

// CreateStore creates the file store that serves request targets.
//
// Parameters:
//   - cfg: Storage configuration (modes are octal strings)
//
// Returns:
//   - *fs.Store: Store rooted at cfg.Root
//   - error: Invalid mode or missing directory
func CreateStore(cfg *StorageConfig) (*fs.Store, error) {
	fileMode, err := ParseMode(cfg.FileMode)
	if err != nil {
		return nil, fmt.Errorf("storage.file_mode: %w", err)
	}
	dirMode, err := ParseMode(cfg.DirMode)
	if err != nil {
		return nil, fmt.Errorf("storage.dir_mode: %w", err)
	}

	store, err := fs.New(fs.Config{
		Root:     cfg.Root,
		TempDir:  cfg.TempDir,
		FileMode: fileMode,
		DirMode:  dirMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create file store: %w", err)
	}

	logger.Info("Serving files from %s (staging in %s)", store.Root(), store.TempDir())
	return store, nil
}

// CreateAuditSink creates the audit sink based on configuration.
//
// This factory function uses the Type field to determine which sink to
// create, then decodes the type-specific options from the corresponding map.
//
// Supported types:
//   - "file": CSV lines to stdout, stderr or a file
//   - "badger": BadgerDB-backed persistent trail
//   - "tee": both, every entry goes to the file and to badger
//   - "none": entries are dropped
func CreateAuditSink(cfg *AuditConfig) (audit.Sink, error) {
	switch cfg.Type {
	case "file":
		fileCfg, err := decodeFileAuditOptions(cfg.File)
		if err != nil {
			return nil, err
		}
		return audit.New("file", fileCfg, audit.BadgerConfig{})
	case "badger":
		badgerCfg, err := decodeBadgerAuditOptions(cfg.Badger)
		if err != nil {
			return nil, err
		}
		sink, err := audit.New("badger", audit.FileConfig{}, badgerCfg)
		if err != nil {
			return nil, err
		}
		logger.Info("Audit trail stored in badger: path=%s in_memory=%v", badgerCfg.DBPath, badgerCfg.InMemory)
		return sink, nil
	case "tee":
		fileCfg, err := decodeFileAuditOptions(cfg.File)
		if err != nil {
			return nil, err
		}
		badgerCfg, err := decodeBadgerAuditOptions(cfg.Badger)
		if err != nil {
			return nil, err
		}
		sink, err := audit.New("tee", fileCfg, badgerCfg)
		if err != nil {
			return nil, err
		}
		logger.Info("Audit trail written to %s and stored in badger: path=%s", fileCfg.Path, badgerCfg.DBPath)
		return sink, nil
	case "none":
		return audit.New("none", audit.FileConfig{}, audit.BadgerConfig{})
	default:
		return nil, fmt.Errorf("unknown audit sink type: %q (supported: file, badger, tee, none)", cfg.Type)
	}
}

// OpenAuditTrail opens the persisted badger trail for reading.
//
// Only the badger and tee types persist entries, and an in-memory database
// has nothing left once the server exits. The server holds the database
// lock while running, so this fails until it has stopped.
func OpenAuditTrail(cfg *AuditConfig) (*audit.BadgerSink, error) {
	if cfg.Type != "badger" && cfg.Type != "tee" {
		return nil, fmt.Errorf("audit.type %q keeps no readable trail (use badger or tee)", cfg.Type)
	}

	badgerCfg, err := decodeBadgerAuditOptions(cfg.Badger)
	if err != nil {
		return nil, err
	}
	if badgerCfg.InMemory {
		return nil, fmt.Errorf("audit.badger.in_memory is set; nothing is persisted")
	}

	return audit.NewBadgerSink(badgerCfg)
}

// decodeFileAuditOptions decodes the file sink options map.
func decodeFileAuditOptions(options map[string]any) (audit.FileConfig, error) {
	var sinkCfg audit.FileConfig
	if err := mapstructure.Decode(options, &sinkCfg); err != nil {
		return sinkCfg, fmt.Errorf("failed to decode file audit sink config: %w", err)
	}
	return sinkCfg, nil
}

// decodeBadgerAuditOptions decodes the badger sink options map. Booleans may
// arrive as strings from environment variables.
func decodeBadgerAuditOptions(options map[string]any) (audit.BadgerConfig, error) {
	var sinkCfg audit.BadgerConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &sinkCfg,
	})
	if err != nil {
		return sinkCfg, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return sinkCfg, fmt.Errorf("failed to decode badger audit sink config: %w", err)
	}

	if sinkCfg.DBPath == "" && !sinkCfg.InMemory {
		return sinkCfg, fmt.Errorf("badger audit sink: db_path is required")
	}
	return sinkCfg, nil
}
