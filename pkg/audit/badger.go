package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	// prefixEntry namespaces entries: "a:" + 8-byte big-endian sequence,
	// so iteration order is recording order.
	prefixEntry = "a:"

	// keySequence holds the badger sequence lease.
	keySequence = "s:audit"

	sequenceBandwidth = 1000
)

// BadgerConfig configures a BadgerSink.
type BadgerConfig struct {
	// DBPath is the directory badger stores its files in.
	DBPath string `mapstructure:"db_path"`

	// InMemory keeps everything in memory. DBPath is ignored.
	InMemory bool `mapstructure:"in_memory"`

	// SyncWrites fsyncs every entry before Record returns.
	SyncWrites bool `mapstructure:"sync_writes"`
}

// BadgerSink persists entries in a badger database, keyed by a monotonically
// increasing sequence.
//
// Thread Safety:
// Safe for concurrent use; badger transactions and sequences are.
type BadgerSink struct {
	db  *badger.DB
	seq *badger.Sequence
}

// NewBadgerSink opens (or creates) the database described by cfg.
func NewBadgerSink(cfg BadgerConfig) (*BadgerSink, error) {
	if !cfg.InMemory && cfg.DBPath == "" {
		return nil, fmt.Errorf("badger audit sink: db_path is required")
	}

	path := cfg.DBPath
	if cfg.InMemory {
		path = ""
	}
	opts := badger.DefaultOptions(path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	seq, err := db.GetSequence([]byte(keySequence), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to lease audit sequence: %w", err)
	}

	return &BadgerSink{db: db, seq: seq}, nil
}

func entryKey(id uint64) []byte {
	key := make([]byte, len(prefixEntry)+8)
	copy(key, prefixEntry)
	binary.BigEndian.PutUint64(key[len(prefixEntry):], id)
	return key
}

func (s *BadgerSink) Record(e Entry) error {
	if e.Method == "" {
		return nil
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	id, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next audit sequence: %w", err)
	}

	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(id), value)
	})
}

// Entries returns recorded entries oldest first. A limit of 0 returns all of
// them; otherwise the newest limit entries are returned.
func (s *BadgerSink) Entries(limit int) ([]Entry, error) {
	var entries []Entry

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixEntry)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decode audit entry %x: %w", it.Item().Key(), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Close releases the sequence lease and closes the database.
func (s *BadgerSink) Close() error {
	var seqErr error
	if s.seq != nil {
		seqErr = s.seq.Release()
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	return seqErr
}
