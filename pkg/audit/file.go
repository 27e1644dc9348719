package audit

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// FileConfig configures a FileSink.
type FileConfig struct {
	// Path is "stderr" (default), "stdout" or a file path. Files are
	// opened for appending and created when missing.
	Path string `mapstructure:"path"`
}

// FileSink writes audit lines to a file or standard stream.
//
// Each entry is written with a single Write under a mutex, so lines from
// concurrent workers never interleave.
type FileSink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewFileSink opens the destination named by cfg.Path.
func NewFileSink(cfg FileConfig) (*FileSink, error) {
	switch strings.ToLower(cfg.Path) {
	case "", "stderr":
		return &FileSink{w: os.Stderr}, nil
	case "stdout":
		return &FileSink{w: os.Stdout}, nil
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", cfg.Path, err)
	}
	return &FileSink{w: f, closer: f}, nil
}

// NewWriterSink writes audit lines to w. Close does not close w.
func NewWriterSink(w io.Writer) *FileSink {
	return &FileSink{w: w}
}

func (s *FileSink) Record(e Entry) error {
	if e.Method == "" {
		return nil
	}

	line := e.Line()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return fmt.Errorf("audit log closed")
	}
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w = nil
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}
