// Package fs stores request targets as plain files under a root directory.
//
// A URI maps to the file of the same relative path under the root; there is
// no index or metadata. Writers stage data in anonymous files and commit it
// to the target with a kernel copy while holding an exclusive flock, and
// readers snapshot the target under a shared flock, so readers never observe
// a partially committed write.
package fs

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"syscall"

	"github.com/marmos91/dittohttp/internal/fdio"
)

const (
	// DefaultFileMode is used for files created by PUT.
	DefaultFileMode os.FileMode = 0600

	// DefaultDirMode is used for parent directories created by PUT.
	DefaultDirMode os.FileMode = 0700
)

// Config configures a Store.
type Config struct {
	// Root is the directory URIs are resolved against.
	Root string

	// TempDir holds staging files. It must be on the same filesystem as
	// Root for O_TMPFILE to be useful; defaults to Root.
	TempDir string

	FileMode os.FileMode
	DirMode  os.FileMode
}

// Store resolves URIs under a root directory and opens them per method.
//
// Thread Safety:
// Store is immutable after New and safe for concurrent use. Concurrent access
// to the same file is serialized through Target's lock-scoped operations.
type Store struct {
	root     string
	tempDir  string
	fileMode os.FileMode
	dirMode  os.FileMode
}

// New validates cfg and returns a Store. Root and TempDir must be existing
// directories.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := requireDir(root); err != nil {
		return nil, fmt.Errorf("storage root: %w", err)
	}

	tempDir := root
	if cfg.TempDir != "" {
		if tempDir, err = filepath.Abs(cfg.TempDir); err != nil {
			return nil, fmt.Errorf("resolve temp dir: %w", err)
		}
		if err := requireDir(tempDir); err != nil {
			return nil, fmt.Errorf("temp dir: %w", err)
		}
	}

	if cfg.FileMode == 0 {
		cfg.FileMode = DefaultFileMode
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = DefaultDirMode
	}

	return &Store{
		root:     root,
		tempDir:  tempDir,
		fileMode: cfg.FileMode.Perm(),
		dirMode:  cfg.DirMode.Perm(),
	}, nil
}

func requireDir(p string) error {
	info, err := os.Stat(p)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", p, syscall.ENOTDIR)
	}
	return nil
}

// Root returns the absolute storage root.
func (s *Store) Root() string {
	return s.root
}

// TempDir returns the directory staging files are created in.
func (s *Store) TempDir() string {
	return s.tempDir
}

// Resolve maps uri to a path under the root. The URI is cleaned as an
// absolute path first, so ".." segments stop at the root. A URI that cleans
// to the root itself ("/.", "/..") names a directory.
func (s *Store) Resolve(uri string) (string, error) {
	cleaned := path.Clean("/" + uri)
	if cleaned == "/" {
		return "", fmt.Errorf("%q: %w", uri, ErrIsDirectory)
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// OpenForRead opens an existing regular file for GET.
func (s *Store) OpenForRead(uri string) (*Target, error) {
	p, err := s.Resolve(uri)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, classify("open", uri, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, classify("stat", uri, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: %w", uri, ErrIsDirectory)
	}

	return &Target{URI: uri, Path: p, File: f}, nil
}

// OpenForAppend opens an existing file for APPEND. The handle is not opened
// with O_APPEND; Target.Append positions it under the lock.
func (s *Store) OpenForAppend(uri string) (*Target, error) {
	p, err := s.Resolve(uri)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(p, os.O_WRONLY, 0)
	if err != nil {
		return nil, classify("open", uri, err)
	}
	return &Target{URI: uri, Path: p, File: f}, nil
}

// CheckWritable reports whether a PUT to uri could proceed, without creating
// or modifying anything: the target must not be a directory and, when it
// exists, must be writable.
func (s *Store) CheckWritable(uri string) error {
	p, err := s.Resolve(uri)
	if err != nil {
		return err
	}

	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return classify("stat", uri, err)
	}
	if info.IsDir() {
		return fmt.Errorf("stat %s: %w", uri, ErrIsDirectory)
	}

	f, err := os.OpenFile(p, os.O_WRONLY, 0)
	if err != nil {
		return classify("open", uri, err)
	}
	return f.Close()
}

// OpenForWrite opens the target of a PUT.
//
// An existing file is opened as is; its contents are kept until
// Target.Replace truncates them under the lock. When the file is absent, any
// missing parent directories are created and the target starts out
// unpublished: Replace writes the new contents first and only then links the
// file into place, so no reader ever sees it empty.
func (s *Store) OpenForWrite(uri string) (*Target, error) {
	p, err := s.Resolve(uri)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(p, os.O_WRONLY, 0)
	if err == nil {
		return &Target{URI: uri, Path: p, File: f}, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, classify("open", uri, err)
	}

	if err := os.MkdirAll(filepath.Dir(p), s.dirMode); err != nil {
		return nil, classify("mkdir", uri, err)
	}

	pending, err := fdio.CreateUnpublished(filepath.Dir(p), s.fileMode)
	if err != nil {
		return nil, classify("create", uri, err)
	}
	return &Target{URI: uri, Path: p, File: pending.File, pending: pending}, nil
}

// CreateStaging returns an anonymous read/write file in the temp directory.
func (s *Store) CreateStaging() (*os.File, error) {
	return fdio.CreateTemp(s.tempDir)
}

// classify wraps err with the matching sentinel, or with its own chain when
// no sentinel applies.
func classify(op, uri string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%s %s: %w", op, uri, ErrNotFound)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%s %s: %w", op, uri, ErrPermission)
	case errors.Is(err, syscall.EISDIR):
		return fmt.Errorf("%s %s: %w", op, uri, ErrIsDirectory)
	default:
		return fmt.Errorf("%s %s: %w", op, uri, err)
	}
}
