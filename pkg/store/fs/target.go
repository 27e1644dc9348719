package fs

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/marmos91/dittohttp/internal/fdio"
)

// Target is an open handle on a stored file.
//
// Every method that touches file contents takes the flock itself and holds it
// only for the duration of the copy.
type Target struct {
	URI  string
	Path string
	File *os.File

	// Created is set by Replace when it published a file that did not exist.
	Created bool

	// pending holds a new file until Replace links it at Path.
	pending *fdio.Unpublished
}

// Close closes the underlying file. A new file that was never published is
// discarded.
func (t *Target) Close() error {
	if t.pending != nil {
		return t.pending.Close()
	}
	return t.File.Close()
}

// Replace sets the target's contents to n bytes of staged.
//
// An existing file is truncated and rewritten under an exclusive lock. A new
// file is filled first and then linked at its path; if another request
// created the path meanwhile, that file is replaced under the lock instead.
func (t *Target) Replace(staged *os.File, n int64) error {
	if t.pending != nil {
		published, err := t.publish(staged, n)
		if err != nil || published {
			return err
		}
	}

	return fdio.WithLock(t.File, fdio.Exclusive, func() error {
		if err := t.File.Truncate(0); err != nil {
			return fmt.Errorf("truncate %s: %w", t.URI, err)
		}
		if _, err := t.File.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("seek %s: %w", t.URI, err)
		}
		if _, err := fdio.CopyFile(t.File, staged, 0, n); err != nil {
			return fmt.Errorf("commit %s: %w", t.URI, err)
		}
		return nil
	})
}

// publish fills the pending file and links it at Path. It returns false
// with t switched to the existing file when the path was taken first.
func (t *Target) publish(staged *os.File, n int64) (bool, error) {
	if _, err := fdio.CopyFile(t.File, staged, 0, n); err != nil {
		return false, fmt.Errorf("commit %s: %w", t.URI, err)
	}

	err := t.pending.Link(t.Path)
	if err == nil {
		t.Created = true
		return true, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return false, classify("link", t.URI, err)
	}

	f, err := os.OpenFile(t.Path, os.O_WRONLY, 0)
	if err != nil {
		return false, classify("open", t.URI, err)
	}
	_ = t.pending.Close()
	t.pending = nil
	t.File = f
	return false, nil
}

// Append copies n bytes of staged to the end of the target, under an
// exclusive lock. The end is located after the lock is granted, so
// concurrent appends never overwrite each other.
func (t *Target) Append(staged *os.File, n int64) error {
	return fdio.WithLock(t.File, fdio.Exclusive, func() error {
		if _, err := t.File.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("seek %s: %w", t.URI, err)
		}
		if _, err := fdio.CopyFile(t.File, staged, 0, n); err != nil {
			return fmt.Errorf("append %s: %w", t.URI, err)
		}
		return nil
	})
}

// Snapshot copies the whole target into dst under a shared lock and returns
// the number of bytes copied. The size is read while the lock is held, so
// the snapshot always matches one committed version of the file.
func (t *Target) Snapshot(dst *os.File) (int64, error) {
	var n int64
	err := fdio.WithLock(t.File, fdio.Shared, func() error {
		info, err := t.File.Stat()
		if err != nil {
			return fmt.Errorf("stat %s: %w", t.URI, err)
		}
		if n, err = fdio.CopyFile(dst, t.File, 0, info.Size()); err != nil {
			return fmt.Errorf("snapshot %s: %w", t.URI, err)
		}
		return nil
	})
	return n, err
}
