package fdio

import (
	"errors"
	"fmt"
	"os"
)

// Unpublished is a new file being written in a directory before it has its
// final name there. Link gives it that name in one step, so a concurrent
// reader finds either no file or the complete one, never a partial one.
type Unpublished struct {
	*os.File

	// tempName is the placeholder name of a file created without O_TMPFILE;
	// empty for anonymous files and once published.
	tempName string
}

// CreateUnpublished creates a write-only new file in dir with the given
// permission bits (subject to the umask). The file is anonymous where the
// filesystem allows it and otherwise carries a hidden placeholder name until
// Link or Close.
func CreateUnpublished(dir string, mode os.FileMode) (*Unpublished, error) {
	f, err := createAnonymous(dir, mode)
	if err == nil {
		return &Unpublished{File: f}, nil
	}
	if !errors.Is(err, errAnonymousUnsupported) {
		return nil, err
	}

	f, err = os.CreateTemp(dir, ".unpublished-*")
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("chmod %s: %w", f.Name(), err)
	}
	return &Unpublished{File: f, tempName: f.Name()}, nil
}

// Link names the file path. It fails with an error matching os.ErrExist
// when path already exists; the file then stays unpublished.
func (u *Unpublished) Link(path string) error {
	if u.tempName == "" {
		return linkAnonymous(u.File, path)
	}
	if err := os.Link(u.tempName, path); err != nil {
		return err
	}
	err := os.Remove(u.tempName)
	u.tempName = ""
	return err
}

// Close closes the file and removes its placeholder name, if any. A file
// that was never linked is gone afterwards.
func (u *Unpublished) Close() error {
	err := u.File.Close()
	if u.tempName != "" {
		if rerr := os.Remove(u.tempName); rerr != nil && err == nil {
			err = rerr
		}
		u.tempName = ""
	}
	return err
}
