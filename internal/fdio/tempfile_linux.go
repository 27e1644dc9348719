package fdio

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// CreateTemp returns an anonymous read/write file in dir. The file has no
// directory entry and disappears when closed.
//
// O_TMPFILE is used when the filesystem supports it; otherwise a named temp
// file is created and immediately unlinked.
func CreateTemp(dir string) (*os.File, error) {
	fd, err := unix.Open(dir, unix.O_RDWR|unix.O_TMPFILE|unix.O_CLOEXEC, 0600)
	if err == nil {
		return os.NewFile(uintptr(fd), filepath.Join(dir, "(staging)")), nil
	}

	switch err {
	case unix.EOPNOTSUPP, unix.EISDIR, unix.EINVAL:
		return createNamedTemp(dir)
	}
	return nil, fmt.Errorf("create staging file: %w", &os.PathError{Op: "open", Path: dir, Err: err})
}
