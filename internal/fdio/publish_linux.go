package fdio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

var errAnonymousUnsupported = errors.New("anonymous files not supported")

// createAnonymous opens an O_TMPFILE file in dir that can later be linked.
func createAnonymous(dir string, mode os.FileMode) (*os.File, error) {
	fd, err := unix.Open(dir, unix.O_WRONLY|unix.O_TMPFILE|unix.O_CLOEXEC, uint32(mode.Perm()))
	if err == nil {
		return os.NewFile(uintptr(fd), filepath.Join(dir, "(unpublished)")), nil
	}

	switch err {
	case unix.EOPNOTSUPP, unix.EISDIR, unix.EINVAL:
		return nil, errAnonymousUnsupported
	}
	return nil, fmt.Errorf("create file: %w", &os.PathError{Op: "open", Path: dir, Err: err})
}

// linkAnonymous gives an O_TMPFILE file a name through its /proc entry.
func linkAnonymous(f *os.File, path string) error {
	proc := "/proc/self/fd/" + strconv.Itoa(int(f.Fd()))
	for {
		err := unix.Linkat(unix.AT_FDCWD, proc, unix.AT_FDCWD, path, unix.AT_SYMLINK_FOLLOW)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return &os.LinkError{Op: "link", Old: f.Name(), New: path, Err: err}
		}
		return nil
	}
}
