//go:build !linux

package fdio

import "os"

// CreateTemp returns an anonymous read/write file in dir. The file has no
// directory entry and disappears when closed.
func CreateTemp(dir string) (*os.File, error) {
	return createNamedTemp(dir)
}
