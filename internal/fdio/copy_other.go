//go:build !linux

package fdio

import "os"

// CopyFile copies count bytes of src, starting at srcOffset, to dst at dst's
// current file position.
func CopyFile(dst, src *os.File, srcOffset, count int64) (int64, error) {
	if count <= 0 {
		return 0, nil
	}
	return copyBuffered(dst, src, srcOffset, count)
}
