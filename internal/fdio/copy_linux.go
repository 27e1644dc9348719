package fdio

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// CopyFile copies count bytes of src, starting at srcOffset, to dst at dst's
// current file position, using sendfile(2) between the two descriptors.
//
// dst must not be opened with O_APPEND; callers position it with Seek.
// Kernels that refuse file-to-file sendfile fall back to a buffered copy.
func CopyFile(dst, src *os.File, srcOffset, count int64) (int64, error) {
	if count <= 0 {
		return 0, nil
	}

	dstFd, srcFd := int(dst.Fd()), int(src.Fd())
	off := srcOffset

	var written int64
	for written < count {
		n, err := unix.Sendfile(dstFd, srcFd, &off, int(min(count-written, maxSendfileChunk)))
		if n > 0 {
			written += int64(n)
		}
		switch {
		case err == unix.EINTR || err == unix.EAGAIN:
			continue
		case (err == unix.EINVAL || err == unix.ENOSYS) && written == 0:
			return copyBuffered(dst, src, srcOffset, count)
		case err != nil:
			return written, fmt.Errorf("sendfile %s -> %s: %w", src.Name(), dst.Name(), err)
		case n == 0:
			return written, io.ErrUnexpectedEOF
		}
	}
	return written, nil
}
