package fdio

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// maxSendfileChunk keeps each sendfile call below the kernel's per-call cap.
const maxSendfileChunk = 1 << 30

// SendFile copies count bytes of f, starting at offset, to the socket using
// sendfile(2). When the send buffer fills it waits for writability, so the
// write deadline bounds the whole transfer.
func (s *Socket) SendFile(f *os.File, offset, count int64) (int64, error) {
	if count <= 0 {
		return 0, nil
	}

	srcFd := int(f.Fd())
	off := offset

	var (
		written int64
		sendErr error
	)
	err := s.raw.Write(func(fd uintptr) bool {
		for written < count {
			n, err := unix.Sendfile(int(fd), srcFd, &off, int(min(count-written, maxSendfileChunk)))
			if n > 0 {
				written += int64(n)
			}
			switch {
			case err == unix.EINTR:
				continue
			case err == unix.EAGAIN:
				return false
			case err != nil:
				sendErr = fmt.Errorf("sendfile: %w", err)
				return true
			case n == 0:
				sendErr = io.ErrUnexpectedEOF
				return true
			}
		}
		return true
	})
	if err != nil {
		return written, err
	}
	return written, sendErr
}
