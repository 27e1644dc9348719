//go:build unix && !linux

package fdio

import (
	"io"
	"os"
)

// SendFile copies count bytes of f, starting at offset, to the socket.
// Platforms without file-to-socket sendfile use a buffered copy through the
// blocking connection.
func (s *Socket) SendFile(f *os.File, offset, count int64) (int64, error) {
	if count <= 0 {
		return 0, nil
	}
	n, err := io.Copy(s.conn, io.NewSectionReader(f, offset, count))
	if err == nil && n < count {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}
