package http1

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/dittohttp/internal/fdio"
)

// DefaultHeaderBufferSize is the header buffer capacity when none is
// configured.
const DefaultHeaderBufferSize = 2048

var terminator = []byte("\r\n\r\n")

// HeaderBuffer accumulates a header block across non-blocking reads.
//
// Bytes are read one at a time so that nothing past the blank line is ever
// consumed from the socket: the body stays in the kernel for the streamer.
// The buffer survives ErrRetry, so a suspended connection resumes exactly
// where it stopped.
type HeaderBuffer struct {
	buf      []byte
	n        int
	complete bool
}

// NewHeaderBuffer allocates a buffer of the given capacity. A size below 4
// (too small to hold the terminator) falls back to the default.
func NewHeaderBuffer(size int) *HeaderBuffer {
	if size < len(terminator) {
		size = DefaultHeaderBufferSize
	}
	return &HeaderBuffer{buf: make([]byte, size)}
}

// Fill reads from r until the header block is complete.
//
// Returns:
//   - nil once CRLF CRLF has been read
//   - ErrRetry if r reported fdio.ErrWouldBlock
//   - ErrHeaderTooLarge if the buffer filled without a terminator
//   - ErrPeerClosed if r hit EOF first
//   - any other read error, wrapped
func (h *HeaderBuffer) Fill(r io.Reader) error {
	for !h.complete {
		if h.n == len(h.buf) {
			return ErrHeaderTooLarge
		}

		n, err := r.Read(h.buf[h.n : h.n+1])
		if n == 1 {
			h.n++
			if h.n >= len(terminator) && bytes.Equal(h.buf[h.n-len(terminator):h.n], terminator) {
				h.complete = true
				return nil
			}
			if err == nil {
				continue
			}
		}

		switch {
		case err == nil:
			return ErrRetry
		case errors.Is(err, fdio.ErrWouldBlock):
			return ErrRetry
		case errors.Is(err, io.EOF):
			return ErrPeerClosed
		default:
			return fmt.Errorf("read header: %w", err)
		}
	}
	return nil
}

// Bytes returns the bytes accumulated so far. The slice aliases the buffer.
func (h *HeaderBuffer) Bytes() []byte {
	return h.buf[:h.n]
}

// Len returns the number of buffered bytes.
func (h *HeaderBuffer) Len() int {
	return h.n
}

// Cap returns the buffer capacity.
func (h *HeaderBuffer) Cap() int {
	return len(h.buf)
}
