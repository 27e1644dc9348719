package fdio

import "errors"

var (
	// ErrWouldBlock is returned by non-blocking socket operations that
	// could not make progress without waiting.
	ErrWouldBlock = errors.New("operation would block")

	// ErrShortTransfer is returned by Stream when the source ended before
	// the declared number of bytes was copied.
	ErrShortTransfer = errors.New("short transfer")

	// ErrNotSocket is returned by NewSocket for connections that do not
	// expose their file descriptor.
	ErrNotSocket = errors.New("connection does not expose a file descriptor")
)
