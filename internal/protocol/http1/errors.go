package http1

import "errors"

var (
	// ErrHeaderTooLarge is returned when the header buffer fills up before
	// the blank line ending the header block was seen.
	ErrHeaderTooLarge = errors.New("header block exceeds buffer")

	// ErrRetry is returned when the socket had no data yet. The partial
	// header stays buffered and reading can resume later.
	ErrRetry = errors.New("header incomplete, retry later")

	// ErrPeerClosed is returned when the peer closed the connection before
	// completing the header block.
	ErrPeerClosed = errors.New("peer closed connection before end of header")
)
