//go:build unix

// Package fdio implements descriptor-level I/O used by the HTTP adapter:
// readiness probing, non-blocking socket reads and writes, advisory file
// locks, anonymous staging files and kernel-assisted copies.
package fdio

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Socket wraps an accepted connection and exposes non-blocking reads and
// writes on its descriptor.
//
// Read and Write never park the calling goroutine: when the kernel has no
// data (or no buffer space) they return ErrWouldBlock. WaitReadable and
// WaitWritable park on the runtime poller until the descriptor changes state
// or the connection deadline passes.
//
// Thread safety:
// Close is safe for concurrent use. A Socket is otherwise owned by a single
// goroutine at a time.
type Socket struct {
	conn net.Conn
	raw  syscall.RawConn

	closeOnce sync.Once
	closeErr  error
}

// NewSocket wraps conn. The connection must implement syscall.Conn, which
// *net.TCPConn and *net.UnixConn do.
func NewSocket(conn net.Conn) (*Socket, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotSocket, conn)
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("syscall conn: %w", err)
	}

	return &Socket{conn: conn, raw: raw}, nil
}

// Conn returns the wrapped connection.
func (s *Socket) Conn() net.Conn {
	return s.conn
}

// RemoteAddr returns the peer address.
func (s *Socket) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Probe polls the descriptor for readability for at most timeout.
//
// It reports true when data, a hangup or an error condition is pending, and
// false when the timeout expired first. A non-nil error means the poll
// itself failed.
func (s *Socket) Probe(timeout time.Duration) (bool, error) {
	var (
		ready   bool
		pollErr error
	)

	ms := int(timeout / time.Millisecond)
	err := s.raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		for {
			n, err := unix.Poll(fds, ms)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				pollErr = err
				return
			}
			ready = n > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
			return
		}
	})
	if err != nil {
		return false, err
	}
	if pollErr != nil {
		return false, fmt.Errorf("poll: %w", pollErr)
	}
	return ready, nil
}

// Read performs one non-blocking read.
//
// It returns ErrWouldBlock when no data is available, io.EOF when the peer
// closed its side, and os.ErrDeadlineExceeded once the read deadline passed.
func (s *Socket) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	var (
		n       int
		readErr error
	)
	err := s.raw.Read(func(fd uintptr) bool {
		for {
			n, readErr = unix.Read(int(fd), p)
			if readErr != unix.EINTR {
				return true
			}
		}
	})
	if err != nil {
		return 0, err
	}

	switch {
	case readErr == unix.EAGAIN || readErr == unix.EWOULDBLOCK:
		return 0, ErrWouldBlock
	case readErr != nil:
		return 0, fmt.Errorf("read: %w", readErr)
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}

// Write performs one non-blocking write and may write fewer than len(p)
// bytes. It returns ErrWouldBlock when the send buffer is full.
func (s *Socket) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	var (
		n        int
		writeErr error
	)
	err := s.raw.Write(func(fd uintptr) bool {
		for {
			n, writeErr = unix.Write(int(fd), p)
			if writeErr != unix.EINTR {
				return true
			}
		}
	})
	if err != nil {
		return 0, err
	}

	switch {
	case writeErr == unix.EAGAIN || writeErr == unix.EWOULDBLOCK:
		return 0, ErrWouldBlock
	case writeErr != nil:
		return 0, fmt.Errorf("write: %w", writeErr)
	}
	return n, nil
}

// WaitReadable parks until the descriptor may be readable or the read
// deadline passes. Wake-ups can be spurious; callers retry the read.
func (s *Socket) WaitReadable() error {
	return s.raw.Read(waitOnce())
}

// WaitWritable parks until the descriptor may be writable or the write
// deadline passes.
func (s *Socket) WaitWritable() error {
	return s.raw.Write(waitOnce())
}

// waitOnce returns a raw callback that asks the poller to wait on its first
// call and completes on the next.
func waitOnce() func(uintptr) bool {
	waited := false
	return func(uintptr) bool {
		if waited {
			return true
		}
		waited = true
		return false
	}
}

// SetReadDeadline bounds Read and WaitReadable.
func (s *Socket) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// SetWriteDeadline bounds Write, WaitWritable and SendFile.
func (s *Socket) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

// Close closes the connection. Only the first call has an effect; later
// calls return the first result.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
