package http1

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittohttp/internal/fdio"
	proto "github.com/marmos91/dittohttp/internal/protocol/http1"
)

// maxLingerBytes caps how much unread client input is drained before close.
const maxLingerBytes = 256 << 10

// Connection is one accepted client socket and the header bytes read from it
// so far.
//
// A Connection is owned by exactly one goroutine at a time: the accept loop
// until it is queued, then whichever worker took it off the queue. The
// header buffer persists across suspensions.
type Connection struct {
	// ID correlates log lines of one connection.
	ID uuid.UUID

	socket *fdio.Socket
	header *proto.HeaderBuffer

	// acceptedAt starts the header deadline.
	acceptedAt time.Time

	// writeMu is the response lock in connection scope.
	writeMu sync.Mutex

	// requeues counts suspensions.
	requeues int

	released atomic.Bool
}

func newConnection(c net.Conn, headerSize int) (*Connection, error) {
	sock, err := fdio.NewSocket(c)
	if err != nil {
		return nil, err
	}

	return &Connection{
		ID:         uuid.New(),
		socket:     sock,
		header:     proto.NewHeaderBuffer(headerSize),
		acceptedAt: time.Now(),
	}, nil
}

// RemoteAddr returns the client address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.socket.RemoteAddr()
}

// Close closes the socket. Safe to call more than once.
func (c *Connection) Close() error {
	return c.socket.Close()
}

// lingerClose shuts down the write side, so the client sees the end of the
// response, then discards client input until EOF, timeout or
// maxLingerBytes before closing.
func (c *Connection) lingerClose(timeout time.Duration) {
	defer func() { _ = c.Close() }()

	cw, ok := c.socket.Conn().(interface{ CloseWrite() error })
	if !ok {
		return
	}
	if err := cw.CloseWrite(); err != nil {
		return
	}

	if err := c.socket.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return
	}
	_, _ = fdio.Stream(context.Background(), io.Discard, c.socket, maxLingerBytes, 0)
}
