package http1

import (
	"errors"
	"os"
	"time"

	"github.com/marmos91/dittohttp/internal/fdio"
	"github.com/marmos91/dittohttp/internal/logger"
	proto "github.com/marmos91/dittohttp/internal/protocol/http1"
	"github.com/marmos91/dittohttp/pkg/store/fs"
)

// statusFor maps a store error to the status reported to the client.
//
//   - fs.ErrNotFound                      -> 404
//   - fs.ErrPermission, fs.ErrIsDirectory -> 403
//   - anything else                       -> 400
func statusFor(err error) proto.StatusCode {
	switch {
	case errors.Is(err, fs.ErrNotFound):
		return proto.StatusNotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, fs.ErrIsDirectory):
		return proto.StatusForbidden
	default:
		return proto.StatusBadRequest
	}
}

// open resolves the request URI and opens the target the way its method
// needs it. GET and APPEND require an existing file. PUT only checks that
// the target could be written; the file is opened, and possibly created,
// after the body has been staged so a failed upload leaves nothing behind.
//
// Returns nil for PUT and for failed requests.
func (s *HTTPAdapter) open(req *proto.Request) *fs.Target {
	if req.Failed() {
		return nil
	}

	var (
		target *fs.Target
		err    error
	)
	switch req.Method {
	case proto.MethodGet:
		target, err = s.store.OpenForRead(req.URI)
	case proto.MethodAppend:
		target, err = s.store.OpenForAppend(req.URI)
	case proto.MethodPut:
		err = s.store.CheckWritable(req.URI)
	}

	if err != nil {
		logger.Debug("HTTP %s %s: %v", req.Method, req.URI, err)
		req.Fail(statusFor(err))
		return nil
	}
	return target
}

// handlePut stages the body, then replaces the target's contents with it.
// The target is created, with any missing parent directories, if needed.
func (s *HTTPAdapter) handlePut(conn *Connection, req *proto.Request) {
	staged, n, ok := s.stage(conn, req)
	if !ok {
		return
	}
	defer func() { _ = staged.Close() }()

	target, err := s.store.OpenForWrite(req.URI)
	if err != nil {
		logger.Debug("HTTP PUT %s: %v", req.URI, err)
		req.Fail(statusFor(err))
		return
	}
	defer func() { _ = target.Close() }()

	if err := target.Replace(staged, n); err != nil {
		logger.Error("HTTP PUT %s: %v", req.URI, err)
		req.Fail(proto.StatusInternalServerError)
		return
	}

	if target.Created {
		req.Succeed(proto.StatusCreated)
	} else {
		req.Succeed(proto.StatusOK)
	}
}

// handleGet snapshots the target into a staging file, which becomes the
// response body. The snapshot is taken under a shared lock and the body is
// sent after the lock is released.
func (s *HTTPAdapter) handleGet(req *proto.Request, target *fs.Target) (*os.File, int64) {
	staged, err := s.store.CreateStaging()
	if err != nil {
		logger.Error("HTTP GET %s: %v", req.URI, err)
		req.Fail(proto.StatusInternalServerError)
		return nil, 0
	}

	n, err := target.Snapshot(staged)
	if err != nil {
		_ = staged.Close()
		logger.Error("HTTP GET %s: %v", req.URI, err)
		req.Fail(proto.StatusInternalServerError)
		return nil, 0
	}

	req.Succeed(proto.StatusOK)
	return staged, n
}

// handleAppend stages the body, then appends it to the target.
func (s *HTTPAdapter) handleAppend(conn *Connection, req *proto.Request, target *fs.Target) {
	staged, n, ok := s.stage(conn, req)
	if !ok {
		return
	}
	defer func() { _ = staged.Close() }()

	if err := target.Append(staged, n); err != nil {
		logger.Error("HTTP APPEND %s: %v", req.URI, err)
		req.Fail(proto.StatusInternalServerError)
		return
	}
	req.Succeed(proto.StatusOK)
}

// stage streams the declared body into a fresh staging file. A short body,
// a read timeout or a shutdown fails the request with 400.
func (s *HTTPAdapter) stage(conn *Connection, req *proto.Request) (*os.File, int64, bool) {
	staged, err := s.store.CreateStaging()
	if err != nil {
		logger.Error("HTTP %s %s: %v", req.Method, req.URI, err)
		req.Fail(proto.StatusInternalServerError)
		return nil, 0, false
	}

	if s.config.ReadTimeout > 0 {
		if err := conn.socket.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
			_ = staged.Close()
			req.Fail(proto.StatusBadRequest)
			return nil, 0, false
		}
	}

	n, err := fdio.Stream(s.shutdownCtx, staged, conn.socket, req.ContentLength, s.config.StreamChunkSize)
	s.metrics.RecordBytesTransferred("in", n)
	if err != nil {
		_ = staged.Close()
		if fdio.IsTimeout(err) {
			logger.Debug("HTTP connection %s: %s %s body timed out after %v (%d of %d bytes)",
				conn.ID, req.Method, req.URI, s.config.ReadTimeout, n, req.ContentLength)
		} else {
			logger.Debug("HTTP connection %s: %s %s body after %d of %d bytes: %v",
				conn.ID, req.Method, req.URI, n, req.ContentLength, err)
		}
		req.Fail(proto.StatusBadRequest)
		return nil, 0, false
	}
	return staged, n, true
}
