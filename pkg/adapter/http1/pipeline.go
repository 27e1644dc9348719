package http1

import (
	"errors"
	"os"
	"time"

	"github.com/marmos91/dittohttp/internal/logger"
	proto "github.com/marmos91/dittohttp/internal/protocol/http1"
	"github.com/marmos91/dittohttp/pkg/audit"
)

// serveConnection reads whatever header bytes are available and, once the
// header is complete, processes the request and releases the connection.
//
// A panic anywhere in the pipeline is recovered and logged; the connection
// is closed and the worker survives.
func (s *HTTPAdapter) serveConnection(conn *Connection) (state connState) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in HTTP connection %s from %s: %v", conn.ID, conn.RemoteAddr(), r)
			s.release(conn, false)
			state = stateDone
		}
	}()

	if err := conn.header.Fill(conn.socket); err != nil {
		switch {
		case errors.Is(err, proto.ErrRetry):
			if !s.headerExpired(conn) {
				return stateSuspended
			}
			logger.Debug("HTTP connection %s: header incomplete after %v (%d requeues)",
				conn.ID, s.config.HeaderTimeout, conn.requeues)
		case errors.Is(err, proto.ErrHeaderTooLarge):
			logger.Debug("HTTP connection %s: header exceeds %d bytes", conn.ID, conn.header.Cap())
		case errors.Is(err, proto.ErrPeerClosed):
			logger.Debug("HTTP connection %s: peer closed after %d header bytes", conn.ID, conn.header.Len())
		default:
			logger.Debug("HTTP connection %s: %v", conn.ID, err)
		}
		s.reject(conn, proto.StatusBadRequest)
		return stateDone
	}

	s.process(conn)
	return stateDone
}

// process runs the parse stages and the method handler on a complete header.
//
// Stage order:
//  1. request-line shape including the HTTP/1.1 token (400) and method (501)
//  2. target resolution and open (404, 403)
//  3. version, already enforced by stage 1 (400)
//  4. header lines and Content-Length (400)
//
// Each stage is skipped once an earlier one failed the request.
func (s *HTTPAdapter) process(conn *Connection) {
	start := time.Now()
	header := conn.header.Bytes()

	req, rest := proto.ParseRequestLine(header)
	req.RequestID = proto.ScanRequestID(header)

	target := s.open(req)
	if target != nil {
		defer func() { _ = target.Close() }()
	}

	req.CheckVersion()
	req.ParseHeaders(rest)

	var (
		payload *os.File
		size    int64
	)
	if !req.Failed() {
		switch req.Method {
		case proto.MethodPut:
			s.handlePut(conn, req)
		case proto.MethodGet:
			payload, size = s.handleGet(req, target)
		case proto.MethodAppend:
			s.handleAppend(conn, req, target)
		}
	}
	if payload != nil {
		defer func() { _ = payload.Close() }()
	}

	s.complete(conn, req, payload, size, start)
}

// reject answers a connection whose header could not be read with code.
// Whatever request line was buffered is still audited.
func (s *HTTPAdapter) reject(conn *Connection, code proto.StatusCode) {
	header := conn.header.Bytes()

	req, _ := proto.ParseRequestLine(header)
	req.RequestID = proto.ScanRequestID(header)
	req.Status = code

	s.complete(conn, req, nil, 0, time.Now())
}

// complete writes the response, records the audit entry and metrics, and
// releases the connection.
//
// payload, when non-nil and the request succeeded, is sent as the body
// after a header announcing size bytes.
func (s *HTTPAdapter) complete(conn *Connection, req *proto.Request, payload *os.File, size int64, start time.Time) {
	if err := s.respond(conn, req, payload, size); err != nil {
		logger.Debug("HTTP connection %s: writing response: %v", conn.ID, err)
	}

	// A connection that closed before sending a method has nothing to audit.
	if req.MethodToken != "" {
		entry := audit.Entry{
			Time:      time.Now(),
			Method:    req.MethodToken,
			URI:       req.URI,
			Status:    int(req.Status),
			RequestID: req.RequestID,
		}
		if err := s.audit.Record(entry); err != nil {
			logger.Warn("HTTP audit record failed for %s: %v", entry, err)
		}
	}

	elapsed := time.Since(start)
	s.metrics.RecordRequest(req.Method.String(), int(req.Status), elapsed)
	logger.Debug("HTTP %s %s -> %s (conn %s, %v)", req.MethodToken, req.URI, req.Status, conn.ID, elapsed)

	s.release(conn, true)
}

// respond emits the response under the response lock.
func (s *HTTPAdapter) respond(conn *Connection, req *proto.Request, payload *os.File, size int64) error {
	mu := &conn.writeMu
	if s.config.ResponseLock == ResponseLockGlobal {
		mu = &s.responseMu
	}
	mu.Lock()
	defer mu.Unlock()

	if s.config.WriteTimeout > 0 {
		if err := conn.socket.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
			return err
		}
	}

	if payload == nil || req.Failed() {
		return proto.WriteStatus(conn.socket, req.Status)
	}

	if err := proto.WriteHeader(conn.socket, req.Status, size); err != nil {
		return err
	}
	n, err := conn.socket.SendFile(payload, 0, size)
	s.metrics.RecordBytesTransferred("out", n)
	return err
}
