package http1

import (
	"time"

	"github.com/marmos91/dittohttp/internal/logger"
	proto "github.com/marmos91/dittohttp/internal/protocol/http1"
)

// connState is the outcome of driving a connection once.
type connState int

const (
	// stateDone means the connection was answered and released.
	stateDone connState = iota

	// stateSuspended means the header is incomplete and the socket had
	// nothing more to read; the connection must be queued again.
	stateSuspended
)

func (s *HTTPAdapter) startWorkers() {
	for i := 0; i < s.config.Threads; i++ {
		s.workers.Add(1)
		go s.worker(i)
	}
	logger.Debug("HTTP worker pool started: %d worker(s)", s.config.Threads)
}

// worker takes connections off the queue until the queue is closed.
func (s *HTTPAdapter) worker(id int) {
	defer s.workers.Done()

	for {
		conn, err := s.queue.Take()
		if err != nil {
			logger.Debug("HTTP worker %d stopping: %v", id, err)
			return
		}
		s.metrics.SetQueueDepth(s.queue.Len())

		s.drive(conn)
	}
}

// drive runs conn until it is released or handed back to the queue.
//
// A suspended connection is re-enqueued without blocking. If the queue is
// full the worker keeps the connection and probes it again rather than wait
// on producers that may themselves be waiting on workers.
func (s *HTTPAdapter) drive(conn *Connection) {
	for {
		if s.shutdownCtx.Err() != nil {
			s.release(conn, false)
			return
		}

		if s.step(conn) == stateDone {
			return
		}

		conn.requeues++
		s.metrics.RecordRequeue()

		queued, err := s.queue.TrySubmit(conn)
		if err != nil {
			s.release(conn, false)
			return
		}
		if queued {
			return
		}
	}
}

// step probes conn and, unless the probe failed, runs the request pipeline
// on it.
func (s *HTTPAdapter) step(conn *Connection) connState {
	if _, err := conn.socket.Probe(s.config.ProbeTimeout); err != nil {
		logger.Debug("HTTP connection %s: probe failed: %v", conn.ID, err)
		if s.headerExpired(conn) {
			s.reject(conn, proto.StatusBadRequest)
			return stateDone
		}
		return stateSuspended
	}

	// A probe that timed out still falls through: the read below decides,
	// and suspends the connection if nothing arrived.
	return s.serveConnection(conn)
}

// headerExpired reports whether conn has spent longer than HeaderTimeout
// without completing its header.
func (s *HTTPAdapter) headerExpired(conn *Connection) bool {
	return s.config.HeaderTimeout > 0 && time.Since(conn.acceptedAt) > s.config.HeaderTimeout
}
