package http1

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittohttp/internal/logger"
	"github.com/marmos91/dittohttp/internal/queue"
	"github.com/marmos91/dittohttp/internal/ratelimiter"
	"github.com/marmos91/dittohttp/pkg/audit"
	"github.com/marmos91/dittohttp/pkg/metrics"
	"github.com/marmos91/dittohttp/pkg/store/fs"
)

// Response lock scopes.
const (
	// ResponseLockConnection serializes response emission per connection.
	ResponseLockConnection = "connection"

	// ResponseLockGlobal serializes response emission across all connections.
	ResponseLockGlobal = "global"
)

// HTTPAdapter implements the adapter.Adapter interface for the HTTP file
// protocol (GET, PUT and APPEND over HTTP/1.1 request lines).
//
// Architecture:
// A single accept loop wraps every accepted socket in a Connection and
// submits it to a bounded queue. A fixed pool of workers takes connections
// off the queue, probes them for readability and drives one request each.
// A connection whose header has not fully arrived is suspended: it goes back
// to the queue with its partial header intact and the worker moves on.
// Every connection serves exactly one request and is then closed.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled (in-flight body transfers abort between chunks)
//  4. Queue closed; connections still queued are closed unserved
//  5. Wait for in-flight connections to complete (up to ShutdownTimeout)
//  6. Force-close any remaining connections after timeout
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses
// sync.Once so Stop() may be called any number of times.
type HTTPAdapter struct {
	// config holds the adapter configuration (port, pool size, timeouts)
	config HTTPConfig

	// listener accepts client connections; guarded by listenerMu because
	// Stop() may race with Serve() setting it
	listener   net.Listener
	listenerMu sync.Mutex

	// store resolves URIs and performs the file mutations
	store *fs.Store

	// audit receives one entry per completed request
	audit audit.Sink

	// metrics is never nil; a no-op implementation is used when disabled
	metrics metrics.HTTPMetrics

	// queue hands accepted and suspended connections to the workers
	queue *queue.Queue[*Connection]

	// limiter throttles the accept loop; nil means unlimited
	limiter *ratelimiter.RateLimiter

	// responseMu serializes response emission when ResponseLock is global
	responseMu sync.Mutex

	// workers tracks the worker goroutines
	workers sync.WaitGroup

	// activeConns tracks every accepted connection until it is closed
	activeConns sync.WaitGroup

	// connCount mirrors activeConns for logging and metrics
	connCount atomic.Int32

	// activeConnections maps connection ID to *Connection for forced closure
	activeConnections sync.Map

	// shutdownOnce ensures shutdown is only initiated once
	shutdownOnce sync.Once

	// shutdown is closed by initiateShutdown()
	shutdown chan struct{}

	// shutdownCtx is cancelled during shutdown to abort in-flight transfers
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc
}

// HTTPConfig holds configuration parameters for the HTTP adapter.
//
// Default values (applied by New if zero):
//   - Threads: 4
//   - QueueCapacity: 2048
//   - HeaderBufferSize: 2048
//   - StreamChunkSize: 2048
//   - ProbeTimeout: 100ms
//   - HeaderTimeout: 30s
//   - ReadTimeout: 30s
//   - WriteTimeout: 30s
//   - LingerTimeout: 1s
//   - ShutdownTimeout: 30s
//   - ResponseLock: "connection"
//   - MetricsLogInterval: 5m
//
// Port has no default: 0 lets the kernel pick a free port, which Port()
// reports once the adapter is listening.
type HTTPConfig struct {
	// Enabled controls whether the HTTP adapter is started.
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port to listen on.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Threads is the number of workers serving connections.
	Threads int `mapstructure:"threads" validate:"min=0"`

	// QueueCapacity bounds the number of connections waiting for a worker.
	// The accept loop blocks while the queue is full.
	QueueCapacity int `mapstructure:"queue_capacity" validate:"min=0"`

	// HeaderBufferSize is the largest header block accepted, terminator
	// included. Larger headers are answered with 400.
	HeaderBufferSize int `mapstructure:"header_buffer_size" validate:"min=0"`

	// StreamChunkSize is the largest slice of a request body moved per
	// read.
	StreamChunkSize int `mapstructure:"stream_chunk_size" validate:"min=0"`

	// ProbeTimeout is how long a worker polls a dequeued socket for
	// readability before reading anyway.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" validate:"min=0"`

	// HeaderTimeout bounds the time from accept until the header block is
	// complete. A connection that keeps suspending past it gets a 400.
	HeaderTimeout time.Duration `mapstructure:"header_timeout" validate:"min=0"`

	// ReadTimeout bounds reading a request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing a response, GET bodies included.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// LingerTimeout is how long a connection keeps draining client input
	// after its response was sent and its write side shut down. Closing
	// with unread input would reset the connection and could discard the
	// response on the client. Negative disables lingering.
	LingerTimeout time.Duration `mapstructure:"linger_timeout"`

	// ShutdownTimeout is the maximum duration to wait for in-flight
	// connections during graceful shutdown before force-closing them.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// ResponseLock selects the scope of the response lock:
	// "connection" or "global".
	ResponseLock string `mapstructure:"response_lock" validate:"omitempty,oneof=connection global"`

	// MaxAcceptRate limits accepted connections per second. 0 is unlimited.
	MaxAcceptRate float64 `mapstructure:"max_accept_rate" validate:"min=0"`

	// AcceptBurst is the number of connections accepted back to back
	// before MaxAcceptRate applies.
	AcceptBurst int `mapstructure:"accept_burst" validate:"min=0"`

	// MetricsLogInterval is the interval at which connection and queue
	// gauges are logged.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"min=0"`
}

// Defaults for HTTPConfig.
const (
	DefaultThreads            = 4
	DefaultProbeTimeout       = 100 * time.Millisecond
	DefaultHeaderTimeout      = 30 * time.Second
	DefaultReadTimeout        = 30 * time.Second
	DefaultWriteTimeout       = 30 * time.Second
	DefaultLingerTimeout      = time.Second
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultMetricsLogInterval = 5 * time.Minute
)

// applyDefaults fills in zero values with sensible defaults.
func (c *HTTPConfig) applyDefaults() {
	// Note: Enabled is defaulted in pkg/config/defaults.go so that an
	// explicit false in a config file survives.

	if c.Threads == 0 {
		c.Threads = DefaultThreads
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = queue.DefaultCapacity
	}
	if c.HeaderBufferSize == 0 {
		c.HeaderBufferSize = 2048
	}
	if c.StreamChunkSize == 0 {
		c.StreamChunkSize = 2048
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.HeaderTimeout == 0 {
		c.HeaderTimeout = DefaultHeaderTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.LingerTimeout == 0 {
		c.LingerTimeout = DefaultLingerTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.ResponseLock == "" {
		c.ResponseLock = ResponseLockConnection
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = DefaultMetricsLogInterval
	}
}

// validate checks the configuration after defaults have been applied.
func (c *HTTPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.Threads < 1 {
		return fmt.Errorf("invalid Threads %d: must be >= 1", c.Threads)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("invalid QueueCapacity %d: must be >= 1", c.QueueCapacity)
	}
	if c.HeaderBufferSize < 4 {
		return fmt.Errorf("invalid HeaderBufferSize %d: must be >= 4", c.HeaderBufferSize)
	}
	if c.StreamChunkSize < 1 {
		return fmt.Errorf("invalid StreamChunkSize %d: must be >= 1", c.StreamChunkSize)
	}
	if c.ProbeTimeout < 0 {
		return fmt.Errorf("invalid ProbeTimeout %v: must be >= 0", c.ProbeTimeout)
	}
	if c.HeaderTimeout < 0 {
		return fmt.Errorf("invalid HeaderTimeout %v: must be >= 0", c.HeaderTimeout)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid ReadTimeout %v: must be >= 0", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.ResponseLock != ResponseLockConnection && c.ResponseLock != ResponseLockGlobal {
		return fmt.Errorf("invalid ResponseLock %q: must be %q or %q",
			c.ResponseLock, ResponseLockConnection, ResponseLockGlobal)
	}
	if c.MaxAcceptRate < 0 {
		return fmt.Errorf("invalid MaxAcceptRate %v: must be >= 0", c.MaxAcceptRate)
	}
	if c.AcceptBurst < 0 {
		return fmt.Errorf("invalid AcceptBurst %d: must be >= 0", c.AcceptBurst)
	}
	return nil
}

// New creates a new HTTPAdapter with the specified configuration.
//
// The adapter is created in a stopped state. Call SetStores() to inject the
// file store and audit sink, then call Serve() to start accepting
// connections.
//
// Parameters:
//   - config: adapter configuration; zero values are replaced with defaults
//   - httpMetrics: optional metrics collector (nil for no metrics)
//
// Panics if config validation fails.
func New(config HTTPConfig, httpMetrics metrics.HTTPMetrics) *HTTPAdapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid HTTP config: %v", err))
	}

	if httpMetrics == nil {
		httpMetrics = metrics.NewNoopHTTPMetrics()
	}

	limiter := ratelimiter.New(config.MaxAcceptRate, config.AcceptBurst)
	if limiter != nil {
		logger.Debug("HTTP accept rate limit: %.1f/s (burst %d)", limiter.Limit(), config.AcceptBurst)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &HTTPAdapter{
		config:         config,
		audit:          audit.Discard{},
		metrics:        httpMetrics,
		queue:          queue.New[*Connection](config.QueueCapacity),
		limiter:        limiter,
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
}

// admit takes one accept token, waiting for the bucket to refill when it is
// empty. It fails once shutdown has begun.
func (s *HTTPAdapter) admit() error {
	if err := s.shutdownCtx.Err(); err != nil {
		return err
	}
	if s.limiter.Allow() {
		return nil
	}
	logger.Debug("HTTP accept throttled (%.2f tokens in bucket)", s.limiter.Tokens())
	return s.limiter.Wait(s.shutdownCtx)
}

// SetStores injects the file store and the audit sink. A nil sink discards
// audit entries.
func (s *HTTPAdapter) SetStores(store *fs.Store, sink audit.Sink) {
	s.store = store
	if sink == nil {
		sink = audit.Discard{}
	}
	s.audit = sink
	logger.Debug("HTTP store configured: root=%s", store.Root())
}

// Serve starts the HTTP server and blocks until the context is cancelled or
// Stop() is called.
//
// Serve listens on the configured port, starts the worker pool and then
// runs the accept loop. Each accepted connection is submitted to the queue;
// when the queue is full the accept loop blocks until a worker takes one.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener fails to start or connections had to be
//     force-closed
//
// Thread safety:
// Serve() should only be called once per HTTPAdapter instance.
func (s *HTTPAdapter) Serve(ctx context.Context) error {
	if s.store == nil {
		return errors.New("HTTP adapter has no file store: call SetStores before Serve")
	}

	select {
	case <-s.shutdown:
		return nil
	default:
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener on port %d: %w", s.config.Port, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()

	// Stop() may have run between the check above and storing the listener.
	select {
	case <-s.shutdown:
		_ = listener.Close()
		return nil
	default:
	}

	logger.Info("HTTP server listening on port %d", s.Port())
	logger.Debug("HTTP config: threads=%d queue_capacity=%d header_buffer=%d probe_timeout=%v response_lock=%s",
		s.config.Threads, s.config.QueueCapacity, s.config.HeaderBufferSize, s.config.ProbeTimeout, s.config.ResponseLock)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("HTTP shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(s.shutdownCtx)
	}

	s.startWorkers()

	for {
		if err := s.admit(); err != nil {
			return s.gracefulShutdown()
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting HTTP connection: %v", err)
				continue
			}
		}

		conn, err := newConnection(tcpConn, s.config.HeaderBufferSize)
		if err != nil {
			logger.Warn("Rejecting HTTP connection from %s: %v", tcpConn.RemoteAddr(), err)
			_ = tcpConn.Close()
			continue
		}

		s.track(conn)

		if err := s.queue.Submit(conn); err != nil {
			// Queue closed by shutdown.
			s.release(conn, false)
			continue
		}
		s.metrics.SetQueueDepth(s.queue.Len())
	}
}

// track registers an accepted connection for graceful and forced shutdown.
func (s *HTTPAdapter) track(conn *Connection) {
	s.activeConns.Add(1)
	current := s.connCount.Add(1)
	s.activeConnections.Store(conn.ID.String(), conn)

	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(current)

	logger.Debug("HTTP connection %s accepted from %s (active: %d)",
		conn.ID, conn.RemoteAddr(), current)
}

// release closes conn and unregisters it. Only the first call has an
// effect.
//
// With graceful set the write side is shut down first and the connection
// lingers in the background, draining client input, before it is closed.
func (s *HTTPAdapter) release(conn *Connection, graceful bool) {
	if !conn.released.CompareAndSwap(false, true) {
		return
	}

	done := func() {
		s.activeConnections.Delete(conn.ID.String())
		current := s.connCount.Add(-1)

		s.metrics.RecordConnectionClosed()
		s.metrics.SetActiveConnections(current)

		logger.Debug("HTTP connection %s closed (active: %d)", conn.ID, current)
		s.activeConns.Done()
	}

	if !graceful || s.config.LingerTimeout < 0 {
		if err := conn.Close(); err != nil {
			logger.Debug("Error closing HTTP connection %s: %v", conn.ID, err)
		}
		done()
		return
	}

	go func() {
		conn.lingerClose(s.config.LingerTimeout)
		done()
	}()
}

// initiateShutdown signals the server to begin graceful shutdown.
//
// Shutdown sequence:
//  1. Close shutdown channel (signals accept loop to stop)
//  2. Close listener (stops accepting new connections)
//  3. Cancel shutdownCtx (aborts body transfers between chunks)
//  4. Close the queue, which stops the workers once they finish their
//     current connection, and close every connection still queued
//
// Thread safety:
// Safe to call multiple times and from multiple goroutines.
func (s *HTTPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("HTTP shutdown initiated")

		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing HTTP listener: %v", err)
			}
		}
		s.listenerMu.Unlock()

		s.cancelRequests()

		drained := s.queue.Close()
		for _, conn := range drained {
			s.release(conn, false)
		}
		s.metrics.SetQueueDepth(0)
		if len(drained) > 0 {
			logger.Debug("HTTP shutdown closed %d queued connection(s)", len(drained))
		}
	})
}

// waitIdle returns a channel closed once every connection and worker is
// done.
func (s *HTTPAdapter) waitIdle() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		s.workers.Wait()
		close(done)
	}()
	return done
}

// gracefulShutdown waits for in-flight connections to complete, or
// force-closes them once ShutdownTimeout expires.
//
// Returns:
//   - nil if all connections completed gracefully
//   - error if shutdown timeout exceeded (connections were force-closed)
func (s *HTTPAdapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("HTTP graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.ShutdownTimeout)

	select {
	case <-s.waitIdle():
		logger.Info("HTTP graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("HTTP shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()

		return fmt.Errorf("HTTP shutdown timeout: %d connections force-closed", remaining)
	}
}

// forceCloseConnections closes the sockets of all tracked connections. Any
// worker blocked on one of them fails its I/O and releases the connection.
func (s *HTTPAdapter) forceCloseConnections() {
	logger.Info("Force-closing active HTTP connections")

	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		conn := value.(*Connection)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing HTTP connection %s: %v", key, err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed()
			logger.Debug("Force-closed HTTP connection %s from %s", key, conn.RemoteAddr())
		}
		return true
	})

	if closedCount == 0 {
		logger.Debug("No HTTP connections to force-close")
	} else {
		logger.Info("Force-closed %d HTTP connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown of the HTTP server and waits until every
// connection is closed or ctx is done.
//
// Returns:
//   - nil on successful graceful shutdown
//   - ctx.Err() if ctx ended first
//
// Thread safety:
// Safe to call concurrently from multiple goroutines.
func (s *HTTPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	logger.Info("HTTP graceful shutdown: waiting for %d active connection(s) (context timeout)",
		s.connCount.Load())

	select {
	case <-s.waitIdle():
		logger.Info("HTTP graceful shutdown complete: all connections closed")
		return nil

	case <-ctx.Done():
		logger.Warn("HTTP shutdown context cancelled: %d connection(s) still active: %v",
			s.connCount.Load(), ctx.Err())
		return ctx.Err()
	}
}

// logMetrics periodically logs connection and queue gauges until ctx ends.
func (s *HTTPAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("HTTP metrics: active_connections=%d queued=%d",
				s.connCount.Load(), s.queue.Len())
		}
	}
}

// GetActiveConnections returns the current number of open connections.
func (s *HTTPAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Addr returns the listener address, or nil before Serve() is listening.
func (s *HTTPAdapter) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound port once listening, and the configured port
// before that.
func (s *HTTPAdapter) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.config.Port
}

// Protocol returns "HTTP".
func (s *HTTPAdapter) Protocol() string {
	return "HTTP"
}

// Config returns the effective configuration, defaults applied.
func (s *HTTPAdapter) Config() HTTPConfig {
	return s.config
}
