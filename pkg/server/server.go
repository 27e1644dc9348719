package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittohttp/internal/logger"
	"github.com/marmos91/dittohttp/pkg/adapter"
	"github.com/marmos91/dittohttp/pkg/audit"
	"github.com/marmos91/dittohttp/pkg/metrics"
	"github.com/marmos91/dittohttp/pkg/store/fs"
)

// DefaultStopTimeout bounds the Stop calls issued to adapters during shutdown.
const DefaultStopTimeout = 30 * time.Second

// ErrAlreadyServed is returned by Serve on every call after the first.
var ErrAlreadyServed = errors.New("server: Serve already called")

// DittoServer manages the lifecycle of protocol adapters that share one file
// store and one audit sink.
//
// Lifecycle:
//  1. Creation: New() with the store and audit sink
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters and the optional metrics server
//  4. Shutdown: Context cancellation stops adapters in reverse order, waits
//     for them, then closes the audit sink
//
// Thread safety:
// DittoServer is safe for concurrent use. Serve() runs at most once.
type DittoServer struct {
	// store is the shared file store for all adapters
	store *fs.Store

	// audit receives one entry per completed request from every adapter
	audit audit.Sink

	// metricsServer exposes Prometheus metrics, nil when disabled
	metricsServer *metrics.Server

	// stopTimeout bounds adapter Stop() calls
	stopTimeout time.Duration

	// adapters contains all registered protocol adapters
	adapters []adapter.Adapter

	// mu protects adapters and served
	mu     sync.RWMutex
	served bool
}

// New creates a new DittoServer.
//
// The store and sink are shared by every adapter added to this server. The
// server owns the sink from here on and closes it when Serve returns. A nil
// sink drops entries.
//
// Panics if store is nil (programmer error).
func New(store *fs.Store, sink audit.Sink) *DittoServer {
	if store == nil {
		panic("file store cannot be nil")
	}
	if sink == nil {
		sink = audit.Discard{}
	}

	return &DittoServer{
		store:       store,
		audit:       sink,
		stopTimeout: DefaultStopTimeout,
		adapters:    make([]adapter.Adapter, 0, 1),
	}
}

// SetMetricsServer registers a metrics server started and stopped together
// with the adapters. Must be called before Serve.
func (s *DittoServer) SetMetricsServer(m *metrics.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricsServer = m
}

// SetStopTimeout changes the time adapters get to drain on shutdown.
// Non-positive values are ignored.
func (s *DittoServer) SetStopTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimeout = d
}

// AddAdapter injects the shared store and sink into a and registers it.
//
// Returns an error if another adapter already serves the same protocol or
// port. Port 0 (ephemeral) never conflicts.
//
// Panics if a is nil or Serve() has already been called.
func (s *DittoServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetStores(s.store, s.audit)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)

	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or one of them fails.
//
// Shutdown behavior:
// When the context is cancelled or an adapter fails, every adapter receives
// Stop() in reverse registration order with a shared timeout. Serve waits for
// all adapter goroutines, stops the metrics server and closes the audit sink.
//
// Returns:
//   - context.Canceled (or the context's error) after a signalled shutdown
//   - the first adapter error when an adapter failed
//   - ErrAlreadyServed on repeated calls
func (s *DittoServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	metricsServer := s.metricsServer
	stopTimeout := s.stopTimeout
	s.mu.Unlock()

	defer s.closeAudit()

	logger.Info("Starting DittoServer with %d adapter(s)", len(adapters))

	// Buffered so failing adapters never block
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			err := a.Serve(ctx)
			switch {
			case err == nil:
				if ctx.Err() == nil {
					// Returning early without an error still ends the server
					errChan <- adapterError{protocol: protocol, err: errors.New("stopped unexpectedly")}
					return
				}
				logger.Info("%s adapter stopped", protocol)
			case errors.Is(err, context.Canceled) || ctx.Err() != nil:
				logger.Debug("%s adapter stopped gracefully", protocol)
			default:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			}
		}(adp)
	}

	// The metrics server follows its own context so it outlives the
	// adapters' drain and stops last.
	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	metricsDone := make(chan struct{})
	if metricsServer != nil {
		go func() {
			defer close(metricsDone)
			if err := metricsServer.Start(metricsCtx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	} else {
		close(metricsDone)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	s.stopAllAdapters(adapters, stopTimeout)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	stopMetrics()
	<-metricsDone

	logger.Info("DittoServer stopped")

	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters calls Stop on every adapter in reverse registration order.
// Errors are logged and do not prevent stopping the remaining adapters.
func (s *DittoServer) stopAllAdapters(adapters []adapter.Adapter, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		} else {
			logger.Debug("%s adapter stopped", protocol)
		}
	}
}

func (s *DittoServer) closeAudit() {
	if err := s.audit.Close(); err != nil {
		logger.Error("Failed to close audit sink: %v", err)
	}
}

// Adapters returns a snapshot of currently registered adapters.
func (s *DittoServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
