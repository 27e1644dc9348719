package adapter

import (
	"context"

	"github.com/marmos91/dittohttp/pkg/audit"
	"github.com/marmos91/dittohttp/pkg/store/fs"
)

// Adapter represents a protocol-specific server adapter that can be managed by DittoServer.
//
// Each adapter implements a wire protocol in front of the file store and
// provides a unified interface for lifecycle management. All adapters share
// the same store and audit sink.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Backend injection: SetStores() provides the file store and audit sink
//  3. Startup: Serve() starts the protocol server and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetStores() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Wait for active operations to complete (with timeout)
	//   - Clean up resources
	//   - Return context.Canceled or nil
	//
	// If Serve returns before context cancellation, DittoServer treats it as
	// a fatal error and stops all other adapters.
	//
	// Parameters:
	//   - ctx: Controls the server lifecycle. Cancellation triggers shutdown.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - context.Canceled if cancelled via context
	//   - error if startup fails or shutdown is not graceful
	Serve(ctx context.Context) error

	// SetStores injects the file store requests operate on and the sink that
	// receives one audit entry per completed request.
	//
	// Called exactly once by DittoServer before Serve().
	SetStores(store *fs.Store, sink audit.Sink)

	// Stop initiates graceful shutdown of the protocol server.
	//
	// This method may be called concurrently with Serve() during DittoServer shutdown.
	// Implementations must:
	//   - Be safe to call multiple times (idempotent)
	//   - Be safe to call concurrently with Serve()
	//   - Respect the context timeout for shutdown operations
	//   - Clean up all resources (listeners, connections, goroutines)
	//
	// Parameters:
	//   - ctx: Controls the shutdown timeout. When cancelled, force cleanup.
	//
	// Returns:
	//   - nil if shutdown completed successfully
	//   - error if shutdown exceeded timeout or encountered errors
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	//
	// The returned value should be constant for the lifecycle of the adapter.
	Protocol() string

	// Port returns the TCP port the adapter is listening on.
	//
	// When configured with port 0 the kernel picks one; Port then reports the
	// bound port once Serve() has started listening.
	Port() int
}
