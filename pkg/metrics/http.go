package metrics

import "time"

// HTTPMetrics observes the HTTP adapter: requests, bytes moved, the
// connection queue and connection lifecycle.
//
// The adapter falls back to NewNoopHTTPMetrics when given nil.
type HTTPMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - method: "GET", "PUT", "APPEND" or "NONE" for unsupported methods
	//   - status: response status code
	//   - duration: time from dequeue of the completed header to close
	RecordRequest(method string, status int, duration time.Duration)

	// RecordBytesTransferred records body bytes moved.
	//
	// Parameters:
	//   - direction: "in" (request bodies) or "out" (GET responses)
	//   - bytes: number of bytes
	RecordBytesTransferred(direction string, bytes int64)

	// SetQueueDepth reports how many connections wait for a worker.
	SetQueueDepth(depth int)

	// RecordRequeue counts connections suspended and put back in the queue
	// because their socket was not ready.
	RecordRequeue()

	// SetActiveConnections reports accepted connections not yet closed.
	SetActiveConnections(count int32)

	RecordConnectionAccepted()
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections closed by shutdown
	// while still in flight.
	RecordConnectionForceClosed()
}

// NewNoopHTTPMetrics returns an HTTPMetrics that records nothing.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(string, int, time.Duration) {}
func (noopHTTPMetrics) RecordBytesTransferred(string, int64)     {}
func (noopHTTPMetrics) SetQueueDepth(int)                        {}
func (noopHTTPMetrics) RecordRequeue()                           {}
func (noopHTTPMetrics) SetActiveConnections(int32)               {}
func (noopHTTPMetrics) RecordConnectionAccepted()                {}
func (noopHTTPMetrics) RecordConnectionClosed()                  {}
func (noopHTTPMetrics) RecordConnectionForceClosed()             {}
