// Package audit records one line per completed request.
//
// The audit stream is separate from operational logging: each entry is the
// tuple (method, uri, status, request-id) as the client sent it, and sinks
// decide where it is kept.
package audit

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Entry is one audited request.
//
// Method and URI are the raw tokens of the request line, so malformed
// requests are audited with whatever the client sent.
type Entry struct {
	Time      time.Time `json:"time"`
	Method    string    `json:"method"`
	URI       string    `json:"uri"`
	Status    int       `json:"status"`
	RequestID int64     `json:"request_id"`
}

// Line renders e in the audit log format "method,uri,status,request-id\n".
// Fields are written as-is without quoting.
func (e Entry) Line() []byte {
	b := make([]byte, 0, len(e.Method)+len(e.URI)+24)
	b = append(b, e.Method...)
	b = append(b, ',')
	b = append(b, e.URI...)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(e.Status), 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, e.RequestID, 10)
	return append(b, '\n')
}

func (e Entry) String() string {
	line := e.Line()
	return string(line[:len(line)-1])
}

// Sink receives audit entries.
//
// Thread Safety:
// Implementations must be safe for concurrent use; workers record entries in
// parallel.
type Sink interface {
	// Record stores e. Entries with an empty Method are dropped.
	Record(e Entry) error

	// Close flushes and releases the sink.
	Close() error
}

// MultiSink fans entries out to several sinks.
type MultiSink []Sink

// Record writes e to every sink and joins their errors.
func (m MultiSink) Record(e Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Record(Entry) error { return nil }
func (Discard) Close() error       { return nil }

// New builds the sink named by kind from its decoded options.
//
// Supported kinds:
//   - "file": CSV lines to a file, stdout or stderr (FileConfig)
//   - "badger": persistent store queryable with Entries (BadgerConfig)
//   - "tee": both of the above, as a MultiSink
//   - "none": drop everything
func New(kind string, file FileConfig, badger BadgerConfig) (Sink, error) {
	switch kind {
	case "", "file":
		return NewFileSink(file)
	case "badger":
		return NewBadgerSink(badger)
	case "tee":
		fileSink, err := NewFileSink(file)
		if err != nil {
			return nil, err
		}
		badgerSink, err := NewBadgerSink(badger)
		if err != nil {
			_ = fileSink.Close()
			return nil, err
		}
		return MultiSink{fileSink, badgerSink}, nil
	case "none":
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown audit sink type: %q", kind)
	}
}
