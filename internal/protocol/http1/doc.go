// Package http1 implements the wire format served by the file server: a
// request line and header block parsed by hand from a fixed-size buffer, and
// canned or length-prefixed responses.
//
// # Request grammar
//
//	request-line = method 1*SP uri 1*SP version CRLF
//	method       = 1*ALPHA
//	uri          = "/" *( "/" / ALPHA / DIGIT / "." / "_" ), not ending in "/"
//	version      = "HTTP/1.1"
//	header-line  = name ": " value CRLF
//	name         = 1*( ALPHA / DIGIT / "_" / "." / "-" )
//	value        = 1*( any byte except CR and LF )
//
// The header block ends with an empty line. Only Content-Length and
// Request-Id carry meaning; other headers are kept but ignored.
//
// # Status propagation
//
// Parsing runs in stages and each stage may fail the request. Once a
// non-success status is recorded, later stages leave it untouched, so the
// first failure is the one reported to the client.
package http1
