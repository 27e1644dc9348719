package http1

import "strings"

// Header is one parsed header line.
type Header struct {
	Name  string
	Value string
}

// Request holds everything extracted from a header block.
//
// MethodToken and URI keep the raw first two fields of the request line, even
// when the line is malformed, so that every request can be audited.
type Request struct {
	Method      Method
	MethodToken string
	URI         string
	Version     string
	Headers     []Header

	// ContentLength is the declared body length. HasContentLength tells an
	// explicit zero apart from a missing header.
	ContentLength    int64
	HasContentLength bool

	// RequestID comes from the optional Request-Id header; 0 when absent or
	// unparsable.
	RequestID int64

	Status StatusCode
}

// NewRequest returns a request whose status starts out as 200 OK.
func NewRequest() *Request {
	return &Request{Status: StatusOK}
}

// Fail records code unless an earlier stage already failed the request.
func (r *Request) Fail(code StatusCode) {
	if r.Status.IsSuccess() {
		r.Status = code
	}
}

// Succeed records a success status (200 or 201) unless the request already
// failed.
func (r *Request) Succeed(code StatusCode) {
	if r.Status.IsSuccess() && code.IsSuccess() {
		r.Status = code
	}
}

// Failed reports whether a non-success status has been recorded.
func (r *Request) Failed() bool {
	return !r.Status.IsSuccess()
}

// header returns the first value of the named header. Names are compared
// case-insensitively.
func (r *Request) header(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}
