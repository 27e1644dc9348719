package http1

import (
	"bytes"
	"strconv"
	"strings"
)

// Version is the only protocol version accepted.
const Version = "HTTP/1.1"

const (
	headerContentLength = "Content-Length"
	headerRequestID     = "Request-Id"
)

var crlf = []byte("\r\n")

// ParseRequestLine parses the first line of a header block.
//
// It covers the first two parsing stages: the request-line shape (400 on
// mismatch) and method classification (501 for unknown methods). The shape
// includes the literal HTTP/1.1 version token, so any other version is a 400
// before the method is classified or the target is opened.
//
// Parameters:
//   - header: the accumulated header block, ending with CRLF CRLF
//
// Returns:
//   - the request, whose Status reflects the outcome of both stages
//   - the header lines following the request line
func ParseRequestLine(header []byte) (*Request, []byte) {
	req := NewRequest()

	end := bytes.Index(header, crlf)
	if end < 0 {
		req.MethodToken, req.URI = auditFields(header)
		req.Fail(StatusBadRequest)
		return req, nil
	}
	line, rest := header[:end], header[end+len(crlf):]
	req.MethodToken, req.URI = auditFields(line)

	method, uri, version, ok := splitRequestLine(line)
	if !ok {
		req.Fail(StatusBadRequest)
		return req, rest
	}

	req.MethodToken = method
	req.URI = uri
	req.Version = version

	req.Method = ParseMethod(method)
	if req.Method == MethodNone {
		req.Fail(StatusNotImplemented)
	}
	return req, rest
}

// CheckVersion fails the request with 400 unless the version token is
// exactly HTTP/1.1. ParseRequestLine already enforces this; the check guards
// requests assembled elsewhere.
func (r *Request) CheckVersion() {
	if r.Failed() {
		return
	}
	if r.Version != Version {
		r.Fail(StatusBadRequest)
	}
}

// ParseHeaders parses the header lines following the request line, up to the
// blank line.
//
// Any malformed line, a negative or non-numeric Content-Length, conflicting
// Content-Length values, or a missing Content-Length on a method with a body
// fails the request with 400.
func (r *Request) ParseHeaders(block []byte) {
	if r.Failed() {
		return
	}

	for {
		end := bytes.Index(block, crlf)
		if end < 0 {
			// The block must end with an empty line.
			r.Fail(StatusBadRequest)
			return
		}
		line := block[:end]
		block = block[end+len(crlf):]

		if len(line) == 0 {
			break
		}

		name, value, ok := splitHeaderLine(line)
		if !ok {
			r.Fail(StatusBadRequest)
			return
		}
		r.Headers = append(r.Headers, Header{Name: name, Value: value})

		switch {
		case strings.EqualFold(name, headerContentLength):
			n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil || n < 0 {
				r.Fail(StatusBadRequest)
				return
			}
			if r.HasContentLength && r.ContentLength != n {
				r.Fail(StatusBadRequest)
				return
			}
			r.ContentLength = n
			r.HasContentLength = true
		case strings.EqualFold(name, headerRequestID):
			r.RequestID = parseRequestID(value)
		}
	}

	if r.Method.HasBody() && !r.HasContentLength {
		r.Fail(StatusBadRequest)
	}
}

// ScanRequestID looks for a Request-Id header anywhere in a header block
// without validating the rest of it. Requests that fail before their headers
// are parsed still get an id in the audit log this way.
func ScanRequestID(header []byte) int64 {
	for len(header) > 0 {
		end := bytes.Index(header, crlf)
		if end < 0 {
			end = len(header)
		}
		line := header[:end]
		header = header[min(end+len(crlf), len(header)):]

		name, value, ok := splitHeaderLine(line)
		if ok && strings.EqualFold(name, headerRequestID) {
			return parseRequestID(value)
		}
	}
	return 0
}

func parseRequestID(value string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// splitRequestLine tokenizes "METHOD SP+ URI SP+ HTTP/1.1".
func splitRequestLine(line []byte) (method, uri, version string, ok bool) {
	i := 0
	for i < len(line) && isAlpha(line[i]) {
		i++
	}
	if i == 0 {
		return "", "", "", false
	}
	method = string(line[:i])

	j := skipSpaces(line, i)
	if j == i {
		return "", "", "", false
	}

	k := j
	for k < len(line) && isURIChar(line[k]) {
		k++
	}
	if !validURI(line[j:k]) {
		return "", "", "", false
	}
	uri = string(line[j:k])

	v := skipSpaces(line, k)
	if v == k || string(line[v:]) != Version {
		return "", "", "", false
	}
	version = Version

	return method, uri, version, true
}

// validURI checks that uri is rooted, non-trivial and does not end in "/".
func validURI(uri []byte) bool {
	return len(uri) >= 2 && uri[0] == '/' && uri[len(uri)-1] != '/'
}

// splitHeaderLine splits "name: value".
func splitHeaderLine(line []byte) (name, value string, ok bool) {
	i := 0
	for i < len(line) && isTokenChar(line[i]) {
		i++
	}
	if i == 0 || i+2 > len(line) || line[i] != ':' || line[i+1] != ' ' {
		return "", "", false
	}

	v := line[i+2:]
	if len(v) == 0 || bytes.ContainsAny(v, "\r\n") {
		return "", "", false
	}
	return string(line[:i]), string(v), true
}

// auditFields returns the first two space-separated fields of line.
func auditFields(line []byte) (string, string) {
	if end := bytes.Index(line, crlf); end >= 0 {
		line = line[:end]
	}
	fields := bytes.Fields(line)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return string(fields[0]), ""
	default:
		return string(fields[0]), string(fields[1])
	}
}

func skipSpaces(b []byte, i int) int {
	for i < len(b) && b[i] == ' ' {
		i++
	}
	return i
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isURIChar(c byte) bool {
	return isAlpha(c) || isDigit(c) || c == '/' || c == '.' || c == '_'
}

func isTokenChar(c byte) bool {
	return isAlpha(c) || isDigit(c) || c == '_' || c == '.' || c == '-'
}
