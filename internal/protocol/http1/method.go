package http1

import "strings"

// Method is a recognized request method.
type Method int

const (
	// MethodNone marks a syntactically valid but unsupported method.
	MethodNone Method = iota
	MethodGet
	MethodPut
	MethodAppend
)

// ParseMethod classifies a method token. Matching is case-insensitive and
// exact, so "PUTX" is not PUT.
func ParseMethod(token string) Method {
	switch {
	case strings.EqualFold(token, "GET"):
		return MethodGet
	case strings.EqualFold(token, "PUT"):
		return MethodPut
	case strings.EqualFold(token, "APPEND"):
		return MethodAppend
	default:
		return MethodNone
	}
}

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPut:
		return "PUT"
	case MethodAppend:
		return "APPEND"
	default:
		return "NONE"
	}
}

// HasBody reports whether requests with this method carry a body.
func (m Method) HasBody() bool {
	return m == MethodPut || m == MethodAppend
}
