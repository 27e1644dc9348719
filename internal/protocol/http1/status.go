package http1

import "strconv"

// StatusCode is a response status.
type StatusCode int

const (
	StatusOK                  StatusCode = 200
	StatusCreated             StatusCode = 201
	StatusBadRequest          StatusCode = 400
	StatusForbidden           StatusCode = 403
	StatusNotFound            StatusCode = 404
	StatusInternalServerError StatusCode = 500
	StatusNotImplemented      StatusCode = 501
)

// Reason returns the reason phrase sent on the status line.
func (s StatusCode) Reason() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusCreated:
		return "Created"
	case StatusBadRequest:
		return "Bad Request"
	case StatusForbidden:
		return "Forbidden"
	case StatusNotFound:
		return "Not Found"
	case StatusInternalServerError:
		return "Internal Server Error"
	case StatusNotImplemented:
		return "Not Implemented"
	default:
		return "Unknown"
	}
}

// IsSuccess reports whether s is a 2xx status.
func (s StatusCode) IsSuccess() bool {
	return s >= 200 && s < 300
}

func (s StatusCode) String() string {
	return strconv.Itoa(int(s)) + " " + s.Reason()
}
