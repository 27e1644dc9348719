package http1

import (
	"fmt"
	"io"
	"strconv"

	"github.com/marmos91/dittohttp/internal/fdio"
)

// canned holds the full pre-rendered response for every known status.
var canned = func() map[StatusCode][]byte {
	codes := []StatusCode{
		StatusOK, StatusCreated, StatusBadRequest, StatusForbidden,
		StatusNotFound, StatusInternalServerError, StatusNotImplemented,
	}
	m := make(map[StatusCode][]byte, len(codes))
	for _, code := range codes {
		m[code] = renderCanned(code)
	}
	return m
}()

func renderCanned(code StatusCode) []byte {
	body := code.Reason() + "\n"
	return fmt.Appendf(nil, "%s %d %s\r\nContent-Length: %d\r\n\r\n%s",
		Version, int(code), code.Reason(), len(body), body)
}

// CannedResponse returns the complete response sent for code when no file
// body follows.
func CannedResponse(code StatusCode) []byte {
	if b, ok := canned[code]; ok {
		return b
	}
	return renderCanned(code)
}

// WriteStatus writes the canned response for code: status line,
// Content-Length and the reason phrase as body.
func WriteStatus(w io.Writer, code StatusCode) error {
	return fdio.WriteFull(w, CannedResponse(code))
}

// WriteHeader writes a status line and a Content-Length header announcing
// contentLength body bytes, which the caller sends afterwards.
func WriteHeader(w io.Writer, code StatusCode, contentLength int64) error {
	b := make([]byte, 0, 64)
	b = append(b, Version...)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(code), 10)
	b = append(b, ' ')
	b = append(b, code.Reason()...)
	b = append(b, "\r\nContent-Length: "...)
	b = strconv.AppendInt(b, contentLength, 10)
	b = append(b, "\r\n\r\n"...)
	return fdio.WriteFull(w, b)
}
