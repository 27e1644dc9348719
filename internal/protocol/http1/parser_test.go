package http1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestLine(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		wantStatus  StatusCode
		wantMethod  Method
		wantToken   string
		wantURI     string
		wantVersion string
	}{
		{
			name:        "get",
			header:      "GET /foo.txt HTTP/1.1\r\n\r\n",
			wantStatus:  StatusOK,
			wantMethod:  MethodGet,
			wantToken:   "GET",
			wantURI:     "/foo.txt",
			wantVersion: "HTTP/1.1",
		},
		{
			name:        "nested path and lowercase method",
			header:      "put /a/b_c/d.1 HTTP/1.1\r\n\r\n",
			wantStatus:  StatusOK,
			wantMethod:  MethodPut,
			wantToken:   "put",
			wantURI:     "/a/b_c/d.1",
			wantVersion: "HTTP/1.1",
		},
		{
			name:        "multiple spaces",
			header:      "APPEND   /log    HTTP/1.1\r\n\r\n",
			wantStatus:  StatusOK,
			wantMethod:  MethodAppend,
			wantToken:   "APPEND",
			wantURI:     "/log",
			wantVersion: "HTTP/1.1",
		},
		{
			name:        "unknown method",
			header:      "DELETE /x HTTP/1.1\r\n\r\n",
			wantStatus:  StatusNotImplemented,
			wantMethod:  MethodNone,
			wantToken:   "DELETE",
			wantURI:     "/x",
			wantVersion: "HTTP/1.1",
		},
		{
			name:        "method prefix is not enough",
			header:      "PUTS /x HTTP/1.1\r\n\r\n",
			wantStatus:  StatusNotImplemented,
			wantMethod:  MethodNone,
			wantToken:   "PUTS",
			wantURI:     "/x",
			wantVersion: "HTTP/1.1",
		},
		{name: "method with digit", header: "G3T /x HTTP/1.1\r\n\r\n", wantStatus: StatusBadRequest, wantToken: "G3T", wantURI: "/x"},
		{name: "missing uri", header: "GET HTTP/1.1\r\n\r\n", wantStatus: StatusBadRequest, wantToken: "GET", wantURI: "HTTP/1.1"},
		{name: "root only", header: "GET / HTTP/1.1\r\n\r\n", wantStatus: StatusBadRequest, wantToken: "GET", wantURI: "/"},
		{name: "trailing slash", header: "GET /dir/ HTTP/1.1\r\n\r\n", wantStatus: StatusBadRequest, wantToken: "GET", wantURI: "/dir/"},
		{name: "relative uri", header: "GET foo HTTP/1.1\r\n\r\n", wantStatus: StatusBadRequest, wantToken: "GET", wantURI: "foo"},
		{name: "bad uri character", header: "GET /a%20b HTTP/1.1\r\n\r\n", wantStatus: StatusBadRequest, wantToken: "GET", wantURI: "/a%20b"},
		{name: "tab separator", header: "GET\t/x HTTP/1.1\r\n\r\n", wantStatus: StatusBadRequest, wantToken: "GET", wantURI: "/x"},
		{name: "missing version", header: "GET /x\r\n\r\n", wantStatus: StatusBadRequest, wantToken: "GET", wantURI: "/x"},
		{name: "wrong version", header: "GET /x HTTP/1.0\r\n\r\n", wantStatus: StatusBadRequest, wantToken: "GET", wantURI: "/x"},
		{name: "wrong version beats unknown method", header: "BREW /pot HTTP/1.0\r\n\r\n", wantStatus: StatusBadRequest, wantToken: "BREW", wantURI: "/pot"},
		{name: "lowercase version", header: "GET /x http/1.1\r\n\r\n", wantStatus: StatusBadRequest, wantToken: "GET", wantURI: "/x"},
		{name: "version with suffix", header: "GET /x HTTP/1.11\r\n\r\n", wantStatus: StatusBadRequest, wantToken: "GET", wantURI: "/x"},
		{name: "trailing space after version", header: "GET /x HTTP/1.1 \r\n\r\n", wantStatus: StatusBadRequest, wantToken: "GET", wantURI: "/x"},
		{name: "empty", header: "\r\n\r\n", wantStatus: StatusBadRequest},
		{name: "no crlf", header: "GET /x HTTP/1.1", wantStatus: StatusBadRequest, wantToken: "GET", wantURI: "/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := ParseRequestLine([]byte(tt.header))
			require.NotNil(t, req)
			assert.Equal(t, tt.wantStatus, req.Status)
			assert.Equal(t, tt.wantToken, req.MethodToken)
			assert.Equal(t, tt.wantURI, req.URI)
			if tt.wantStatus != StatusBadRequest {
				assert.Equal(t, tt.wantMethod, req.Method)
				assert.Equal(t, tt.wantVersion, req.Version)
			}
		})
	}
}

func TestCheckVersion(t *testing.T) {
	t.Run("Accepted", func(t *testing.T) {
		req, _ := ParseRequestLine([]byte("GET /x HTTP/1.1\r\n\r\n"))
		req.CheckVersion()
		assert.Equal(t, StatusOK, req.Status)
	})

	t.Run("Rejected", func(t *testing.T) {
		req := NewRequest()
		req.Version = "HTTP/2"
		req.CheckVersion()
		assert.Equal(t, StatusBadRequest, req.Status)
	})

	t.Run("EarlierFailureWins", func(t *testing.T) {
		req := NewRequest()
		req.Version = "HTTP/2"
		req.Fail(StatusNotFound)
		req.CheckVersion()
		assert.Equal(t, StatusNotFound, req.Status)
	})
}

func TestParseHeaders(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus StatusCode
		wantLength int64
		wantHasLen bool
		wantID     int64
		wantCount  int
	}{
		{
			name:       "no headers on get",
			header:     "GET /x HTTP/1.1\r\n\r\n",
			wantStatus: StatusOK,
		},
		{
			name:       "content length and request id",
			header:     "PUT /x HTTP/1.1\r\nContent-Length: 12\r\nRequest-Id: 7\r\n\r\n",
			wantStatus: StatusOK,
			wantLength: 12,
			wantHasLen: true,
			wantID:     7,
			wantCount:  2,
		},
		{
			name:       "case-insensitive names",
			header:     "APPEND /x HTTP/1.1\r\ncontent-length: 3\r\nrequest-id: 42\r\n\r\n",
			wantStatus: StatusOK,
			wantLength: 3,
			wantHasLen: true,
			wantID:     42,
			wantCount:  2,
		},
		{
			name:       "zero length body",
			header:     "PUT /x HTTP/1.1\r\nContent-Length: 0\r\n\r\n",
			wantStatus: StatusOK,
			wantHasLen: true,
			wantCount:  1,
		},
		{
			name:       "unknown headers kept",
			header:     "GET /x HTTP/1.1\r\nHost: localhost:8080\r\nX-Trace.id_1: abc\r\n\r\n",
			wantStatus: StatusOK,
			wantCount:  2,
		},
		{
			name:       "bad request id defaults to zero",
			header:     "GET /x HTTP/1.1\r\nRequest-Id: abc\r\n\r\n",
			wantStatus: StatusOK,
			wantCount:  1,
		},
		{name: "negative length", header: "PUT /x HTTP/1.1\r\nContent-Length: -1\r\n\r\n", wantStatus: StatusBadRequest},
		{name: "non-numeric length", header: "PUT /x HTTP/1.1\r\nContent-Length: ten\r\n\r\n", wantStatus: StatusBadRequest},
		{name: "conflicting lengths", header: "PUT /x HTTP/1.1\r\nContent-Length: 1\r\nContent-Length: 2\r\n\r\n", wantStatus: StatusBadRequest},
		{name: "missing length on put", header: "PUT /x HTTP/1.1\r\nHost: h\r\n\r\n", wantStatus: StatusBadRequest},
		{name: "missing space after colon", header: "GET /x HTTP/1.1\r\nHost:h\r\n\r\n", wantStatus: StatusBadRequest},
		{name: "empty value", header: "GET /x HTTP/1.1\r\nHost: \r\n\r\n", wantStatus: StatusBadRequest},
		{name: "space in name", header: "GET /x HTTP/1.1\r\nBad Name: v\r\n\r\n", wantStatus: StatusBadRequest},
		{name: "bare lf in value", header: "GET /x HTTP/1.1\r\nHost: a\nb\r\n\r\n", wantStatus: StatusBadRequest},
		{name: "no blank line", header: "GET /x HTTP/1.1\r\nHost: h\r\n", wantStatus: StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rest := ParseRequestLine([]byte(tt.header))
			require.Equal(t, StatusOK, req.Status, "request line must parse")

			req.ParseHeaders(rest)
			assert.Equal(t, tt.wantStatus, req.Status)
			if tt.wantStatus == StatusOK {
				assert.Equal(t, tt.wantLength, req.ContentLength)
				assert.Equal(t, tt.wantHasLen, req.HasContentLength)
				assert.Equal(t, tt.wantID, req.RequestID)
				assert.Len(t, req.Headers, tt.wantCount)
			}
		})
	}
}

func TestParseHeadersSkippedAfterFailure(t *testing.T) {
	req, rest := ParseRequestLine([]byte("FETCH /x HTTP/1.1\r\nContent-Length: -5\r\n\r\n"))
	req.ParseHeaders(rest)
	assert.Equal(t, StatusNotImplemented, req.Status)
}

func TestHeaderLookup(t *testing.T) {
	req, rest := ParseRequestLine([]byte("GET /x HTTP/1.1\r\nHost: one\r\nhost: two\r\n\r\n"))
	req.ParseHeaders(rest)

	v, ok := req.header("HOST")
	require.True(t, ok)
	assert.Equal(t, "one", v)

	_, ok = req.header("Missing")
	assert.False(t, ok)
}

func TestScanRequestID(t *testing.T) {
	assert.Equal(t, int64(9), ScanRequestID([]byte("BOGUS LINE\r\nRequest-Id: 9\r\n\r\n")))
	assert.Equal(t, int64(0), ScanRequestID([]byte("GET /x HTTP/1.1\r\n\r\n")))
	assert.Equal(t, int64(0), ScanRequestID(nil))
}

func TestFailKeepsFirstStatus(t *testing.T) {
	req := NewRequest()
	assert.False(t, req.Failed())

	req.Succeed(StatusCreated)
	assert.Equal(t, StatusCreated, req.Status)

	req.Fail(StatusForbidden)
	req.Fail(StatusBadRequest)
	req.Succeed(StatusOK)
	assert.Equal(t, StatusForbidden, req.Status)
	assert.True(t, req.Failed())
}
