package audit

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryLine(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		want  string
	}{
		{
			name:  "put created",
			entry: Entry{Method: "PUT", URI: "/a.txt", Status: 201, RequestID: 5},
			want:  "PUT,/a.txt,201,5\n",
		},
		{
			name:  "missing request id",
			entry: Entry{Method: "GET", URI: "/b", Status: 404},
			want:  "GET,/b,404,0\n",
		},
		{
			name:  "raw tokens kept",
			entry: Entry{Method: "get", URI: "/a,b", Status: 400, RequestID: -1},
			want:  "get,/a,b,400,-1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(tt.entry.Line()))
			assert.Equal(t, strings.TrimSuffix(tt.want, "\n"), tt.entry.String())
		})
	}
}

func TestFileSink(t *testing.T) {
	t.Run("WritesLines", func(t *testing.T) {
		var buf bytes.Buffer
		sink := NewWriterSink(&buf)

		require.NoError(t, sink.Record(Entry{Method: "PUT", URI: "/x", Status: 200, RequestID: 1}))
		require.NoError(t, sink.Record(Entry{Method: "", URI: "", Status: 400}))
		require.NoError(t, sink.Record(Entry{Method: "GET", URI: "/x", Status: 200, RequestID: 2}))

		assert.Equal(t, "PUT,/x,200,1\nGET,/x,200,2\n", buf.String())
	})

	t.Run("AppendsToFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "audit.log")
		require.NoError(t, os.WriteFile(path, []byte("OLD,/o,200,0\n"), 0644))

		sink, err := NewFileSink(FileConfig{Path: path})
		require.NoError(t, err)
		require.NoError(t, sink.Record(Entry{Method: "APPEND", URI: "/l", Status: 200, RequestID: 3}))
		require.NoError(t, sink.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "OLD,/o,200,0\nAPPEND,/l,200,3\n", string(data))
	})

	t.Run("RecordAfterClose", func(t *testing.T) {
		sink := NewWriterSink(&bytes.Buffer{})
		require.NoError(t, sink.Close())
		assert.Error(t, sink.Record(Entry{Method: "GET"}))
	})

	t.Run("BadPath", func(t *testing.T) {
		_, err := NewFileSink(FileConfig{Path: filepath.Join(t.TempDir(), "no", "such", "dir.log")})
		assert.Error(t, err)
	})

	t.Run("ConcurrentLinesDoNotInterleave", func(t *testing.T) {
		var buf bytes.Buffer
		sink := NewWriterSink(&buf)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					_ = sink.Record(Entry{Method: "GET", URI: "/same", Status: 200, RequestID: id})
				}
			}(int64(i))
		}
		wg.Wait()

		lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
		require.Len(t, lines, 800)
		for _, line := range lines {
			assert.Regexp(t, `^GET,/same,200,[0-7]$`, line)
		}
	})
}

func TestBadgerSink(t *testing.T) {
	sink, err := NewBadgerSink(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Record(Entry{Method: "PUT", URI: "/a", Status: 201, RequestID: 1}))
	require.NoError(t, sink.Record(Entry{Method: "", Status: 400}))
	require.NoError(t, sink.Record(Entry{Method: "GET", URI: "/a", Status: 200, RequestID: 2}))
	require.NoError(t, sink.Record(Entry{Method: "APPEND", URI: "/a", Status: 200, RequestID: 3}))

	all, err := sink.Entries(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"PUT", "GET", "APPEND"}, []string{all[0].Method, all[1].Method, all[2].Method})
	assert.False(t, all[0].Time.IsZero())

	last, err := sink.Entries(2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, int64(2), last[0].RequestID)
	assert.Equal(t, int64(3), last[1].RequestID)
}

func TestBadgerSinkPersists(t *testing.T) {
	dir := t.TempDir()

	sink, err := NewBadgerSink(BadgerConfig{DBPath: dir})
	require.NoError(t, err)
	require.NoError(t, sink.Record(Entry{Method: "PUT", URI: "/p", Status: 201}))
	require.NoError(t, sink.Close())

	sink, err = NewBadgerSink(BadgerConfig{DBPath: dir})
	require.NoError(t, err)
	defer sink.Close()
	require.NoError(t, sink.Record(Entry{Method: "GET", URI: "/p", Status: 200}))

	entries, err := sink.Entries(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "PUT", entries[0].Method)
	assert.Equal(t, "GET", entries[1].Method)
}

func TestBadgerSinkRequiresPath(t *testing.T) {
	_, err := NewBadgerSink(BadgerConfig{})
	assert.Error(t, err)
}

type failingSink struct{ err error }

func (f failingSink) Record(Entry) error { return f.err }
func (f failingSink) Close() error       { return f.err }

func TestMultiSink(t *testing.T) {
	var a, b bytes.Buffer
	boom := errors.New("boom")
	multi := MultiSink{NewWriterSink(&a), failingSink{err: boom}, NewWriterSink(&b)}

	err := multi.Record(Entry{Method: "GET", URI: "/m", Status: 200})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "GET,/m,200,0\n", a.String())
	assert.Equal(t, "GET,/m,200,0\n", b.String())

	assert.ErrorIs(t, multi.Close(), boom)
}

func TestNew(t *testing.T) {
	sink, err := New("none", FileConfig{}, BadgerConfig{})
	require.NoError(t, err)
	assert.IsType(t, Discard{}, sink)

	sink, err = New("file", FileConfig{Path: "stdout"}, BadgerConfig{})
	require.NoError(t, err)
	assert.IsType(t, &FileSink{}, sink)

	sink, err = New("badger", FileConfig{}, BadgerConfig{InMemory: true})
	require.NoError(t, err)
	assert.IsType(t, &BadgerSink{}, sink)
	require.NoError(t, sink.Close())

	_, err = New("kafka", FileConfig{}, BadgerConfig{})
	assert.Error(t, err)
}
