package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture redirects the logger into a buffer and restores defaults afterwards.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetWriter(&buf)
	t.Cleanup(func() {
		SetWriter(os.Stdout)
		SetLevel("INFO")
		SetFormat("text")
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel("WARN")

	Debug("debug %d", 1)
	Info("info %d", 2)
	Warn("warn %d", 3)
	Error("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "[WARN] warn 3")
	assert.Contains(t, out, "[ERROR] error 4")
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	capture(t)
	SetLevel("DEBUG")
	SetLevel("verbose")

	assert.True(t, Enabled(LevelDebug))
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t)
	SetFormat("json")

	Info("hello %s", "world")

	var line map[string]string
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "hello world", line["msg"])
	assert.NotEmpty(t, line["time"])
}

func TestSetOutputFile(t *testing.T) {
	capture(t)
	path := filepath.Join(t.TempDir(), "server.log")

	require.NoError(t, SetOutput(path))
	Info("to file")
	require.NoError(t, SetOutput("stdout"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[INFO] to file"))
}

func TestSetOutputBadPath(t *testing.T) {
	capture(t)
	err := SetOutput(filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	assert.Error(t, err)
}
