package logger

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Format selects how log lines are rendered.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

var (
	mu           sync.RWMutex
	currentLevel = LevelInfo
	format       = FormatText
	logger       = stdlog.New(os.Stdout, "", 0)

	// closer is the file opened by SetOutput, if any.
	closer io.Closer
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// SetFormat switches between "text" and "json" output.
// Unknown values are ignored.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(f) {
	case "text":
		format = FormatText
	case "json":
		format = FormatJSON
	}
}

// SetOutput directs log lines to "stdout", "stderr" or a file path.
// A previously opened log file is closed.
func SetOutput(output string) error {
	var (
		w io.Writer
		c io.Closer
	)

	switch strings.ToLower(output) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log output %s: %w", output, err)
		}
		w, c = f, f
	}

	setWriter(w, c)
	return nil
}

// SetWriter directs log lines to w. Mostly useful in tests.
func SetWriter(w io.Writer) {
	setWriter(w, nil)
}

func setWriter(w io.Writer, c io.Closer) {
	mu.Lock()
	defer mu.Unlock()

	if closer != nil {
		_ = closer.Close()
	}
	logger = stdlog.New(w, "", 0)
	closer = c
}

// Enabled reports whether messages at level would be emitted.
func Enabled(level Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return level >= currentLevel
}

func log(level Level, f string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if level < currentLevel {
		return
	}

	now := time.Now()
	message := fmt.Sprintf(f, v...)

	if format == FormatJSON {
		line, err := json.Marshal(struct {
			Time    string `json:"time"`
			Level   string `json:"level"`
			Message string `json:"msg"`
		}{now.Format(time.RFC3339Nano), level.String(), message})
		if err == nil {
			logger.Println(string(line))
			return
		}
	}

	prefix := fmt.Sprintf("[%s] [%s] ", now.Format("2006-01-02 15:04:05"), level.String())
	logger.Println(prefix + message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
