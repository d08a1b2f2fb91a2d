// Package logx is the server's logging sink. It never writes to stdout:
// the process speaks LSP over stdio, so anything other than protocol
// frames on stdout would corrupt the stream. Output goes to stderr or an
// explicit file, gated by GO_ANALYZER_LOG_LEVEL.
package logx

import (
	"fmt"
	"io"
	"os"
	"sync"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

var (
	mu     sync.Mutex
	out    io.Writer = os.Stderr
	level  Level     = LevelInfo
)

// SetOutput redirects log output. Pass nil to silence logging entirely.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetLevel sets the minimum level that is emitted.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

func writer() (io.Writer, Level) {
	mu.Lock()
	defer mu.Unlock()
	return out, level
}

// Log writes a component-tagged message at the given level.
func Log(l Level, component, format string, args ...interface{}) {
	w, min := writer()
	if w == nil || l < min {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(w, "[%s:%s] %s\n", l, component, msg)
}

func Debugf(component, format string, args ...interface{}) { Log(LevelDebug, component, format, args...) }
func Infof(component, format string, args ...interface{})  { Log(LevelInfo, component, format, args...) }
func Warnf(component, format string, args ...interface{})  { Log(LevelWarn, component, format, args...) }
func Errorf(component, format string, args ...interface{}) { Log(LevelError, component, format, args...) }

// Fatal logs at error level and returns an error describing the failure
// instead of exiting — only cmd/goanalyzer's main may terminate the
// process.
func Fatal(component, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	Log(LevelError, component, "fatal: %s", msg)
	return fmt.Errorf("%s: %s", component, msg)
}
