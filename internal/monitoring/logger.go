// Package monitoring holds the process-wide logger used by transport and
// adapter packages (HTTP, gRPC, MQTT, storage).
package monitoring

import (
	"bytes"
	"io"
	"log"
	"sync"
)

var (
	mu   sync.RWMutex
	logf = log.Printf
)

// Logf writes through the current process logger.
func Logf(format string, v ...interface{}) {
	mu.RLock()
	f := logf
	mu.RUnlock()
	f(format, v...)
}

// SetLogger replaces the process logger. Passing nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	mu.Lock()
	defer mu.Unlock()
	if f == nil {
		logf = func(string, ...interface{}) {}
		return
	}
	logf = f
}

// Writer adapts Logf to an io.Writer, emitting one log call per line with
// the given tag. It lets per-package debug streams share the process logger.
func Writer(tag string) io.Writer {
	return &lineWriter{tag: tag}
}

type lineWriter struct {
	mu  sync.Mutex
	tag string
	buf bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Keep the partial line for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		Logf("%s%s", w.tag, line[:len(line)-1])
	}
}
