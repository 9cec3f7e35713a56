package audit

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger writes one append-only, timestamp-prefixed line per stage event.
// Writers are serialized so concurrent orders never interleave partial lines.
// Lines are never rewritten or truncated.
type Logger struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	slog   *slog.Logger
	now    func() time.Time
}

// Open creates (or appends to) the audit log at path.
func Open(path string, logger *slog.Logger) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Logger{
		w:      f,
		closer: f,
		slog:   logger.With("component", "audit"),
		now:    time.Now,
	}, nil
}

// NewWriter wraps an arbitrary writer (tests, in-memory sinks).
func NewWriter(w io.Writer, logger *slog.Logger) *Logger {
	return &Logger{
		w:    w,
		slog: logger.With("component", "audit"),
		now:  time.Now,
	}
}

// Event appends one line: "<RFC3339 ms> - <component>: <message>".
func (l *Logger) Event(component, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s - %s: %s\n",
		l.now().UTC().Format("2006-01-02T15:04:05.000Z"), component, msg)

	l.mu.Lock()
	_, err := io.WriteString(l.w, line)
	l.mu.Unlock()

	if err != nil {
		l.slog.Warn("audit write failed", "component", component, "error", err)
	}
}

// Close flushes and closes the underlying file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
