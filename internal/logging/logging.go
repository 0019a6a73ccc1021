// Package logging holds the process-wide slog logger shared by the library
// packages and canctl.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// L returns the current logger.
func L() *slog.Logger { return logger.Load() }

// Set replaces the logger. A nil logger is ignored.
func Set(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// Options selects the handler New builds.
type Options struct {
	Format string // "text" (default) or "json"
	Level  slog.Leveler
	// NoTime drops the time attribute, for output captured by journald.
	NoTime bool
}

// New builds a logger writing to w, or stderr when w is nil.
func New(w io.Writer, o Options) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: o.Level}
	if o.NoTime {
		ho.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		}
	}
	var h slog.Handler
	switch o.Format {
	case "json":
		h = slog.NewJSONHandler(w, ho)
	default:
		h = slog.NewTextHandler(w, ho)
	}
	return slog.New(h)
}

// ParseLevel maps debug, info, warn and error (any case) to a level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
