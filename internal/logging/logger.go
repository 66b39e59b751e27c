// Package logging holds the process-wide logger shared by the registry,
// discovery, connection and dispatch layers.
//
// MODELCONTEXT_DEBUG sets the level (0-3, or a level name) and
// MODELCONTEXT_LOG_FORMAT=json switches to JSON records.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	logLevel = new(slog.LevelVar)
	jsonOut  atomic.Bool
	logger   atomic.Pointer[slog.Logger]
)

func init() {
	logLevel.Set(parseLogLevel(os.Getenv("MODELCONTEXT_DEBUG")))
	jsonOut.Store(strings.EqualFold(os.Getenv("MODELCONTEXT_LOG_FORMAT"), "json"))
	SetOutput(os.Stderr)
}

// Logger returns the global logger instance.
func Logger() *slog.Logger {
	return logger.Load()
}

// For returns the global logger tagged with a component name. Loggers
// obtained before a SetOutput keep writing to the old destination, so
// callers fetch one per operation rather than caching it.
func For(component string) *slog.Logger {
	return Logger().With("component", component)
}

// SetLogLevel sets the global log level for the entire library.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// SetOutput redirects library logs to w, keeping the level and format.
func SetOutput(w io.Writer) {
	opts := &slog.HandlerOptions{Level: logLevel}
	var h slog.Handler
	if jsonOut.Load() {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger.Store(slog.New(h))
}

// parseLogLevel maps MODELCONTEXT_DEBUG to a level: 0=Error, 1=Warn,
// 2=Info, 3=Debug, or the level's name. Anything else means Warn.
func parseLogLevel(envVal string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(envVal)) {
	case "0", "error":
		return slog.LevelError
	case "1", "warn":
		return slog.LevelWarn
	case "2", "info":
		return slog.LevelInfo
	case "3", "debug":
		return slog.LevelDebug
	default:
		return slog.LevelWarn
	}
}
