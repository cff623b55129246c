package logging

import (
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Global structured logger. Initialized with a reasonable text handler.
var logger atomic.Pointer[slog.Logger]

func init() {
	l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Store(l)
}

// L returns the current global logger.
func L() *slog.Logger { return logger.Load() }

// Set replaces the global logger.
func Set(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// New creates a logger with the given level and format ("text", "json" or
// "console"). w defaults to stderr.
func New(format string, level slog.Leveler, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "console":
		h = consoleHandler(w, level)
	default:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h)
}

// consoleHandler colours output only when w is a terminal.
func consoleHandler(w io.Writer, level slog.Leveler) slog.Handler {
	opts := &tint.Options{Level: level, TimeFormat: time.TimeOnly, NoColor: true}
	if f, ok := w.(*os.File); ok {
		if runtime.GOOS == "windows" {
			w = colorable.NewColorable(f)
		}
		opts.NoColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	return tint.NewHandler(w, opts)
}

// Err wraps err so console output highlights it.
func Err(err error) slog.Attr { return tint.Err(err) }

// ParseLevel maps debug|info|warn|error to a slog level (info for anything else).
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
