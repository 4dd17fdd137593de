// Package logging wires up the engine's structured logger: a colored
// terminal handler for interactive use and a JSON handler writing to a
// size-rotated file, both driven off the same underlying logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	gethlog "github.com/ethereum/go-ethereum/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Level is one of "trace", "debug", "info", "warn", "error", "crit".
	Level string
	// FilePath is the rotating log file; empty disables file logging.
	FilePath string
}

// New builds the root logger and installs it as the package-level
// default via gethlog.SetDefault so any code that logs through
// gethlog.Root() picks it up.
func New(opts Options) (gethlog.Logger, error) {
	lvl, err := parseLevel(orDefault(opts.Level, "info"))
	if err != nil {
		return nil, err
	}

	var writer io.Writer = os.Stderr
	handler := gethlog.NewTerminalHandlerWithLevel(writer, lvl, true)

	logger := gethlog.NewLogger(handler)

	if opts.FilePath != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		fileHandler := gethlog.JSONHandlerWithLevel(fileWriter, lvl)
		logger = gethlog.NewLogger(&multiHandler{handlers: []slog.Handler{handler, fileHandler}})
	}

	gethlog.SetDefault(logger)
	return logger, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// parseLevel maps the configured level names to slog levels. go-ethereum's
// own terminal/JSON handlers take a slog.Level directly; there is no
// stable upstream string-parsing helper across go-ethereum releases, so
// the engine owns this tiny mapping instead of depending on one.
func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return gethlog.LevelTrace, nil
	case "debug":
		return gethlog.LevelDebug, nil
	case "info":
		return gethlog.LevelInfo, nil
	case "warn", "warning":
		return gethlog.LevelWarn, nil
	case "error":
		return gethlog.LevelError, nil
	case "crit", "critical":
		return gethlog.LevelCrit, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// multiHandler fans a record out to every wrapped handler; the stdlib
// slog handler interface has no built-in tee, so the terminal and
// rotating-file handlers each get called independently.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
