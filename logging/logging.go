// Package logging provides the logger components receive at construction.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Logger is the structured logger injected into components. Arguments follow
// slog conventions (alternating keys and values, or slog.Attr). *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Format selects the handler used by New.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatTint Format = "tint"
)

// Options configure New.
type Options struct {
	Writer    io.Writer
	Level     slog.Level
	Format    Format
	AddSource bool
}

// New builds a slog logger. FormatAuto picks a colour handler on a terminal
// and JSON otherwise. The returned LevelVar adjusts the level at runtime.
func New(opts Options) (*slog.Logger, *slog.LevelVar) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	level := &slog.LevelVar{}
	level.Set(opts.Level)

	format := opts.Format
	if format == "" || format == FormatAuto {
		format = FormatJSON
		if f, ok := w.(*os.File); ok && isTerminal(f) {
			format = FormatTint
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}
	var handler slog.Handler
	switch format {
	case FormatTint:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  opts.AddSource,
			TimeFormat: "2006-01-02 15:04:05",
		})
	case FormatText:
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		handler = slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.New(handler), level
}

// ParseLevel maps debug, info, warn and error onto slog levels.
func ParseLevel(text string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", text)
	}
}

// ParseFormat validates a handler format name.
func ParseFormat(text string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(text))); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatText, FormatJSON, FormatTint:
		return f, nil
	default:
		return FormatAuto, fmt.Errorf("unknown log format %q", text)
	}
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	// slog.DiscardHandler requires Go 1.24; this handler is enabled for no level.
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
}

type multi []Logger

// Multi fans every record out to each logger.
func Multi(loggers ...Logger) Logger {
	out := make(multi, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			out = append(out, l)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (m multi) Debug(msg string, args ...any) {
	for _, l := range m {
		l.Debug(msg, args...)
	}
}

func (m multi) Info(msg string, args ...any) {
	for _, l := range m {
		l.Info(msg, args...)
	}
}

func (m multi) Warn(msg string, args ...any) {
	for _, l := range m {
		l.Warn(msg, args...)
	}
}

func (m multi) Error(msg string, args ...any) {
	for _, l := range m {
		l.Error(msg, args...)
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
