package logging

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
)

// Poster is the subset of *fluent.Fluent used for shipping records.
type Poster interface {
	Post(tag string, message interface{}) error
	Close() error
}

// Fluent ships records to a Fluentd collector, tagged by level.
type Fluent struct {
	client   Poster
	prefix   string
	minLevel slog.Level
	now      func() time.Time
}

// DialFluent connects to a Fluentd forward input.
func DialFluent(host string, port int) (*fluent.Fluent, error) {
	client, err := fluent.New(fluent.Config{
		FluentHost:    host,
		FluentPort:    port,
		Async:         true,
		MarshalAsJSON: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect fluentd %s:%d: %w", host, port, err)
	}
	return client, nil
}

// NewFluent builds a Fluent logger. Tags are "<prefix>.<level>".
func NewFluent(client Poster, prefix string, minLevel slog.Level) (*Fluent, error) {
	if client == nil {
		return nil, errors.New("fluent client cannot be nil")
	}
	if prefix == "" {
		prefix = "rentd"
	}
	return &Fluent{client: client, prefix: prefix, minLevel: minLevel, now: time.Now}, nil
}

func (f *Fluent) Debug(msg string, args ...any) { f.post(slog.LevelDebug, msg, args) }
func (f *Fluent) Info(msg string, args ...any)  { f.post(slog.LevelInfo, msg, args) }
func (f *Fluent) Warn(msg string, args ...any)  { f.post(slog.LevelWarn, msg, args) }
func (f *Fluent) Error(msg string, args ...any) { f.post(slog.LevelError, msg, args) }

// Close flushes and closes the underlying client.
func (f *Fluent) Close() error {
	return f.client.Close()
}

func (f *Fluent) post(level slog.Level, msg string, args []any) {
	if level < f.minLevel {
		return
	}
	data := fieldsFromArgs(args)
	data["level"] = level.String()
	data["message"] = msg
	data["timestamp"] = f.now().UTC().Format(time.RFC3339Nano)

	// Shipping failures must not disturb the caller.
	_ = f.client.Post(f.prefix+"."+levelTag(level), data)
}

func levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// fieldsFromArgs resolves slog-style arguments into a flat map.
func fieldsFromArgs(args []any) map[string]any {
	r := slog.NewRecord(time.Time{}, slog.LevelInfo, "", 0)
	r.Add(args...)
	data := make(map[string]any, r.NumAttrs()+3)
	r.Attrs(func(a slog.Attr) bool {
		addAttr(data, "", a)
		return true
	})
	return data
}

func addAttr(data map[string]any, prefix string, a slog.Attr) {
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		for _, ga := range v.Group() {
			addAttr(data, key, ga)
		}
	case slog.KindDuration:
		data[key] = v.Duration().String()
	case slog.KindTime:
		data[key] = v.Time().UTC().Format(time.RFC3339Nano)
	default:
		val := v.Any()
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		data[key] = val
	}
}
