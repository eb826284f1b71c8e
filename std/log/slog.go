package log

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
)

// Logger is a leveled logger whose messages carry the tag of the
// component that wrote them.
type Logger struct {
	slog  atomic.Pointer[slog.Logger]
	level *atomic.Int64
}

// Tag names the component a message comes from.
type Tag interface {
	String() string
}

// New creates a logger writing to w in the given format, text or json.
func New(w io.Writer, format string) (*Logger, error) {
	h, err := newHandler(w, format)
	if err != nil {
		return nil, err
	}
	l := &Logger{level: &atomic.Int64{}}
	l.slog.Store(slog.New(h))
	l.level.Store(int64(LevelInfo))
	return l, nil
}

// NewText creates a text logger writing to w.
func NewText(w io.Writer) *Logger {
	l, _ := New(w, "text")
	return l
}

func newHandler(w io.Writer, format string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level:       slog.Level(LevelTrace),
		ReplaceAttr: replaceAttr,
	}
	switch format {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	}
	return nil, fmt.Errorf("invalid log format %q", format)
}

// Redirect switches the output of l to w in the given format. It is safe
// while other goroutines log. Loggers derived earlier with With keep
// their output.
func (l *Logger) Redirect(w io.Writer, format string) error {
	h, err := newHandler(w, format)
	if err != nil {
		return err
	}
	l.slog.Store(slog.New(h))
	return nil
}

// SetLevel sets the logging level and returns the previous level.
// Loggers derived with With share the level.
func (l *Logger) SetLevel(level Level) (prev Level) {
	return Level(l.level.Swap(int64(level)))
}

// Level returns the current logging level.
func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// Enabled reports whether messages at level are written.
func (l *Logger) Enabled(level Level) bool {
	return l.Level() <= level
}

// With returns a logger that adds the key-value pairs to every message.
func (l *Logger) With(v ...any) *Logger {
	child := &Logger{level: l.level}
	child.slog.Store(l.slog.Load().With(v...))
	return child
}

func (l *Logger) log(t any, msg string, level Level, v ...any) {
	cur := l.Level()
	if cur > level {
		return
	}

	if cur <= LevelDebug {
		if pc, _, _, ok := runtime.Caller(2); ok {
			if f := runtime.FuncForPC(pc); f != nil {
				v = append(v, slog.SourceKey, f.Name())
			}
		}
	}

	switch tag := t.(type) {
	case nil:
	case Tag:
		v = append([]any{"tag", tag.String()}, v...)
	default:
		v = append([]any{"tag", t}, v...)
	}

	l.slog.Load().Log(context.Background(), slog.Level(level), msg, v...)
}

// Trace level message.
func (l *Logger) Trace(t any, msg string, v ...any) {
	l.log(t, msg, LevelTrace, v...)
}

// Debug level message.
func (l *Logger) Debug(t any, msg string, v ...any) {
	l.log(t, msg, LevelDebug, v...)
}

// Info level message.
func (l *Logger) Info(t any, msg string, v ...any) {
	l.log(t, msg, LevelInfo, v...)
}

// Warn level message.
func (l *Logger) Warn(t any, msg string, v ...any) {
	l.log(t, msg, LevelWarn, v...)
}

// Error level message.
func (l *Logger) Error(t any, msg string, v ...any) {
	l.log(t, msg, LevelError, v...)
}

// Fatal level message, followed by an exit.
func (l *Logger) Fatal(t any, msg string, v ...any) {
	l.log(t, msg, LevelFatal, v...)
	os.Exit(1)
}

// replaceAttr prints our level names and renders byte slices, such as
// frames, as hex.
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level := a.Value.Any().(slog.Level)
		a.Value = slog.StringValue(Level(level).String())
		return a
	}
	if b, ok := a.Value.Any().([]byte); ok {
		a.Value = slog.StringValue(hex.EncodeToString(b))
	}
	return a
}
