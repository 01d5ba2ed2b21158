// Package logger configures log/slog for the echo binaries.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

type Config struct {
	Level  string
	Format string // "console", "text", "json"; empty picks console on a terminal
	Output io.Writer
}

var (
	once sync.Once
	lg   *slog.Logger
)

// Init installs the process-wide logger. Only the first call has an effect.
func Init(cfg Config) {
	once.Do(func() {
		lg = New(cfg)
		slog.SetDefault(lg)
	})
}

// L returns the process-wide logger, initialising a default one if needed.
func L() *slog.Logger {
	Init(Config{Level: "info"})
	return lg
}

// New builds a logger without touching the process-wide default.
// Output defaults to stderr so that program output on stdout stays clean.
func New(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	level := parseLevel(cfg.Level)
	var handler slog.Handler
	switch resolveFormat(cfg.Format, cfg.Output) {
	case "json":
		handler = slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{Level: level})
	case "text":
		handler = slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{Level: level})
	default:
		handler = &consoleHandler{mu: &sync.Mutex{}, w: cfg.Output, level: level}
	}
	return slog.New(handler)
}

func resolveFormat(format string, w io.Writer) string {
	if format != "" {
		return strings.ToLower(format)
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "console"
	}
	return "text"
}

func parseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// consoleHandler outputs human-friendly log lines:
//
//	12:00:00 INFO  Connection closed  peer=127.0.0.1:50412 chunks=3 bytes=57
//
// Groups are flattened into dotted keys.
type consoleHandler struct {
	mu     *sync.Mutex // shared with derived handlers
	w      io.Writer
	level  slog.Level
	preset string // attrs from WithAttrs, already qualified
	group  string // dotted prefix for attrs added later
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(r.Time.Format(time.TimeOnly))
		b.WriteByte(' ')
	}
	b.WriteString(levelTag(r.Level))
	b.WriteByte(' ')
	b.WriteString(r.Message)
	b.WriteString(h.preset)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var b strings.Builder
	b.WriteString(h.preset)
	for _, a := range attrs {
		appendAttr(&b, h.group, a)
	}
	h2 := *h
	h2.preset = b.String()
	return &h2
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.group = qualify(h.group, name)
	return &h2
}

func levelTag(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN "
	case l >= slog.LevelInfo:
		return "INFO "
	default:
		return "DEBUG"
	}
}

func formatAttr(group string, a slog.Attr) string {
	var b strings.Builder
	appendAttr(&b, group, a)
	return b.String()
}

func appendAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := group
		if a.Key != "" {
			inner = qualify(group, a.Key)
		}
		for _, ga := range a.Value.Group() {
			appendAttr(b, inner, ga)
		}
		return
	}
	fmt.Fprintf(b, "  %s=%s", qualify(group, a.Key), a.Value)
}

func qualify(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}
