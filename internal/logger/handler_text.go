package logger

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// ANSI escapes for level and key coloring.
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

// TextHandler is a slog.Handler producing single-line key=value output with
// optional color. Values containing whitespace, quotes, or '=' are quoted;
// group names become dotted key prefixes.
type TextHandler struct {
	opts   slog.HandlerOptions
	w      io.Writer
	mu     *sync.Mutex // shared across WithAttrs/WithGroup clones
	attrs  []slog.Attr // pre-bound, keys already carry their prefix
	prefix string
	color  bool
}

// NewTextHandler creates a TextHandler writing to w.
func NewTextHandler(w io.Writer, opts *slog.HandlerOptions, color bool) *TextHandler {
	h := &TextHandler{
		w:     w,
		mu:    &sync.Mutex{},
		color: color,
	}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

// Enabled implements slog.Handler.
func (h *TextHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle formats one record and writes it under the shared lock.
func (h *TextHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	if !r.Time.IsZero() {
		sb.WriteString(r.Time.Format("15:04:05.000"))
		sb.WriteByte(' ')
	}
	sb.WriteString(h.levelTag(r.Level))
	sb.WriteByte(' ')
	sb.WriteString(r.Message)

	for _, a := range h.attrs {
		h.writeAttr(&sb, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&sb, h.prefix, a)
		return true
	})
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *TextHandler) levelTag(level slog.Level) string {
	name, color := "INFO ", ansiGreen
	switch {
	case level < slog.LevelInfo:
		name, color = "DEBUG", ansiGray
	case level >= slog.LevelError:
		name, color = "ERROR", ansiRed
	case level >= slog.LevelWarn:
		name, color = "WARN ", ansiYellow
	}
	if h.color {
		return color + name + ansiReset
	}
	return name
}

// writeAttr appends one attribute as " key=value", flattening groups into
// dotted prefixes. Empty attrs are elided per slog convention.
func (h *TextHandler) writeAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, member := range a.Value.Group() {
			h.writeAttr(sb, p, member)
		}
		return
	}

	sb.WriteByte(' ')
	if h.color {
		sb.WriteString(ansiCyan)
		sb.WriteString(prefix)
		sb.WriteString(a.Key)
		sb.WriteString(ansiReset)
	} else {
		sb.WriteString(prefix)
		sb.WriteString(a.Key)
	}
	sb.WriteByte('=')
	sb.WriteString(quoteIfNeeded(a.Value.String()))
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// WithAttrs implements slog.Handler. The current group prefix is folded into
// the bound keys so later WithGroup calls cannot retroactively move them.
func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

// WithGroup implements slog.Handler by extending the dotted key prefix.
func (h *TextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}
