package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

// scopeKeys are lifted out of the attributes and printed as a tag in front
// of the message, outermost first: "api/cpu matmul rows=8".
var scopeKeys = [...]string{"component", "backend", "kernel"}

// PrettyOptions configures a PrettyHandler.
type PrettyOptions struct {
	Level slog.Leveler
	// Color enables ANSI colors for the time, level, scope tag and errors.
	Color bool
}

// PrettyHandler writes one line per record for terminals:
//
//	15:04:05.000 INF api/cpu matmul rows=8 cols=2 elapsed=1.2ms
//
// Attributes named "error" are moved to the end of the line.
type PrettyHandler struct {
	opts   PrettyOptions
	w      io.Writer
	mu     *sync.Mutex
	prefix string
	scope  [len(scopeKeys)]string
	attrs  []slog.Attr
	errs   []slog.Attr
}

func NewPrettyHandler(w io.Writer, opts *PrettyOptions) *PrettyHandler {
	h := &PrettyHandler{w: w, mu: new(sync.Mutex)}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	floor := slog.LevelInfo
	if h.opts.Level != nil {
		floor = h.opts.Level.Level()
	}
	return level >= floor
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	line := *h
	line.attrs = append([]slog.Attr(nil), h.attrs...)
	line.errs = append([]slog.Attr(nil), h.errs...)
	r.Attrs(func(a slog.Attr) bool {
		line.add(a)
		return true
	})

	buf := make([]byte, 0, 256)
	buf = h.paint(buf, ansiGray, r.Time.Format("15:04:05.000"))
	buf = append(buf, ' ')
	buf = h.paint(buf, levelColor(r.Level), levelTag(r.Level))
	buf = append(buf, ' ')
	if tag := line.tag(); tag != "" {
		buf = h.paint(buf, ansiCyan, tag)
		buf = append(buf, ' ')
	}
	buf = append(buf, r.Message...)
	for _, a := range line.attrs {
		buf = append(buf, ' ')
		buf = appendAttr(buf, a)
	}
	for _, a := range line.errs {
		buf = append(buf, ' ')
		buf = h.paint(buf, ansiRed, string(appendAttr(nil, a)))
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	next.errs = append([]slog.Attr(nil), h.errs...)
	for _, a := range attrs {
		next.add(a)
	}
	return &next
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// add files a into the scope tag, the trailing errors or the plain
// attributes. Scope keys are only recognised outside groups.
func (h *PrettyHandler) add(a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if h.prefix == "" {
		for i, k := range scopeKeys {
			if a.Key == k {
				h.scope[i] = a.Value.String()
				return
			}
		}
	}
	if h.prefix != "" {
		a.Key = h.prefix + a.Key
	}
	if a.Key == "error" {
		h.errs = append(h.errs, a)
		return
	}
	h.attrs = append(h.attrs, a)
}

func (h *PrettyHandler) tag() string {
	parts := make([]string, 0, len(h.scope))
	for _, s := range h.scope {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

func (h *PrettyHandler) paint(buf []byte, color, s string) []byte {
	if !h.opts.Color {
		return append(buf, s...)
	}
	buf = append(buf, color...)
	buf = append(buf, s...)
	return append(buf, ansiReset...)
}

func levelTag(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DBG"
	case slog.LevelInfo:
		return "INF"
	case slog.LevelWarn:
		return "WRN"
	case slog.LevelError:
		return "ERR"
	}
	return level.String()
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed
	case level >= slog.LevelWarn:
		return ansiYellow
	case level >= slog.LevelInfo:
		return ansiBlue
	}
	return ansiGray
}

func appendAttr(buf []byte, a slog.Attr) []byte {
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	return appendValue(buf, a.Value)
}

func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		return appendText(buf, v.String())
	case slog.KindDuration:
		return append(buf, v.Duration().Round(time.Microsecond).String()...)
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'g', 6, 64)
	case slog.KindTime:
		return v.Time().AppendFormat(buf, time.RFC3339)
	case slog.KindGroup:
		buf = append(buf, '{')
		for i, a := range v.Group() {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = appendAttr(buf, a)
		}
		return append(buf, '}')
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return appendText(buf, err.Error())
		}
		return appendText(buf, fmt.Sprint(v.Any()))
	}
	return append(buf, v.String()...)
}

// appendText quotes s when it would not read back as a single token.
func appendText(buf []byte, s string) []byte {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}
