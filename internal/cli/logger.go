package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// warnHandler is a [slog.Handler] that turns warn and error records from the
// ledger into warnings on the IO of the command currently running.
type warnHandler struct {
	target func() *IO
	attrs  []slog.Attr
}

func newLogger(target func() *IO) *slog.Logger {
	return slog.New(&warnHandler{target: target})
}

func (h *warnHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelWarn
}

func (h *warnHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	b.WriteString(r.Message)

	write := func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())

		return true
	}

	for _, a := range h.attrs {
		write(a)
	}

	r.Attrs(write)

	if o := h.target(); o != nil {
		o.Warn(b.String())
	}

	return nil
}

func (h *warnHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &warnHandler{target: h.target, attrs: append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...)}
}

func (h *warnHandler) WithGroup(_ string) slog.Handler {
	return h
}
