package logging

import (
	"context"
	"errors"
	"log/slog"
)

// MultiHandler sends each record to every handler enabled for its level.
// Nil handlers are skipped; with none left, records are discarded.
func MultiHandler(handlers ...slog.Handler) slog.Handler {
	var fanout fanoutHandler
	for _, handler := range handlers {
		if handler != nil {
			fanout = append(fanout, handler)
		}
	}
	switch len(fanout) {
	case 0:
		return slog.DiscardHandler
	case 1:
		return fanout[0]
	}
	return fanout
}

type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range f {
		if handler.Enabled(ctx, record.Level) {
			// Each handler gets its own copy; some mutate the record.
			if err := handler.Handle(ctx, record.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanoutHandler) each(fn func(slog.Handler) slog.Handler) fanoutHandler {
	next := make(fanoutHandler, len(f))
	for i, handler := range f {
		next[i] = fn(handler)
	}
	return next
}
