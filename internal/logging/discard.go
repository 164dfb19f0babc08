package logging

import (
	"context"
	"log/slog"
)

// discardHandler drops every record and reports every level as disabled, so
// guarded debug traces cost a single call.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

var discard = slog.New(discardHandler{})

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return discard
}

// OrDiscard returns l, or the Discard logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return discard
	}
	return l
}
