// Package logging builds the slog loggers used by the command line tools.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level slog.Level
	// File, when set, receives JSON records through a rotating writer
	// instead of the terminal.
	File string
	// Writer overrides the terminal destination. Defaults to os.Stderr.
	Writer io.Writer
}

// New returns a colored logger on a terminal and a JSON logger otherwise.
func New(opts Options) *slog.Logger {
	if opts.File != "" {
		return slog.New(slog.NewJSONHandler(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     15,
			Compress:   true,
		}, &slog.HandlerOptions{Level: opts.Level}))
	}

	w := opts.Writer
	if w == nil {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{Level: opts.Level}))
		}
		w = os.Stderr
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level}))
}
