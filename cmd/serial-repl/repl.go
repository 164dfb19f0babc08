package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	serial "github.com/luhtfiimanal/go-serial-linebuf"
)

const (
	writeTimeout   = time.Second
	pendingTimeout = time.Second
)

type device interface {
	serial.Source
	Write(p []byte, timeout time.Duration) error
}

// session sends one line per prompt and prints the device answer.
type session struct {
	dev     device
	lines   *serial.ReadBuffer
	term    serial.LineTermination
	delim   string
	timeout time.Duration
	verbose bool
	logger  *slog.Logger
	out     io.Writer // prompts and replies
	diag    io.Writer // buffer dumps
}

// fatal errors mean the buffer is misconfigured or the port is gone.
func fatal(err error) bool {
	return errors.Is(err, serial.ErrBounds) ||
		errors.Is(err, serial.ErrCapacity) ||
		errors.Is(err, serial.ErrClosed)
}

func (s *session) run(ctx context.Context, input <-chan string) error {
	for {
		if err := s.printPending(); err != nil {
			if fatal(err) {
				return err
			}
			s.logger.Error("reading unsolicited data", slog.Any("error", err))
		}

		fmt.Fprint(s.out, ">>> ")
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-input:
			if !ok {
				return nil
			}
			line = l
		}

		if err := s.exchange(line); err != nil {
			if fatal(err) {
				return err
			}
			s.logger.Error("exchange failed", slog.Any("error", err))
		}
	}
}

// printPending prints whatever the device sent on its own since the last
// exchange. A trailing partial line is given up on after pendingTimeout.
func (s *session) printPending() error {
	for {
		pending, err := s.lines.Pending()
		if err != nil || !pending {
			return err
		}
		line, err := s.lines.ReadUntil(pendingTimeout, s.delim)
		if _, ok := serial.IsTimeout(err); ok {
			rest := s.lines.Drain()
			s.logger.Warn("dropping partial line", slog.String("bytes", serial.Escape(rest)))
			fmt.Fprintln(s.out, rest)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprint(s.out, line)
		s.dump()
	}
}

func (s *session) exchange(line string) error {
	msg := serial.FromString(line, s.term)
	if s.verbose {
		fmt.Fprint(s.diag, "sending ", msg.Dump())
	}
	if err := s.dev.Write(msg, writeTimeout); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	reply, err := s.lines.ReadUntil(s.timeout, s.delim)
	if n, ok := serial.IsTimeout(err); ok {
		s.logger.Warn("timeout waiting for reply", slog.Int("bytes", n))
		if n > 0 {
			fmt.Fprint(s.diag, s.lines.Bytes().Dump())
		}
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "<<< %s\n", strings.TrimSuffix(reply, s.delim))
	s.dump()
	return nil
}

func (s *session) dump() {
	if s.verbose {
		fmt.Fprint(s.diag, s.lines.Bytes().Dump())
	}
}
