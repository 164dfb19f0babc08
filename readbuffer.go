package serial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/luhtfiimanal/go-serial-linebuf/internal/logging"
)

// DefaultBufferSize is the arena size used when WithSize is not given.
const DefaultBufferSize = 4096

//go:generate mockgen -source=readbuffer.go -destination=source_mock_test.go -package=serial

// Source is the byte transport a ReadBuffer pulls from.
//
// Read must fill p completely, or return a *TimeoutError carrying the number
// of bytes written into p before the timeout. Any other error is returned to
// the ReadBuffer caller unchanged.
type Source interface {
	Read(p []byte, timeout time.Duration) error
	BytesAvailable() (int, error)
}

// ReadBuffer splits the byte stream of a Source into delimiter-terminated
// lines. Bytes read past a delimiter, or before a timeout, stay staged in a
// fixed-size arena for the next call.
//
// A ReadBuffer is not safe for concurrent use.
type ReadBuffer struct {
	src    Source
	arena  Buffer
	head   int // first unread byte
	tail   int // end of valid bytes
	logger *slog.Logger
}

// Option configures a ReadBuffer.
type Option func(rb *ReadBuffer) error

// WithSize sets the arena size in bytes.
func WithSize(size int) Option {
	return func(rb *ReadBuffer) error {
		if size <= 0 {
			return fmt.Errorf("%w: size %d", ErrCapacity, size)
		}
		rb.arena = NewBuffer(size)
		return nil
	}
}

// WithLogger sets the logger receiving cursor traces at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(rb *ReadBuffer) error {
		rb.logger = logger
		return nil
	}
}

// NewReadBuffer returns a ReadBuffer pulling bytes from src.
func NewReadBuffer(src Source, options ...Option) (*ReadBuffer, error) {
	if src == nil {
		return nil, ErrNoSource
	}
	rb := &ReadBuffer{src: src}
	for _, o := range options {
		if err := o(rb); err != nil {
			return nil, err
		}
	}
	if rb.arena == nil {
		rb.arena = NewBuffer(DefaultBufferSize)
	}
	rb.logger = logging.OrDiscard(rb.logger)
	return rb, nil
}

// ReadUntil returns the next run of bytes ending with delim, delimiter
// included.
//
// Staged bytes are searched before the Source is asked for more. A read that
// times out after delivering some bytes gets one more search; a read that
// times out with nothing new fails with a *TimeoutError whose Bytes is the
// number of unmatched bytes left staged. Those bytes are not lost: the next
// call searches them again.
//
// The arena must hold the staged bytes plus one whole chunk from the Source.
// When it cannot, even after compaction, ReadUntil fails with ErrCapacity and
// leaves the staged bytes untouched.
func (rb *ReadBuffer) ReadUntil(timeout time.Duration, delim string) (string, error) {
	if len(delim) == 0 {
		return "", ErrEmptyDelimiter
	}
	d := []byte(delim)
	if rb.logger.Enabled(context.Background(), slog.LevelDebug) {
		rb.logger.Debug("read until",
			slog.Int("head", rb.head),
			slog.Int("tail", rb.tail),
			slog.String("left", Escape(rb.Remainder())))
	}

	from := rb.head
	timedOut := false
	for {
		if i := bytes.Index(rb.arena[from:rb.tail], d); i >= 0 {
			end := from + i + len(d)
			line := string(rb.arena[rb.head:end])
			rb.head = end
			rb.logger.Debug("found delimiter", slog.Int("at", end-len(d)))
			return line, nil
		}
		if timedOut {
			return "", &TimeoutError{Bytes: rb.Buffered()}
		}
		// a match can only start in the last len(d)-1 searched bytes
		from = max(rb.head, rb.tail-len(d)+1)

		available, err := rb.src.BytesAvailable()
		if err != nil {
			return "", err
		}
		want := max(len(d), available)

		if len(rb.arena)-rb.tail < want {
			if rb.head == 0 {
				return "", rb.capacityError(want, delim)
			}
			from -= rb.head
			rb.compact()
			if len(rb.arena)-rb.tail < want {
				return "", rb.capacityError(want, delim)
			}
		}

		segment, err := NewView(rb.arena, rb.tail, rb.tail+want)
		if err != nil {
			return "", err
		}
		rb.logger.Debug("reading more", slog.Int("bytes", want), slog.Int("available", available))

		err = rb.src.Read(segment.Bytes(), timeout)
		if err == nil {
			rb.tail += want
			timedOut = false
			continue
		}
		var te *TimeoutError
		if !errors.As(err, &te) {
			return "", err
		}
		rb.logger.Debug("read timed out",
			slog.Int("bytes", te.Bytes),
			slog.Int("head", rb.head),
			slog.Int("tail", rb.tail))
		if te.Bytes <= 0 {
			return "", &TimeoutError{Bytes: rb.Buffered()}
		}
		rb.tail += min(te.Bytes, want)
		timedOut = true
	}
}

// ReadLine is ReadUntil with a single byte delimiter.
func (rb *ReadBuffer) ReadLine(timeout time.Duration, delim byte) (string, error) {
	return rb.ReadUntil(timeout, string([]byte{delim}))
}

func (rb *ReadBuffer) capacityError(want int, delim string) error {
	return fmt.Errorf("%w: %d bytes incoming, %d of %d free with %d staged without %q",
		ErrCapacity, want, len(rb.arena)-rb.tail, len(rb.arena), rb.Buffered(), delim)
}

// compact moves the unread bytes to the start of the arena.
func (rb *ReadBuffer) compact() {
	rb.logger.Debug("wrapping ring buffer", slog.Int("head", rb.head), slog.Int("tail", rb.tail))
	n := copy(rb.arena, rb.arena[rb.head:rb.tail])
	rb.head = 0
	rb.tail = n
}

// Buffered returns the number of staged, unmatched bytes.
func (rb *ReadBuffer) Buffered() int {
	return rb.tail - rb.head
}

// Pending reports whether staged bytes exist or the Source has bytes ready.
func (rb *ReadBuffer) Pending() (bool, error) {
	if rb.Buffered() > 0 {
		return true, nil
	}
	n, err := rb.src.BytesAvailable()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remainder returns the staged, unmatched bytes without consuming them.
func (rb *ReadBuffer) Remainder() string {
	return string(rb.arena[rb.head:rb.tail])
}

// Drain returns the staged, unmatched bytes and empties the buffer. The
// Source is not touched.
func (rb *ReadBuffer) Drain() string {
	s := rb.Remainder()
	rb.head, rb.tail = 0, 0
	return s
}

// Bytes returns a copy of the whole arena, for diagnostics.
func (rb *ReadBuffer) Bytes() Buffer {
	return bytes.Clone(rb.arena)
}
