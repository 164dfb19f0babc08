package serial

import (
	"errors"
	"fmt"
)

var (
	// ErrBounds is returned when a View is requested outside of its Buffer.
	ErrBounds = errors.New("invalid buffer view")

	// ErrCapacity is returned when the read buffer cannot make room for more bytes.
	ErrCapacity = errors.New("read buffer too small")

	// ErrNoSource is returned when a ReadBuffer is built without a Source.
	ErrNoSource = errors.New("cannot function without a source")

	// ErrEmptyDelimiter is returned when ReadUntil is called with an empty delimiter.
	ErrEmptyDelimiter = errors.New("empty delimiter")

	// ErrClosed is returned by a Port once Close has been called.
	ErrClosed = errors.New("serial port closed")
)

// TimeoutError reports that a read or write ran out of time.
//
// For a Source read, Bytes is the number of bytes written into the
// destination before the timeout. For ReadBuffer.ReadUntil, Bytes is the
// number of unmatched bytes still staged in the buffer; they are kept for
// the next call.
type TimeoutError struct {
	Bytes int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %d bytes", e.Bytes)
}

// Timeout lets TimeoutError satisfy the net.Error style of checks.
func (e *TimeoutError) Timeout() bool { return true }

// IsTimeout reports whether err is a TimeoutError and the byte count it carries.
func IsTimeout(err error) (int, bool) {
	var te *TimeoutError
	if errors.As(err, &te) {
		return te.Bytes, true
	}
	return 0, false
}
