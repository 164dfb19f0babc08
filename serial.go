//go:build linux

package serial

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
)

// Port provides killable, timeout-driven access to a Linux serial port.
// It implements Source, so it can feed a ReadBuffer directly.
//
// Close may be called from any goroutine and unblocks pending reads and
// writes. ReadLine and ReadLinesLoop share one ReadBuffer and must not be
// called concurrently.
type Port struct {
	fd        int
	done      chan struct{}
	closeOnce sync.Once
	config    Config
	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd

	lines *ReadBuffer
}

// Config holds configuration parameters for opening a serial port.
type Config struct {
	Device      string
	BaudRate    int
	Delimiter   string        // default "\r\n"
	ReadTimeout time.Duration // per read, default 1s
	BufferSize  int           // line buffer size, default DefaultBufferSize
}

var baudRates = map[int]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

// SupportedBaudRates lists the rates Open accepts, in increasing order.
func SupportedBaudRates() []int {
	res := make([]int, 0, len(baudRates))
	for b := range baudRates {
		res = append(res, b)
	}
	sort.Ints(res)
	return res
}

// Open opens a serial port using the provided Config and returns a Port.
// The port is configured for raw 8N1 operation.
func Open(cfg Config, options ...Option) (p *Port, err error) {
	if cfg.Delimiter == "" {
		cfg.Delimiter = "\r\n"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	baud, ok := baudRates[cfg.BaudRate]
	if !ok {
		return nil, fmt.Errorf("unsupported baudrate %d, supported values are: %v", cfg.BaudRate, SupportedBaudRates())
	}

	fd, err := unix.Open(cfg.Device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0666)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}
	defer func() {
		if err != nil {
			unix.Close(fd)
		}
	}()

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud

	// Reads return as soon as one byte is there; timeouts come from poll.
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return nil, fmt.Errorf("set termios: %w", err)
	}

	// Turn back into blocking mode now that config is done
	if err := unix.SetNonblock(fd, false); err != nil {
		return nil, fmt.Errorf("set blocking: %w", err)
	}

	// Create self-pipe for killability
	pipeFds := make([]int, 2)
	if err := unix.Pipe2(pipeFds, unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}

	p = &Port{
		fd:     fd,
		done:   make(chan struct{}),
		config: cfg,
		pipeR:  pipeFds[0],
		pipeW:  pipeFds[1],
	}
	p.lines, err = NewReadBuffer(p, append([]Option{WithSize(cfg.BufferSize)}, options...)...)
	if err != nil {
		unix.Close(pipeFds[0])
		unix.Close(pipeFds[1])
		return nil, err
	}
	return p, nil
}

// wait blocks until the port is ready for events or the deadline passes.
// A zero deadline waits forever.
func (p *Port) wait(events int16, deadline time.Time) (bool, error) {
	for {
		if p.closed() {
			return false, ErrClosed
		}

		timeout := -1
		if !deadline.IsZero() {
			timeout = max(0, int(time.Until(deadline).Milliseconds()))
		}
		pfd := []unix.PollFd{
			{Fd: int32(p.fd), Events: events},
			{Fd: int32(p.pipeR), Events: unix.POLLIN},
		}
		n, err := unix.Poll(pfd, timeout)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("poll: %w", err)
		}
		if p.closed() || pfd[1].Revents&unix.POLLIN != 0 {
			return false, ErrClosed
		}
		if n == 0 {
			return false, nil
		}
		return true, nil
	}
}

func (p *Port) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func deadlineFor(timeout time.Duration) time.Time {
	if timeout < 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// Read fills buf from the port. If timeout elapses first it returns a
// *TimeoutError with the number of bytes already stored in buf. A negative
// timeout waits forever.
func (p *Port) Read(buf []byte, timeout time.Duration) error {
	deadline := deadlineFor(timeout)
	read := 0
	for read < len(buf) {
		ready, err := p.wait(unix.POLLIN, deadline)
		if err != nil {
			return err
		}
		if !ready {
			return &TimeoutError{Bytes: read}
		}
		n, err := unix.Read(p.fd, buf[read:])
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			continue
		}
		if err != nil {
			if p.closed() {
				return ErrClosed
			}
			return fmt.Errorf("read %s: %w", p.config.Device, err)
		}
		if n == 0 {
			return fmt.Errorf("read %s: %w", p.config.Device, io.EOF)
		}
		read += n
	}
	return nil
}

// Write sends all of buf. If timeout elapses first it returns a
// *TimeoutError with the number of bytes already written.
func (p *Port) Write(buf []byte, timeout time.Duration) error {
	deadline := deadlineFor(timeout)
	written := 0
	for written < len(buf) {
		ready, err := p.wait(unix.POLLOUT, deadline)
		if err != nil {
			return err
		}
		if !ready {
			return &TimeoutError{Bytes: written}
		}
		n, err := unix.Write(p.fd, buf[written:])
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			continue
		}
		if err != nil {
			if p.closed() {
				return ErrClosed
			}
			return fmt.Errorf("write %s: %w", p.config.Device, err)
		}
		written += n
	}
	return nil
}

// BytesAvailable returns the number of bytes waiting in the input queue.
func (p *Port) BytesAvailable() (int, error) {
	if p.closed() {
		return 0, ErrClosed
	}
	n, err := unix.IoctlGetInt(p.fd, unix.TIOCINQ)
	if err != nil {
		if p.closed() {
			return 0, ErrClosed
		}
		return 0, fmt.Errorf("bytes available: %w", err)
	}
	return n, nil
}

// Flush discards input received by the port but not yet read. Bytes already
// staged by ReadLine are kept.
func (p *Port) Flush() error {
	if err := unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCIFLUSH); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Lines returns the buffer behind ReadLine, for callers that need other
// delimiters or timeouts on the same stream.
func (p *Port) Lines() *ReadBuffer {
	return p.lines
}

// WriteLine writes a line (with specified newline) to the serial port.
func (p *Port) WriteLine(line string, newline string) error {
	return p.Write([]byte(line+newline), -1)
}

// ReadLine reads a single line from the serial port, blocking until a full
// line is received or an error occurs. The delimiter, set in Config, is
// stripped.
func (p *Port) ReadLine() (string, error) {
	for {
		line, err := p.lines.ReadUntil(p.config.ReadTimeout, p.config.Delimiter)
		if _, ok := IsTimeout(err); ok {
			continue
		}
		if err != nil {
			return "", err
		}
		return strings.TrimSuffix(line, p.config.Delimiter), nil
	}
}

// ReadLinesLoop continuously reads lines from the serial port and invokes onLine for each complete line.
// If an error occurs, onError is called and the loop exits. Close ends the loop without calling onError.
func (p *Port) ReadLinesLoop(onLine func(string), onError func(error)) {
	for {
		line, err := p.ReadLine()
		if errors.Is(err, ErrClosed) {
			return
		}
		if err != nil {
			onError(err)
			return
		}
		onLine(line)
	}
}

// Close closes the serial port and unblocks any pending Read, Write or
// ReadLinesLoop. Safe to call multiple times; subsequent calls are no-ops.
func (p *Port) Close() error {
	var result *multierror.Error
	p.closeOnce.Do(func() {
		close(p.done)
		// Wake up poll using self-pipe
		if _, err := unix.Write(p.pipeW, []byte{1}); err != nil {
			result = multierror.Append(result, fmt.Errorf("wake: %w", err))
		}
		if err := unix.Close(p.fd); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", p.config.Device, err))
		}
		for _, fd := range []int{p.pipeR, p.pipeW} {
			if err := unix.Close(fd); err != nil {
				result = multierror.Append(result, fmt.Errorf("close pipe: %w", err))
			}
		}
	})
	return result.ErrorOrNil()
}
