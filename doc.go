// Package serial reads delimiter-terminated lines from slow, chunk-oriented
// byte sources such as serial ports attached to embedded devices.
//
// The core is ReadBuffer, a fixed-size arena sitting on top of any Source. It
// stages the bytes a device sends, hands them out one delimiter-terminated
// line at a time and keeps whatever trails the delimiter, or whatever arrived
// before a timeout, for the next call. Nothing is lost on a timeout: the
// *TimeoutError tells how many bytes are still staged.
//
// Port is the Linux Source: raw termios I/O through syscalls, with a
// self-pipe so that Close unblocks a pending read from another goroutine.
//
// Features:
//   - Multi-byte delimiters, found even when split across reads
//   - Partial reads survive timeouts
//   - Hex dumps of buffers for debugging (Buffer.Dump)
//   - PTY-based tests for the port, gomock tests for the buffer
//
// The Port does **not** support Windows.
//
// Example usage:
//
//	port, err := serial.Open(serial.Config{
//	    Device:    "/dev/ttyUSB0",
//	    BaudRate:  115200,
//	    Delimiter: "\r\n",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	if err := port.WriteLine("C,INFO", "\r\n"); err != nil {
//	    log.Println("Write failed:", err)
//	}
//	line, err := port.Lines().ReadUntil(time.Second, "\r\n")
//	if n, ok := serial.IsTimeout(err); ok {
//	    log.Printf("no reply, %d bytes staged", n)
//	}
//
// Any other transport works as long as it implements Source:
//
//	lines, err := serial.NewReadBuffer(src, serial.WithSize(256))
package serial
