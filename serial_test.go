//go:build linux

package serial

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

func openPTY(t *testing.T, cfg Config) (*os.File, *Port) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	cfg.Device = slave.Name()
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	port, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { port.Close() })
	return master, port
}

func TestPort_ChatMasterSlave(t *testing.T) {
	master, port := openPTY(t, Config{Delimiter: "\n"})

	// Channels for chat messages
	fromMaster := make(chan string, 1)
	fromSlave := make(chan string, 1)
	errors := make(chan error, 1)

	// Port reads from slave (master writes)
	go port.ReadLinesLoop(
		func(line string) {
			fmt.Println("Port received:", line)
			fromMaster <- line
		},
		func(err error) { errors <- err },
	)

	// Master reads from master (Port writes)
	go func() {
		buf := make([]byte, 128)
		n, err := master.Read(buf)
		if err != nil {
			errors <- err
			return
		}
		fromSlave <- string(buf[:n])
	}()

	// 1. Master writes to slave, Port should receive
	_, err := master.Write([]byte("ping\n"))
	require.NoError(t, err)

	select {
	case msg := <-fromMaster:
		require.Equal(t, "ping", msg)
	case err := <-errors:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for slave to receive from master")
	}

	// 2. Port writes to master, master should receive
	err = port.WriteLine("pong", "\n")
	require.NoError(t, err)

	select {
	case msg := <-fromSlave:
		require.Equal(t, "pong\n", msg)
	case err := <-errors:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for master to receive from slave")
	}
}

func TestPort_BasicRead(t *testing.T) {
	master, port := openPTY(t, Config{Delimiter: "\n"})

	lines := make(chan string, 1)
	errors := make(chan error, 1)
	go port.ReadLinesLoop(
		func(line string) { lines <- line },
		func(err error) { errors <- err },
	)

	_, err := master.Write([]byte("hello\n"))
	require.NoError(t, err)

	select {
	case l := <-lines:
		require.Equal(t, "hello", l)
	case err := <-errors:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for line")
	}
}

func TestPort_WriteLine(t *testing.T) {
	master, port := openPTY(t, Config{Delimiter: "\n"})

	line := "testline"
	newline := "\r\n"
	err := port.WriteLine(line, newline)
	require.NoError(t, err)

	buf := make([]byte, len(line)+len(newline))
	n, err := master.Read(buf)
	require.NoError(t, err)
	require.Equal(t, len(line)+len(newline), n)
	require.Equal(t, line+newline, string(buf))
}

func TestPort_WriteBuffer(t *testing.T) {
	master, port := openPTY(t, Config{})

	out := FromString("C,START", CRLF)
	require.NoError(t, port.Write(out, time.Second))

	buf := make([]byte, len(out))
	n, err := master.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "C,START\r\n", string(buf[:n]))
}

func TestPort_ReadTimeoutReportsPartialBytes(t *testing.T) {
	master, port := openPTY(t, Config{})

	_, err := master.Write([]byte("abc"))
	require.NoError(t, err)

	buf := make([]byte, 8)
	err = port.Read(buf, 100*time.Millisecond)
	n, ok := IsTimeout(err)
	require.True(t, ok, "expected timeout, got %v", err)
	require.Equal(t, 3, n)
	require.Equal(t, "abc", string(buf[:n]))
}

func TestPort_BytesAvailableAndFlush(t *testing.T) {
	master, port := openPTY(t, Config{})

	_, err := master.Write([]byte("junk!"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := port.BytesAvailable()
		return err == nil && n == 5
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, port.Flush())
	n, err := port.BytesAvailable()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPort_LinesAcrossWrites(t *testing.T) {
	master, port := openPTY(t, Config{})

	_, err := master.Write([]byte("OK\r"))
	require.NoError(t, err)
	go func() {
		time.Sleep(20 * time.Millisecond)
		master.Write([]byte("\nREADY\r\n"))
	}()

	lines := port.Lines()
	line, err := lines.ReadUntil(500*time.Millisecond, "\r\n")
	require.NoError(t, err)
	require.Equal(t, "OK\r\n", line)

	line, err = lines.ReadUntil(500*time.Millisecond, "\r\n")
	require.NoError(t, err)
	require.Equal(t, "READY\r\n", line)

	_, err = lines.ReadUntil(50*time.Millisecond, "\r\n")
	_, ok := IsTimeout(err)
	require.True(t, ok, "expected timeout, got %v", err)
}

func TestPort_UnsupportedBaudRate(t *testing.T) {
	_, err := Open(Config{Device: "/dev/null", BaudRate: 12345})
	require.ErrorContains(t, err, "supported values are")
}

func TestPort_Killability(t *testing.T) {
	master, port := openPTY(t, Config{Delimiter: "\n"})

	done := make(chan struct{})
	exitError := make(chan error, 1)

	go func() {
		port.ReadLinesLoop(
			func(line string) {},
			func(err error) {
				select {
				case exitError <- err:
				default:
				}
			},
		)
		close(done)
	}()

	// Give the goroutine a chance to block
	time.Sleep(50 * time.Millisecond)

	_, err := master.Write([]byte("test data\n"))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	// Now close the port, which should unblock the loop
	err = port.Close()
	require.NoError(t, err)

	select {
	case <-done:
		t.Log("ReadLinesLoop successfully exited after Close")
	case err := <-exitError:
		t.Logf("ReadLinesLoop exited with error: %v", err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for ReadLinesLoop to exit after Close")
	}

	// Should be a no-op due to closeOnce
	require.NoError(t, port.Close())

	_, err = port.BytesAvailable()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, port.Read(make([]byte, 1), time.Millisecond), ErrClosed)
}

func TestPort_ErrorPropagation(t *testing.T) {
	master, port := openPTY(t, Config{Delimiter: "\n"})

	errors := make(chan error, 1)
	go port.ReadLinesLoop(
		func(line string) {},
		func(err error) { errors <- err },
	)

	// Simulate device disconnect by closing master
	require.NoError(t, master.Close())

	select {
	case err := <-errors:
		require.Error(t, err)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for error after device disconnect")
	}
}
