package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	serial "github.com/luhtfiimanal/go-serial-linebuf"
	"github.com/luhtfiimanal/go-serial-linebuf/internal/config"
	"github.com/luhtfiimanal/go-serial-linebuf/internal/logging"
)

// CLI holds the serial-repl flags. Each one can also come from the
// environment or from the YAML file named by --config.
type CLI struct {
	Device       string                 `name:"device" short:"d" help:"Serial device to open. Lists the available ports and prompts when empty." env:"SERIAL_DEVICE" optional:""`
	BaudRate     int                    `name:"baudrate" short:"b" help:"Baud rate to use." env:"SERIAL_BAUDRATE" default:"19200"`
	Termination  serial.LineTermination `name:"termination" short:"t" help:"Line termination appended to sent lines (none, lf, cr, crlf, null)." env:"SERIAL_TERMINATION" default:"none"`
	Delimiter    string                 `name:"delimiter" help:"Delimiter ending device replies, escapes like \\r\\n allowed. Defaults to the one matching --termination." env:"SERIAL_DELIMITER" optional:""`
	Timeout      time.Duration          `name:"timeout" help:"How long to wait for a reply." env:"SERIAL_TIMEOUT" default:"10s"`
	BufferSize   int                    `name:"buffer-size" help:"Size of the read buffer in bytes." env:"SERIAL_BUFFER_SIZE" default:"4096"`
	OpenAttempts uint                   `name:"open-attempts" help:"Attempts at opening the device before giving up." env:"SERIAL_OPEN_ATTEMPTS" default:"1"`
	Verbose      bool                   `name:"verbose" short:"v" help:"Dump the read buffer after each exchange."`
	LogLevel     slog.Level             `name:"log-level" help:"Log level." env:"SERIAL_LOG_LEVEL" default:"INFO" enum:"DEBUG,INFO,WARN,ERROR"`
	LogFile      string                 `name:"log-file" help:"Write JSON logs to this rotated file instead of stderr." env:"SERIAL_LOG_FILE" optional:""`
	Config       kong.ConfigFlag        `name:"config" help:"YAML file holding defaults for the flags above."`
}

func (cli *CLI) initLogger() *slog.Logger {
	return logging.New(logging.Options{Level: cli.LogLevel, File: cli.LogFile})
}

func (cli *CLI) delimiter() string {
	if cli.Delimiter != "" {
		return serial.ParseEscapes(cli.Delimiter)
	}
	return string([]byte{cli.Termination.ReplyDelimiter()})
}

// chooseDevice lists the ports and reads the user's pick from input.
func chooseDevice(out io.Writer, input <-chan string) (string, error) {
	ports, err := serial.ListPorts()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", errors.New("no interfaces found")
	}
	fmt.Fprintln(out, "Available interfaces:")
	for i, p := range ports {
		fmt.Fprintf(out, "[%d]: %s\n", i, p)
	}
	fmt.Fprintln(out, "Please choose an interface:")
	line, ok := <-input
	if !ok {
		return "", io.ErrUnexpectedEOF
	}
	idx, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || idx < 0 || idx >= len(ports) {
		return "", fmt.Errorf("invalid interface %q", line)
	}
	return ports[idx], nil
}

func (cli *CLI) openPort(ctx context.Context, logger *slog.Logger) (*serial.Port, error) {
	cfg := serial.Config{
		Device:      cli.Device,
		BaudRate:    cli.BaudRate,
		Delimiter:   cli.delimiter(),
		ReadTimeout: cli.Timeout,
		BufferSize:  cli.BufferSize,
	}
	return retry.DoWithData(
		func() (*serial.Port, error) {
			return serial.Open(cfg, serial.WithLogger(logger.With(slog.String("device", cfg.Device))))
		},
		retry.Context(ctx),
		retry.Attempts(max(cli.OpenAttempts, 1)),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("opening device failed, retrying", slog.Uint64("attempt", uint64(n+1)), slog.Any("error", err))
		}),
	)
}

// readInput feeds stdin lines to a channel so prompts can be abandoned on
// shutdown.
func readInput(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			ch <- scanner.Text()
		}
	}()
	return ch
}

func main() {
	var cli CLI
	kongCtx := kong.Parse(&cli,
		kong.Description("Talk to a serial device line by line."),
		kong.Configuration(config.YAML, "~/.config/serial-repl.yaml"),
	)
	logger := cli.initLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	input := readInput(os.Stdin)
	if cli.Device == "" {
		dev, err := chooseDevice(os.Stdout, input)
		kongCtx.FatalIfErrorf(err)
		cli.Device = dev
	}

	port, err := cli.openPort(ctx, logger)
	kongCtx.FatalIfErrorf(err)
	logger.Info("device opened",
		slog.String("device", cli.Device),
		slog.Int("baudrate", cli.BaudRate),
		slog.String("termination", cli.Termination.String()),
		slog.String("delimiter", serial.Escape(cli.delimiter())))

	if err := port.Flush(); err != nil {
		logger.Warn("flush failed", slog.Any("error", err))
	}

	s := &session{
		dev:     port,
		lines:   port.Lines(),
		term:    cli.Termination,
		delim:   cli.delimiter(),
		timeout: cli.Timeout,
		verbose: cli.Verbose,
		logger:  logger,
		out:     os.Stdout,
		diag:    os.Stderr,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return s.run(gctx, input)
	})
	g.Go(func() error {
		<-gctx.Done()
		return port.Close()
	})
	// ErrClosed only means a signal closed the port under a pending read.
	if err := g.Wait(); err != nil && !errors.Is(err, serial.ErrClosed) {
		kongCtx.FatalIfErrorf(err)
	}
}
