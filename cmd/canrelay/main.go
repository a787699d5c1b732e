// Command canrelay serves the hardware bridge HTTP API on top of one or more
// CAN interfaces.
//
//	canrelay [flags] bus [bus...]
//
// With -virtual the named buses are in-memory loopback buses instead of
// SocketCAN interfaces, which is useful without hardware.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/phsym/console-slog"

	"github.com/notnil/canrelay/canbus"
	"github.com/notnil/canrelay/httpapi"
	"github.com/notnil/canrelay/relay"
)

type options struct {
	host        string
	port        int
	virtual     bool
	maxTimeout  time.Duration
	maxPackets  int
	logLevel    string
	traceFrames bool
	traceID     string
	buses       []string
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	logger, err := newLogger(os.Stdout, opts.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(opts, logger); err != nil {
		logger.Error("canrelay stopped", "error", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("canrelay", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: canrelay [flags] bus [bus...]\n\n")
		fmt.Fprintf(output, "Flags must come before the bus names.\n\n")
		fmt.Fprintf(output, "Serves the hardware bridge HTTP API on the given CAN interfaces (can0, vcan0, ...).\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.host, "host", "", "listen address")
	fs.IntVar(&opts.port, "port", 8080, "web server port")
	fs.IntVar(&opts.port, "p", 8080, "web server port (shorthand)")
	fs.BoolVar(&opts.virtual, "virtual", false, "serve in-memory loopback buses instead of SocketCAN")
	fs.DurationVar(&opts.maxTimeout, "max-timeout", relay.DefaultTimeoutLimit, "largest accepted isotpsend_and_wait timeout")
	fs.IntVar(&opts.maxPackets, "max-packets", relay.DefaultPacketLimit, "largest accepted isotpsend_and_wait maxpkts")
	fs.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	fs.BoolVar(&opts.traceFrames, "trace-frames", false, "log every frame at debug level")
	fs.StringVar(&opts.traceID, "trace-id", "", "with -trace-frames, log only frames with this hex identifier")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.buses = fs.Args()
	if len(opts.buses) == 0 {
		fmt.Fprintln(output, "canrelay: at least one CAN bus is required")
		fs.Usage()
		return nil, errors.New("no buses")
	}
	for _, name := range opts.buses {
		if strings.HasPrefix(name, "-") {
			fmt.Fprintf(output, "canrelay: flag %q after bus names; flags must come first\n", name)
			return nil, fmt.Errorf("misplaced flag %q", name)
		}
	}
	if opts.traceID != "" {
		if _, err := relay.ParseID(opts.traceID); err != nil {
			fmt.Fprintf(output, "canrelay: -trace-id: %v\n", err)
			return nil, err
		}
	}
	if opts.port < 0 || opts.port > 65535 {
		fmt.Fprintf(output, "canrelay: port %d is out of range [0, 65535]\n", opts.port)
		return nil, errors.New("invalid port")
	}
	return opts, nil
}

// newLogger builds the process logger: JSON records with a "ts" time key, or
// a console handler when ENV=development.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}

	var handler slog.Handler
	if os.Getenv("ENV") == "development" {
		handler = console.NewHandler(w, &console.HandlerOptions{
			AddSource: true,
			Level:     lvl,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: lvl,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					a.Key = "ts"
				}
				return a
			},
		})
	}
	return slog.New(handler), nil
}

func newOpener(opts *options, logger *slog.Logger) (canbus.Opener, func()) {
	if opts.virtual {
		network := canbus.NewLoopbackNetwork(opts.buses...)
		return network, func() { _ = network.Close() }
	}
	for _, name := range opts.buses {
		up, err := canbus.IsInterfaceUp(name)
		switch {
		case err != nil:
			logger.Warn("cannot query CAN interface", "bus", name, "error", err)
		case !up:
			logger.Warn("CAN interface is down", "bus", name)
		}
	}
	return canbus.SocketCANOpener{}, func() {}
}

// traceOptions maps the frame tracing flags to relay options. parseFlags has
// already validated traceID.
func traceOptions(opts *options) []relay.Option {
	if !opts.traceFrames {
		return nil
	}
	relayOpts := []relay.Option{relay.WithFrameLogging(slog.LevelDebug)}
	if opts.traceID != "" {
		id, _ := relay.ParseID(opts.traceID)
		relayOpts = append(relayOpts, relay.WithFrameLogFilter(canbus.ByID(id)))
	}
	return relayOpts
}

func run(opts *options, logger *slog.Logger) error {
	logger.Info("using sockets", "buses", strings.Join(opts.buses, " "), "virtual", opts.virtual)

	opener, closeOpener := newOpener(opts, logger)
	defer closeOpener()

	relayOpts := []relay.Option{
		relay.WithLogger(logger),
		relay.WithMaxTimeout(opts.maxTimeout),
		relay.WithMaxPackets(opts.maxPackets),
	}
	rl, err := relay.New(opener, relay.NewCounters(opts.buses), append(relayOpts, traceOptions(opts)...)...)
	if err != nil {
		return err
	}
	maxTimeout, maxPackets := rl.Limits()
	logger.Info("relay limits", "max_timeout", maxTimeout, "max_packets", maxPackets)

	srv := &http.Server{
		Addr:              net.JoinHostPort(opts.host, strconv.Itoa(opts.port)),
		Handler:           httpapi.NewServer(rl, httpapi.WithLogger(logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// In-flight waits may hold a worker for up to the max timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.maxTimeout+time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
