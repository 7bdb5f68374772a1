// Command logrelay-tail subscribes to a log relay and prints events.
//
// Usage:
//
//	logrelay-tail [flags] [topic...]
//
// Topics default to "*" (every channel).
//
// Flags:
//
//	-config string     YAML client configuration (environment wins)
//	-host string       Relay host (overrides LOGSERVER_HOST)
//	-channel string    Channel to claim at handshake (default "tail")
//	-discover          Find the relay with mDNS instead of -host
//	-nats string       Tail the NATS mirror at this URL instead of the relay
//	-nats-prefix       Subject prefix of the mirror (default "logrelay")
//	-interactive       Read listen/unlisten/log commands from the terminal
//	-log-level string  Log level: debug, info, warn, error (default "warn")
//
// Examples:
//
//	# Everything
//	logrelay-tail
//
//	# Two channels, TLS, token from the environment
//	LOGSERVER_TLS=1 LOGSERVER_TOKEN=s3cret logrelay-tail build deploy
//
//	# Follow the mirror without touching the relay
//	logrelay-tail -nats nats://localhost:4222 build
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mash-protocol/logrelay/cmd/logrelay-tail/interactive"
	"github.com/mash-protocol/logrelay/pkg/client"
	"github.com/mash-protocol/logrelay/pkg/config"
	"github.com/mash-protocol/logrelay/pkg/discovery"
	"github.com/mash-protocol/logrelay/pkg/display"
	"github.com/mash-protocol/logrelay/pkg/mirror"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

// Flags holds command-line settings.
type Flags struct {
	ConfigFile  string
	Host        string
	Channel     string
	Discover    bool
	NATSURL     string
	NATSPrefix  string
	Interactive bool
	LogLevel    string
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "YAML client configuration (environment wins)")
	flag.StringVar(&flags.Host, "host", "", "Relay host (overrides LOGSERVER_HOST)")
	flag.StringVar(&flags.Channel, "channel", "tail", "Channel to claim at handshake")
	flag.BoolVar(&flags.Discover, "discover", false, "Find the relay with mDNS instead of -host")
	flag.StringVar(&flags.NATSURL, "nats", "", "Tail the NATS mirror at this URL instead of the relay")
	flag.StringVar(&flags.NATSPrefix, "nats-prefix", mirror.DefaultPrefix, "Subject prefix of the mirror")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Read listen/unlisten/log commands from the terminal")
	flag.StringVar(&flags.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cancel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc) error {
	var console *interactive.Console
	out := display.Stdout()
	logOut := os.Stderr

	topics := flag.Args()
	if len(topics) == 0 {
		topics = []string{"*"}
	}

	src, closeSrc, err := openSource(ctx, out, newLogger(flags.LogLevel, logOut))
	if err != nil {
		return err
	}
	defer closeSrc()

	if flags.Interactive {
		console, err = interactive.New(src)
		if err != nil {
			return err
		}
		// Route event output through readline so it does not garble the prompt.
		*out = *display.NewRenderer(console.Stdout(), out.Colorize())
	}

	for _, topic := range topics {
		if err := src.Listen(topic); err != nil {
			return fmt.Errorf("listen %s: %w", topic, err)
		}
	}

	if console != nil {
		go console.Run(ctx, cancel)
	}
	<-ctx.Done()
	return nil
}

// openSource connects to the relay, or to the NATS mirror with -nats.
func openSource(ctx context.Context, out *display.Renderer, logger *slog.Logger) (interactive.Source, func(), error) {
	if flags.NATSURL != "" {
		sub, err := mirror.NewNATSSubscriber(mirror.Config{
			URL:    flags.NATSURL,
			Prefix: flags.NATSPrefix,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect NATS: %w", err)
		}
		return newNATSSource(sub, out, flags.NATSURL), func() { _ = sub.Close() }, nil
	}

	cfg, err := config.LoadClient(flags.ConfigFile)
	if err != nil {
		return nil, nil, err
	}
	if flags.Host != "" {
		cfg.Host = flags.Host
	}
	if flags.Discover {
		svc, err := discovery.NewMDNSBrowser(discovery.BrowserConfig{}).FindFirst(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("discover relay: %w", err)
		}
		host, port, err := net.SplitHostPort(svc.Address())
		if err != nil {
			return nil, nil, err
		}
		cfg.Host = host
		cfg.Port, _ = strconv.Atoi(port)
		cfg.TLS = svc.TLS
		logger.Info("discovered relay", "instance", svc.InstanceName, "addr", svc.Address(), "tls", svc.TLS)
	}

	tc, err := cfg.TransportConfig()
	if err != nil {
		return nil, nil, err
	}

	session := client.New(client.Config{
		Channel: flags.Channel,
		Token:   cfg.Token,
		Dialer:  client.NewTransportDialer(cfg.Address(), tc),
		Logger:  logger,
	})
	session.OnPush(func(p *wire.Push) { _ = out.PrintPush(p) })
	session.OnError(func(err error) {
		if errors.Is(err, client.ErrRejected) {
			fmt.Fprintf(os.Stderr, "relay refused %q: %v\n", flags.Channel, err)
		}
	})

	// A failed first attempt keeps retrying in the background, except for a rejection.
	if err := session.Connect(ctx); err != nil && errors.Is(err, client.ErrRejected) {
		_ = session.Close()
		return nil, nil, err
	}

	return &sessionSource{session: session, address: cfg.Address()}, func() { _ = session.Close() }, nil
}

func newLogger(level string, w *os.File) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}
