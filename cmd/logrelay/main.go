// Command logrelay runs the log relay server.
//
// Producers connect, claim a channel and send log events; the relay fans
// every event out to the subscribers of that channel and of "*", appends
// it to the log file and, optionally, mirrors it to NATS.
//
// Usage:
//
//	logrelay [flags]
//
// Flags:
//
//	-config string       YAML configuration file (environment wins)
//	-port int            Listen port (overrides LOGSERVER_PORT)
//	-log-level string    Log level: debug, info, warn, error (default "info")
//	-capture string      Protocol capture file (overrides LOGSERVER_CAPTURE_FILE)
//	-quiet               Do not print events to stdout
//	-hash-token string   Print the bcrypt hash for a token and exit
//	-issue-jwt string    Print a JWT for a channel and exit (uses LOGSERVER_JWT_SECRET)
//	-ttl duration        Lifetime of -issue-jwt tokens (default 24h, 0 = no expiry)
//
// Environment: see pkg/config (LOGSERVER_*).
//
// Examples:
//
//	# Plain TCP on 7031, events to /var/log/logserv.log
//	logrelay
//
//	# TLS with a shared token
//	LOGSERVER_CERT_PATH=cert.pem LOGSERVER_KEY_PATH=key.pem \
//	LOGSERVER_TOKEN_HASH=$(logrelay -hash-token s3cret) logrelay
//
//	# Mirror to NATS and advertise via mDNS
//	LOGSERVER_NATS_URL=nats://localhost:4222 LOGSERVER_MDNS=1 logrelay
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mash-protocol/logrelay/pkg/auth"
	"github.com/mash-protocol/logrelay/pkg/config"
	"github.com/mash-protocol/logrelay/pkg/discovery"
	"github.com/mash-protocol/logrelay/pkg/display"
	"github.com/mash-protocol/logrelay/pkg/log"
	"github.com/mash-protocol/logrelay/pkg/mirror"
	"github.com/mash-protocol/logrelay/pkg/relay"
	"github.com/mash-protocol/logrelay/pkg/sink"
	"github.com/mash-protocol/logrelay/pkg/transport"
)

// Flags holds command-line settings that override the environment.
type Flags struct {
	ConfigFile string
	Port       int
	LogLevel   string
	Capture    string
	Quiet      bool
	HashToken  string
	IssueJWT   string
	TTL        time.Duration
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "YAML configuration file (environment wins)")
	flag.IntVar(&flags.Port, "port", 0, "Listen port (overrides LOGSERVER_PORT)")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.Capture, "capture", "", "Protocol capture file (overrides LOGSERVER_CAPTURE_FILE)")
	flag.BoolVar(&flags.Quiet, "quiet", false, "Do not print events to stdout")
	flag.StringVar(&flags.HashToken, "hash-token", "", "Print the bcrypt hash for a token and exit")
	flag.StringVar(&flags.IssueJWT, "issue-jwt", "", "Print a JWT for a channel and exit (uses LOGSERVER_JWT_SECRET)")
	flag.DurationVar(&flags.TTL, "ttl", 24*time.Hour, "Lifetime of -issue-jwt tokens (0 = no expiry)")
}

func main() {
	flag.Parse()

	logger := newLogger(flags.LogLevel)
	slog.SetDefault(logger)

	cfg, err := config.LoadServer(flags.ConfigFile)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if flags.Port != 0 {
		cfg.Port = flags.Port
	}
	if flags.Capture != "" {
		cfg.Capture = flags.Capture
	}

	switch {
	case flags.HashToken != "":
		hash, err := auth.HashToken(flags.HashToken)
		if err != nil {
			logger.Error("hash token", "error", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	case flags.IssueJWT != "":
		token, err := auth.IssueToken([]byte(cfg.JWTSecret), flags.IssueJWT, flags.TTL)
		if err != nil {
			logger.Error("issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("relay failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Server, logger *slog.Logger) error {
	authorizer, err := newAuthorizer(cfg)
	if err != nil {
		return err
	}

	fileSink := sink.NewFileSink(sink.FileConfig{Path: cfg.LogFile, Logger: logger})
	events := sink.NewAsync(fileSink, sink.WithLogger(logger))
	defer events.Close()

	var publisher mirror.Publisher = mirror.NoopPublisher{}
	if cfg.NATSURL != "" {
		p, err := mirror.NewNATSPublisher(mirror.Config{
			URL:    cfg.NATSURL,
			Prefix: cfg.NATSPrefix,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("connect NATS: %w", err)
		}
		defer p.Close()
		publisher = p
		logger.Info("mirroring events to NATS", "url", cfg.NATSURL)
	}

	var capture log.Logger
	if cfg.Capture != "" {
		fl, err := log.NewFileLogger(cfg.Capture)
		if err != nil {
			return fmt.Errorf("open capture file: %w", err)
		}
		defer fl.Close()
		capture = fl
		if logger.Enabled(context.Background(), slog.LevelDebug) {
			capture = log.NewMultiLogger(fl, log.NewSlogAdapter(logger))
		}
		logger.Info("capturing protocol events", "path", cfg.Capture)
	}

	var tlsConfig *transport.TLSConfig
	if cfg.TLSEnabled() {
		tlsConfig, err = transport.LoadKeyPair(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return err
		}
	}

	var console *display.Renderer
	if !flags.Quiet {
		console = display.Stdout()
	}

	srv, err := relay.NewServer(relay.ServerConfig{
		Address:   cfg.Address(),
		TLSConfig: tlsConfig,
		Engine: relay.Config{
			Authorizer:              authorizer,
			Sink:                    events,
			Mirror:                  publisher,
			Console:                 console,
			EnforceHandshakeChannel: cfg.EnforceChannel,
			RateLimit:               cfg.RateLimit,
			RateBurst:               cfg.RateBurst,
		},
		Logger:         logger,
		ProtocolLogger: capture,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("log relay listening",
		"addr", srv.Addr().String(),
		"tls", srv.TLSEnabled(),
		"log_file", fileSink.Path())

	if cfg.MDNS {
		adv := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{})
		err := adv.Advertise(&discovery.RelayInfo{Port: uint16(cfg.Port), TLS: srv.TLSEnabled()})
		if err != nil {
			logger.Warn("mDNS advertisement failed", "error", err)
		} else {
			defer adv.Stop()
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if err := srv.Stop(); err != nil {
		logger.Warn("stop relay", "error", err)
	}
	stats := srv.Engine().Stats()
	logger.Info("relay stopped",
		"emitted", stats.Emitted,
		"delivered", stats.Delivered,
		"rejected", stats.Rejected,
		"dropped", stats.Dropped,
		"overflow", stats.Overflow,
		"sink_failures", fileSink.Failures(),
		"sink_dropped", events.Dropped())
	return nil
}

func newAuthorizer(cfg *config.Server) (auth.Authorizer, error) {
	switch {
	case cfg.TokenHash != "":
		return auth.NewTokenAuthorizer(cfg.TokenHash)
	case cfg.JWTSecret != "":
		return auth.NewJWTAuthorizer(auth.JWTConfig{Secret: []byte(cfg.JWTSecret)})
	default:
		return auth.AllowAll, nil
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
