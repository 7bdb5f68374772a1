package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mash-protocol/logrelay/pkg/log"
	"github.com/mash-protocol/logrelay/pkg/sink"
	"github.com/mash-protocol/logrelay/pkg/transport"
)

// DefaultReaperInterval is how often pending handshakes are checked.
const DefaultReaperInterval = time.Second

// ServerConfig configures a relay Server.
type ServerConfig struct {
	// Address to listen on. Defaults to ":7031".
	Address string

	// TLSConfig enables TLS. Nil serves plain TCP.
	TLSConfig *transport.TLSConfig

	// MaxMessageSize is the maximum frame payload (default: 1 MiB).
	MaxMessageSize uint32

	// ReaperInterval is the handshake reaper period (default: 1s).
	ReaperInterval time.Duration

	// SendQueueSize bounds the pushes queued per subscriber (default: 256).
	SendQueueSize int

	// WriteTimeout disconnects a subscriber that cannot take a frame in
	// time (default: 10s).
	WriteTimeout time.Duration

	// Engine configures distribution. Its Logger and ProtocolLogger
	// default to the server's. A Sink that is not already a *sink.Async
	// is wrapped in one and closed by Stop.
	Engine Config

	// Logger receives operational messages (optional).
	Logger *slog.Logger

	// ProtocolLogger receives capture events from every layer (optional).
	ProtocolLogger log.Logger
}

// Server binds an Engine to a transport listener.
type Server struct {
	config    ServerConfig
	engine    *Engine
	transport *transport.Server
	ownedSink *sink.Async

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a relay server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.ReaperInterval == 0 {
		config.ReaperInterval = DefaultReaperInterval
	}
	if config.Engine.Logger == nil {
		config.Engine.Logger = config.Logger
	}
	if config.Engine.ProtocolLogger == nil {
		config.Engine.ProtocolLogger = config.ProtocolLogger
	}

	var owned *sink.Async
	switch config.Engine.Sink.(type) {
	case nil, *sink.Async, sink.Nop:
	default:
		owned = sink.NewAsync(config.Engine.Sink, sink.WithLogger(config.Engine.Logger))
		config.Engine.Sink = owned
	}

	s := &Server{
		config:    config,
		engine:    NewEngine(config.Engine),
		ownedSink: owned,
	}

	ts, err := transport.NewServer(transport.ServerConfig{
		TLSConfig:      config.TLSConfig,
		Address:        config.Address,
		MaxMessageSize: config.MaxMessageSize,
		SendQueueSize:  config.SendQueueSize,
		WriteTimeout:   config.WriteTimeout,
		Logger:         config.Logger,
		ProtocolLogger: config.ProtocolLogger,
		OnConnect: func(conn *transport.ServerConn) {
			s.engine.Accept(conn)
		},
		OnDisconnect: func(conn *transport.ServerConn) {
			s.engine.Release(conn)
		},
		OnMessage: func(conn *transport.ServerConn, msg []byte) {
			s.engine.Handle(conn, msg)
		},
		OnError: s.onError,
	})
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	s.transport = ts
	return s, nil
}

// Engine returns the distribution engine.
func (s *Server) Engine() *Engine {
	return s.engine
}

// Start begins accepting connections and runs the handshake reaper.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.transport.Start(s.ctx); err != nil {
		s.cancel()
		return err
	}

	if s.engine.config.HandshakeTimeout > 0 {
		s.wg.Add(1)
		go s.runHandshakeReaper()
	}

	s.engine.config.Logger.Info("log relay listening",
		"addr", s.transport.Addr().String(),
		"tls", s.transport.TLSEnabled())
	return nil
}

// Stop closes the listener and all connections.
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	err := s.transport.Stop()
	s.wg.Wait()
	s.engine.Close()
	if s.ownedSink != nil {
		_ = s.ownedSink.Close()
	}
	return err
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.transport.Addr()
}

// TLSEnabled reports whether the listener uses TLS.
func (s *Server) TLSEnabled() bool {
	return s.transport.TLSEnabled()
}

// ConnectionCount returns the number of open transport connections.
func (s *Server) ConnectionCount() int {
	return s.transport.ConnectionCount()
}

// runHandshakeReaper periodically closes connections that never sent hello.
func (s *Server) runHandshakeReaper() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.engine.ReapHandshakes()
		}
	}
}

func (s *Server) onError(conn *transport.ServerConn, err error) {
	if s.config.Logger == nil {
		return
	}
	if conn == nil {
		s.config.Logger.Warn("transport error", "error", err)
		return
	}
	s.config.Logger.Debug("connection error", "conn_id", conn.ID(), "error", err)
}
