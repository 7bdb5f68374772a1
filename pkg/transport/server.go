package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mash-protocol/logrelay/pkg/log"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

// Server defaults.
const (
	// DefaultTLSHandshakeTimeout bounds the TLS handshake of an accepted connection.
	DefaultTLSHandshakeTimeout = 10 * time.Second

	// DefaultSendQueueSize is the number of frames Enqueue buffers per connection.
	DefaultSendQueueSize = 256

	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second
)

// ServerConfig configures a relay listener.
type ServerConfig struct {
	// TLSConfig enables TLS. Nil serves plain TCP.
	TLSConfig *TLSConfig

	// Address to listen on (e.g. ":7031" or "127.0.0.1:0").
	Address string

	// MaxMessageSize is the maximum frame payload (default: 1 MiB).
	MaxMessageSize uint32

	// TLSHandshakeTimeout bounds the TLS handshake (default: 10s).
	TLSHandshakeTimeout time.Duration

	// SendQueueSize bounds the frames queued by Enqueue per connection
	// (default: 256).
	SendQueueSize int

	// WriteTimeout bounds a single frame write (default: 10s). A peer
	// that does not take a frame in time is disconnected. Negative
	// disables the deadline.
	WriteTimeout time.Duration

	// Logger receives operational messages (optional).
	Logger *slog.Logger

	// ProtocolLogger receives capture events (optional).
	ProtocolLogger log.Logger

	// OnConnect is called when a new connection is established.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called once when a connection is closed.
	OnDisconnect func(conn *ServerConn)

	// OnMessage is called for every non-control frame, on the
	// connection's read goroutine.
	OnMessage func(conn *ServerConn, msg []byte)

	// OnError is called when an error occurs. conn is nil for
	// listener-level errors.
	OnError func(conn *ServerConn, err error)
}

// Server accepts relay connections.
type Server struct {
	config   ServerConfig
	tlsConf  *tls.Config
	listener net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new relay listener.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.TLSHandshakeTimeout == 0 {
		config.TLSHandshakeTimeout = DefaultTLSHandshakeTimeout
	}
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = DefaultSendQueueSize
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}

	s := &Server{
		config: config,
		conns:  make(map[*ServerConn]struct{}),
	}

	if config.TLSConfig != nil {
		tlsConf, err := NewServerTLSConfig(config.TLSConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		s.tlsConf = tlsConf
	}

	return s, nil
}

// TLSEnabled reports whether connections are wrapped in TLS.
func (s *Server) TLSEnabled() bool {
	return s.tlsConf != nil
}

// Start opens the listener and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	s.debugLog("transport listening", "addr", listener.Addr().String(), "tls", s.TLSEnabled())
	return nil
}

// Stop closes the listener and every open connection, then waits for
// all connection goroutines to finish.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.RLock()
	open := make([]*ServerConn, 0, len(s.conns))
	for conn := range s.conns {
		open = append(open, conn)
	}
	s.connsMu.RUnlock()
	for _, conn := range open {
		conn.Close()
	}

	s.wg.Wait()
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.reportError(nil, fmt.Errorf("accept error: %w", err))
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(raw net.Conn) {
	defer s.wg.Done()

	conn := raw
	var state *tls.ConnectionState

	if s.tlsConf != nil {
		tlsConn := tls.Server(raw, s.tlsConf)
		hsCtx, cancel := context.WithTimeout(s.ctx, s.config.TLSHandshakeTimeout)
		err := tlsConn.HandshakeContext(hsCtx)
		cancel()
		if err != nil {
			raw.Close()
			s.reportError(nil, fmt.Errorf("TLS handshake failed: %w", err))
			return
		}
		cs := tlsConn.ConnectionState()
		if err := VerifyConnection(cs); err != nil {
			tlsConn.Close()
			s.reportError(nil, err)
			return
		}
		conn = tlsConn
		state = &cs
	}

	connID := uuid.New().String()
	framer := NewFramerWithMaxSize(conn, s.config.MaxMessageSize)
	framer.SetLogger(s.config.ProtocolLogger, connID)

	sconn := &ServerConn{
		conn:       conn,
		framer:     framer,
		tlsState:   state,
		server:     s,
		closeCh:    make(chan struct{}),
		queue:      make(chan []byte, s.config.SendQueueSize),
		remoteAddr: raw.RemoteAddr(),
		connID:     connID,
	}

	s.connsMu.Lock()
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	s.wg.Add(1)
	go sconn.writeLoop()

	s.logState(sconn, "", "CONNECTED")
	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop()
	sconn.Close()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	s.logState(sconn, "CONNECTED", "DISCONNECTED")
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

func (s *Server) reportError(conn *ServerConn, err error) {
	s.debugLog("transport error", "error", err)
	if s.config.OnError != nil {
		s.config.OnError(conn, err)
	}
}

func (s *Server) logState(c *ServerConn, oldState, newState string) {
	if s.config.ProtocolLogger == nil {
		return
	}
	s.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    log.RoleServer,
		RemoteAddr:   c.remoteAddr.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (s *Server) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

// ServerConn is one accepted connection.
type ServerConn struct {
	conn       net.Conn
	framer     *Framer
	tlsState   *tls.ConnectionState
	server     *Server
	closeCh    chan struct{}
	closeOnce  sync.Once
	queue      chan []byte
	remoteAddr net.Addr
	connID     string

	writeMu sync.Mutex
}

// ID returns the unique connection identifier (a UUID).
func (c *ServerConn) ID() string {
	return c.connID
}

// RemoteAddr returns the remote address of the client.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// TLSState returns the TLS state and whether the connection uses TLS.
func (c *ServerConn) TLSState() (tls.ConnectionState, bool) {
	if c.tlsState == nil {
		return tls.ConnectionState{}, false
	}
	return *c.tlsState, true
}

// Done is closed when the connection is closed.
func (c *ServerConn) Done() <-chan struct{} {
	return c.closeCh
}

// Send writes one frame. Concurrent sends are serialized, so frames from
// a single goroutine arrive in the order they were sent. A failed or
// timed-out write leaves the stream unusable, so it closes the connection.
func (c *ServerConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if timeout := c.server.config.WriteTimeout; timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	if err := c.framer.WriteFrame(data); err != nil {
		c.Close()
		return err
	}
	return nil
}

// Enqueue hands data to the connection's writer goroutine. It never
// blocks: when the queue is full the frame is dropped and
// ErrSendQueueFull is returned.
func (c *ServerConn) Enqueue(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.queue <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// QueueLen returns the number of frames waiting for the writer.
func (c *ServerConn) QueueLen() int {
	return len(c.queue)
}

func (c *ServerConn) writeLoop() {
	defer c.server.wg.Done()

	for {
		select {
		case <-c.closeCh:
			return
		case data := <-c.queue:
			if err := c.Send(data); err != nil {
				if !errors.Is(err, ErrConnectionClosed) && c.server.running.Load() {
					c.server.reportError(c, fmt.Errorf("queued write: %w", err))
				}
				return
			}
		}
	}
}

// Close closes the connection. It is safe to call more than once.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *ServerConn) readLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case <-c.server.ctx.Done():
			return
		default:
		}

		data, err := c.framer.ReadFrame()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				if c.server.running.Load() {
					c.server.reportError(c, err)
				}
			}
			return
		}

		if wire.IsControl(data) {
			if typ, seq, err := DecodeControlMessage(data); err == nil {
				c.handleControl(typ, seq)
				continue
			}
		}

		if c.server.config.OnMessage != nil {
			c.server.config.OnMessage(c, data)
		}
	}
}

func (c *ServerConn) handleControl(typ wire.FrameType, seq uint32) {
	c.logControl(typ, seq, log.DirectionIn)

	switch typ {
	case wire.FramePing:
		if pong, err := EncodePong(seq); err == nil && c.Send(pong) == nil {
			c.logControl(wire.FramePong, seq, log.DirectionOut)
		}
	case wire.FramePong:
		// Keep-alive is client driven.
	case wire.FrameClose:
		if ack, err := EncodeClose(); err == nil && c.Send(ack) == nil {
			c.logControl(wire.FrameClose, 0, log.DirectionOut)
		}
		c.Close()
	}
}

func (c *ServerConn) logControl(typ wire.FrameType, seq uint32, dir log.Direction) {
	pl := c.server.config.ProtocolLogger
	if pl == nil {
		return
	}
	if e, ok := controlEvent(c.connID, c.remoteAddr.String(), typ, seq, dir); ok {
		e.LocalRole = log.RoleServer
		pl.Log(e)
	}
}
