package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mash-protocol/logrelay/pkg/log"
)

// DefaultConnectTimeout bounds dialing plus the TLS handshake.
const DefaultConnectTimeout = 10 * time.Second

// ClientConfig configures a relay client transport.
type ClientConfig struct {
	// TLSConfig enables TLS. Nil dials plain TCP.
	TLSConfig *TLSConfig

	// MaxMessageSize is the maximum frame payload (default: 1 MiB).
	MaxMessageSize uint32

	// ConnectTimeout is used when the context has no deadline (default: 10s).
	ConnectTimeout time.Duration

	// ProtocolLogger receives capture events (optional).
	ProtocolLogger log.Logger
}

// Client dials relay connections.
type Client struct {
	config  ClientConfig
	tlsConf *tls.Config
}

// NewClient creates a new client transport.
func NewClient(config ClientConfig) *Client {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}

	c := &Client{config: config}
	if config.TLSConfig != nil {
		c.tlsConf = NewClientTLSConfig(config.TLSConfig)
	}
	return c
}

// Connect dials address and completes the TLS handshake when enabled.
func (c *Client) Connect(ctx context.Context, address string) (*ClientConn, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	raw, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	conn := raw
	if c.tlsConf != nil {
		tlsConf := c.tlsConf.Clone()
		if tlsConf.ServerName == "" {
			if host, _, err := net.SplitHostPort(address); err == nil {
				tlsConf.ServerName = host
			}
		}
		tlsConn := tls.Client(raw, tlsConf)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			raw.Close()
			return nil, fmt.Errorf("TLS handshake failed: %w", err)
		}
		if err := VerifyConnection(tlsConn.ConnectionState()); err != nil {
			tlsConn.Close()
			return nil, fmt.Errorf("connection verification failed: %w", err)
		}
		conn = tlsConn
	}

	framer := NewFramerWithMaxSize(conn, c.config.MaxMessageSize)
	framer.SetLogger(c.config.ProtocolLogger, conn.LocalAddr().String())

	return &ClientConn{
		conn:    conn,
		framer:  framer,
		closeCh: make(chan struct{}),
	}, nil
}

// ClientConn is a connection from a client to the relay.
type ClientConn struct {
	conn    net.Conn
	framer  *Framer
	closeCh chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex
	readMu    sync.Mutex
}

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes one frame to the relay.
func (c *ClientConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Receive reads one frame. A zero timeout blocks until a frame arrives or
// the connection fails.
func (c *ClientConn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}
	return c.framer.ReadFrame()
}

// Close closes the connection. It is safe to call more than once.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// SendPing sends a ping control frame.
func (c *ClientConn) SendPing(seq uint32) error {
	msg, err := EncodePing(seq)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendClose sends a close control frame.
func (c *ClientConn) SendClose() error {
	msg, err := EncodeClose()
	if err != nil {
		return err
	}
	return c.Send(msg)
}
