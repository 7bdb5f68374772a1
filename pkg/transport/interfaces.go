package transport

import (
	"context"
	"errors"
	"net"
	"time"
)

// Connection errors.
var (
	// ErrConnectionClosed is returned by Send and Receive after Close.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSendQueueFull is returned by Enqueue when the peer is not
	// reading fast enough. The frame is dropped.
	ErrSendQueueFull = errors.New("send queue full")
)

// ServerConnection represents a server-side connection to a client.
// Implemented by ServerConn.
type ServerConnection interface {
	// ID returns the unique connection identifier.
	ID() string

	// RemoteAddr returns the remote network address of the client.
	RemoteAddr() net.Addr

	// Send sends a frame to the client and waits for the write.
	Send(data []byte) error

	// Enqueue queues a frame for the connection's writer and never
	// blocks. It returns ErrSendQueueFull when the queue is full.
	Enqueue(data []byte) error

	// Close closes the connection.
	Close() error
}

// ClientConnection represents a client-side connection to the relay.
// Implemented by ClientConn.
type ClientConnection interface {
	// LocalAddr returns the local network address.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr

	// Send sends a frame to the server.
	Send(data []byte) error

	// Receive receives a frame with the specified timeout (0 = none).
	Receive(timeout time.Duration) ([]byte, error)

	// Close closes the connection.
	Close() error

	// SendPing sends a ping control frame with the given sequence number.
	SendPing(seq uint32) error

	// SendClose sends a close control frame.
	SendClose() error
}

// TransportServer represents a relay listener.
// Implemented by Server.
type TransportServer interface {
	// Start begins accepting connections.
	Start(ctx context.Context) error

	// Stop closes the listener and all connections.
	Stop() error

	// Addr returns the server's listen address.
	Addr() net.Addr

	// ConnectionCount returns the number of open connections.
	ConnectionCount() int
}

// FrameReadWriter provides length-prefixed frame I/O.
// Implemented by Framer.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
}

// Compile-time interface satisfaction checks.
var (
	_ ServerConnection = (*ServerConn)(nil)
	_ ClientConnection = (*ClientConn)(nil)
	_ TransportServer  = (*Server)(nil)
	_ FrameReadWriter  = (*Framer)(nil)
)
