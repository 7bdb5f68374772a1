package client

import (
	"context"
	"time"

	"github.com/mash-protocol/logrelay/pkg/transport"
)

// Link is one transport connection to the relay.
type Link interface {
	Send(data []byte) error
	Receive(timeout time.Duration) ([]byte, error)
	SendPing(seq uint32) error
	Close() error
}

// Dialer opens links to the relay.
type Dialer interface {
	Dial(ctx context.Context) (Link, error)
}

// TransportDialer dials the relay over TCP, optionally with TLS.
type TransportDialer struct {
	client  *transport.Client
	address string
}

// NewTransportDialer creates a dialer for address ("host:port").
func NewTransportDialer(address string, config transport.ClientConfig) *TransportDialer {
	return &TransportDialer{
		client:  transport.NewClient(config),
		address: address,
	}
}

// Address returns the relay address.
func (d *TransportDialer) Address() string {
	return d.address
}

// Dial implements Dialer.
func (d *TransportDialer) Dial(ctx context.Context) (Link, error) {
	conn, err := d.client.Connect(ctx, d.address)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Verify interface compliance at compile time.
var (
	_ Dialer = (*TransportDialer)(nil)
	_ Link   = (*transport.ClientConn)(nil)
)
