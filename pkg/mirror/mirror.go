// Package mirror republishes relayed events to NATS.
//
// Every event the relay emits is published once to the subject
// "<prefix>.<channel>" as the CBOR push frame subscribers receive over the
// relay itself. The wildcard channel "*" maps to the token "_all_".
// Consumers that cannot hold a relay connection can follow channels with
// ordinary NATS subscriptions, e.g. "logrelay.>" for everything.
//
// Mirroring is best effort: publish errors are logged and dropped.
package mirror

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mash-protocol/logrelay/pkg/wire"
)

// DefaultPrefix is the subject prefix when none is configured.
const DefaultPrefix = "logrelay"

// AllToken replaces the wildcard channel in subjects.
const AllToken = "_all_"

// ErrNotPush is returned when a mirrored payload is not a push frame.
var ErrNotPush = errors.New("mirrored payload is not a push frame")

// Publisher receives every emitted event.
type Publisher interface {
	// Publish mirrors one encoded push frame for channel.
	Publish(channel string, frame []byte) error
	Close() error
}

// Subscriber follows mirrored events.
type Subscriber interface {
	// Subscribe delivers decoded pushes for topic ("*" for all). Call the
	// returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan *wire.Push, func(), error)
	Close() error
}

// Verify interface compliance at compile time.
var (
	_ Publisher  = NoopPublisher{}
	_ Publisher  = (*NATSPublisher)(nil)
	_ Subscriber = (*NATSSubscriber)(nil)
)

// NoopPublisher is used when no NATS server is configured.
type NoopPublisher struct{}

// Publish implements Publisher.
func (NoopPublisher) Publish(string, []byte) error { return nil }

// Close implements Publisher.
func (NoopPublisher) Close() error { return nil }

// Subject returns the subject events on channel are published to.
func Subject(prefix, channel string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if channel == "*" {
		return prefix + "." + AllToken
	}
	return prefix + "." + sanitize(channel)
}

// SubjectFilter returns the subscription subject for a relay topic.
// The wildcard topic follows every channel.
func SubjectFilter(prefix, topic string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if topic == "" || topic == "*" {
		return prefix + ".>"
	}
	return Subject(prefix, topic)
}

// sanitize replaces characters NATS does not allow inside a subject token.
func sanitize(channel string) string {
	if channel == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', '*', '>':
			return '_'
		}
		return r
	}, channel)
}

// Config configures NATS connections.
type Config struct {
	// URL of the NATS server.
	URL string

	// Prefix for subjects. Defaults to DefaultPrefix.
	Prefix string

	// ReconnectWait between reconnect attempts. Defaults to one second.
	ReconnectWait time.Duration

	// Logger for publish failures and connection events.
	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func connect(cfg Config, name string, opts []nats.Option) (*nats.Conn, error) {
	logger := cfg.Logger
	defaults := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(cfg.URL, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.URL, err)
	}
	return nc, nil
}

// NATSPublisher mirrors events to NATS.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger

	mu     sync.Mutex
	warned bool
}

// NewNATSPublisher connects to cfg.URL with automatic reconnection.
// Extra nats.Option values are appended to the defaults.
func NewNATSPublisher(cfg Config, opts ...nats.Option) (*NATSPublisher, error) {
	cfg.applyDefaults()
	nc, err := connect(cfg, "logrelay-mirror", opts)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc, prefix: cfg.Prefix, logger: cfg.Logger}, nil
}

// Publish implements Publisher. The NATS client buffers while
// reconnecting, so Publish does not block on the network.
func (p *NATSPublisher) Publish(channel string, frame []byte) error {
	err := p.conn.Publish(Subject(p.prefix, channel), frame)
	if err != nil {
		p.mu.Lock()
		first := !p.warned
		p.warned = true
		p.mu.Unlock()
		if first {
			p.logger.Warn("mirror publish failed", "channel", channel, "error", err)
		}
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Flush waits until the server has processed everything published.
func (p *NATSPublisher) Flush() error {
	return p.conn.Flush()
}

// Close implements Publisher.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
	return nil
}

// NATSSubscriber follows mirrored events.
type NATSSubscriber struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSSubscriber connects to cfg.URL with automatic reconnection.
func NewNATSSubscriber(cfg Config, opts ...nats.Option) (*NATSSubscriber, error) {
	cfg.applyDefaults()
	nc, err := connect(cfg, "logrelay-follow", opts)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc, prefix: cfg.Prefix, logger: cfg.Logger}, nil
}

// DecodePush decodes a mirrored payload.
func DecodePush(data []byte) (*wire.Push, error) {
	f, err := wire.Decode(data)
	if err != nil {
		return nil, err
	}
	p, ok := f.(*wire.Push)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrNotPush, f.FrameType())
	}
	return p, nil
}

// Subscribe implements Subscriber. Undecodable payloads are skipped and
// messages are dropped when the returned channel is full.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan *wire.Push, func(), error) {
	ch := make(chan *wire.Push, 64)

	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)

	subject := SubjectFilter(s.prefix, topic)
	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		p, err := DecodePush(msg.Data)
		if err != nil {
			s.logger.Debug("skipping mirrored payload", "subject", msg.Subject, "error", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- p:
		default:
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// Close implements Subscriber.
func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
