package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mash-protocol/logrelay/pkg/connection"
	"github.com/mash-protocol/logrelay/pkg/display"
	"github.com/mash-protocol/logrelay/pkg/log"
	"github.com/mash-protocol/logrelay/pkg/registry"
	"github.com/mash-protocol/logrelay/pkg/severity"
	"github.com/mash-protocol/logrelay/pkg/transport"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

// DefaultHandshakeTimeout bounds the wait for welcome or reject.
const DefaultHandshakeTimeout = 10 * time.Second

// Config configures a Session.
type Config struct {
	// Channel is the identity claimed at handshake.
	Channel string

	// Token is passed to the relay's authorizer (optional).
	Token string

	// Dialer opens links. A nil Dialer makes every network operation
	// return ErrNoTransport.
	Dialer Dialer

	// Backoff tunes reconnect delays (default: 1s doubling to 30s).
	Backoff connection.BackoffConfig

	// HandshakeTimeout bounds the hello exchange (default: 10s).
	HandshakeTimeout time.Duration

	// KeepAlive tunes pings. Zero fields take the transport defaults.
	KeepAlive transport.KeepAliveConfig

	// DisableKeepAlive turns pings off.
	DisableKeepAlive bool

	// Console mirrors Log calls locally (optional).
	Console *display.Renderer

	// PrintPushes prints received pushes on Console.
	PrintPushes bool

	// Logger receives operational messages (optional).
	Logger *slog.Logger

	// ProtocolLogger receives capture events (optional).
	ProtocolLogger log.Logger
}

// Session is a reconnecting relay client.
type Session struct {
	config  Config
	manager *connection.Manager
	resync  Resync

	mu      sync.Mutex
	link    Link
	connID  string
	ka      *transport.KeepAlive
	desired map[string]struct{}
	onPush  []func(*wire.Push)
	onError []func(error)

	wg sync.WaitGroup
}

// New creates a session. It does not connect.
func New(config Config) *Session {
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Session{
		config:  config,
		desired: make(map[string]struct{}),
	}
	s.manager = connection.NewManagerWithConfig(s.dial, connection.ManagerConfig{
		Backoff: config.Backoff,
		Logger:  config.Logger,
	})
	s.manager.OnConnected(s.onConnected)
	s.manager.OnDisconnected(s.resync.Disconnected)
	s.manager.OnConnectError(s.reportError)

	if config.Console != nil && config.PrintPushes {
		s.OnPush(func(p *wire.Push) { _ = config.Console.PrintPush(p) })
	}
	return s
}

// Connect makes the first connection attempt and starts reconnecting in
// the background. A transient failure is returned but retries continue;
// a rejection stops them.
func (s *Session) Connect(ctx context.Context) error {
	if s.config.Dialer == nil {
		return ErrNoTransport
	}
	s.manager.StartReconnectLoop()

	err := s.manager.Connect(ctx)
	if err != nil && !connection.IsPermanent(err) && !errors.Is(err, connection.ErrConnectionClosed) {
		s.manager.ScheduleReconnect()
	}
	return err
}

// Close stops reconnecting and closes the current link.
func (s *Session) Close() error {
	s.manager.Close()

	s.mu.Lock()
	link := s.detachLocked()
	s.mu.Unlock()
	if link != nil {
		if data, err := wire.Encode(&wire.Close{}); err == nil {
			_ = link.Send(data)
		}
		_ = link.Close()
	}

	s.wg.Wait()
	return nil
}

// State returns the connection state.
func (s *Session) State() connection.State {
	return s.manager.State()
}

// IsConnected reports whether a link is up.
func (s *Session) IsConnected() bool {
	return s.manager.IsConnected()
}

// ConnID returns the id assigned by the relay on the current link.
func (s *Session) ConnID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// Channel returns the session's channel identity.
func (s *Session) Channel() string {
	return s.config.Channel
}

// OnPush registers a handler for received events. Handlers run on the
// link's read goroutine.
func (s *Session) OnPush(fn func(*wire.Push)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPush = append(s.onPush, fn)
}

// OnError registers a handler for connection errors.
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = append(s.onError, fn)
}

// Sync blocks until the session is connected or ctx is done.
func (s *Session) Sync(ctx context.Context) error {
	if s.config.Dialer == nil {
		return ErrNoTransport
	}
	select {
	case <-s.resync.Sync():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready returns the resync channel: closed now if connected, otherwise
// closed by the next connect.
func (s *Session) Ready() <-chan struct{} {
	return s.resync.Sync()
}

// Log emits one event on the session's channel. The event is mirrored to
// the console; it is sent only if a link is up.
func (s *Session) Log(sev severity.Severity, msgs ...any) error {
	if s.config.Dialer == nil {
		return ErrNoTransport
	}

	frame := wire.NewLog(s.config.Channel, sev, time.Now(), msgs...)
	if s.config.Console != nil {
		_ = s.config.Console.Print(sev, s.config.Channel, frame.Messages)
	}

	s.send(frame)
	return nil
}

// Trace logs at Trace severity.
func (s *Session) Trace(msgs ...any) error { return s.Log(severity.Trace, msgs...) }

// Debug logs at Debug severity.
func (s *Session) Debug(msgs ...any) error { return s.Log(severity.Debug, msgs...) }

// Info logs at Info severity.
func (s *Session) Info(msgs ...any) error { return s.Log(severity.Info, msgs...) }

// Warn logs at Warn severity.
func (s *Session) Warn(msgs ...any) error { return s.Log(severity.Warn, msgs...) }

// Error logs at Error severity.
func (s *Session) Error(msgs ...any) error { return s.Log(severity.Error, msgs...) }

// Listen adds topic to the desired subscriptions. An empty topic means
// "*". The sub frame is sent now if connected, otherwise on the next
// connect.
func (s *Session) Listen(topic string) error {
	if s.config.Dialer == nil {
		return ErrNoTransport
	}
	if topic == "" {
		topic = registry.Wildcard
	}

	s.mu.Lock()
	s.desired[topic] = struct{}{}
	link := s.link
	s.mu.Unlock()

	if link != nil {
		s.converge(link, topic)
	}
	return nil
}

// Unlisten removes topic from the desired subscriptions and sends unsub
// if connected.
func (s *Session) Unlisten(topic string) error {
	if s.config.Dialer == nil {
		return ErrNoTransport
	}
	if topic == "" {
		topic = registry.Wildcard
	}

	s.mu.Lock()
	delete(s.desired, topic)
	link := s.link
	s.mu.Unlock()

	if link != nil {
		s.converge(link, topic)
	}
	return nil
}

// Subscriptions returns the desired topics, sorted.
func (s *Session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.desired))
	for topic := range s.desired {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

func (s *Session) isDesired(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.desired[topic]
	return ok
}

// converge sends sub or unsub for topic's desired state on link. If a
// concurrent Listen or Unlisten flipped the state while the frame was in
// flight, the opposite frame follows, so the last frame sent for topic
// always matches the desired set.
func (s *Session) converge(link Link, topic string) {
	want := s.isDesired(topic)
	for {
		if want {
			s.sendOn(link, &wire.Sub{Topic: topic})
		} else {
			s.sendOn(link, &wire.Unsub{Topic: topic})
		}
		now := s.isDesired(topic)
		if now == want {
			return
		}
		want = now
	}
}

// send writes f on the current link. It is a no-op while disconnected.
func (s *Session) send(f wire.Frame) {
	s.mu.Lock()
	link := s.link
	s.mu.Unlock()
	if link == nil {
		return
	}
	s.sendOn(link, f)
}

func (s *Session) sendOn(link Link, f wire.Frame) {
	data, err := wire.Encode(f)
	if err != nil {
		s.config.Logger.Error("encode frame", "type", f.FrameType().String(), "error", err)
		return
	}
	if err := link.Send(data); err != nil {
		s.debugLog("send failed", "type", f.FrameType().String(), "error", err)
		return
	}
	s.capture(log.DirectionOut, f)
}

// dial is the connection.ConnectFunc: open a link and complete hello.
func (s *Session) dial(ctx context.Context) error {
	link, err := s.config.Dialer.Dial(ctx)
	if err != nil {
		return err
	}

	connID, err := s.handshake(link)
	if err != nil {
		_ = link.Close()
		return err
	}

	s.attach(link, connID)
	return nil
}

func (s *Session) handshake(link Link) (string, error) {
	hello := &wire.Hello{Channel: s.config.Channel, Token: s.config.Token}
	data, err := wire.Encode(hello)
	if err != nil {
		return "", err
	}
	if err := link.Send(data); err != nil {
		return "", fmt.Errorf("send hello: %w", err)
	}
	s.capture(log.DirectionOut, hello)

	reply, err := link.Receive(s.config.HandshakeTimeout)
	if err != nil {
		return "", fmt.Errorf("await welcome: %w", err)
	}
	frame, err := wire.Decode(reply)
	if err != nil {
		return "", fmt.Errorf("await welcome: %w", err)
	}
	s.capture(log.DirectionIn, frame)

	switch f := frame.(type) {
	case *wire.Welcome:
		return f.ConnID, nil
	case *wire.Reject:
		return "", connection.Permanent(rejectError(f.Reason))
	default:
		return "", fmt.Errorf("%w: %s", ErrUnexpectedFrame, frame.FrameType())
	}
}

// attach makes link current and starts its read loop and keep-alive.
func (s *Session) attach(link Link, connID string) {
	var ka *transport.KeepAlive
	if !s.config.DisableKeepAlive {
		ka = transport.NewKeepAlive(s.config.KeepAlive, link.SendPing, func() {
			s.config.Logger.Warn("log server not responding, reconnecting")
			_ = link.Close()
		})
	}

	s.mu.Lock()
	s.link = link
	s.connID = connID
	s.ka = ka
	s.mu.Unlock()

	if ka != nil {
		ka.Start(context.Background())
	}

	s.wg.Add(1)
	go s.readLoop(link, ka)
	s.debugLog("connected", "conn_id", connID)
}

// detachLocked clears the current link and returns it. Caller holds s.mu.
func (s *Session) detachLocked() Link {
	link := s.link
	if s.ka != nil {
		s.ka.Stop()
	}
	s.link = nil
	s.ka = nil
	s.connID = ""
	return link
}

// onConnected runs after every successful connect: release waiters, then
// restore subscriptions.
func (s *Session) onConnected() {
	s.mu.Lock()
	link := s.link
	topics := make([]string, 0, len(s.desired))
	for topic := range s.desired {
		topics = append(topics, topic)
	}
	s.mu.Unlock()

	if link == nil {
		// The link died between the handshake and the state change.
		s.manager.NotifyConnectionLost()
		return
	}

	s.resync.Connected()

	sort.Strings(topics)
	for _, topic := range topics {
		// Unlisten may have run since the snapshot.
		if !s.isDesired(topic) {
			continue
		}
		s.converge(link, topic)
	}
}

func (s *Session) readLoop(link Link, ka *transport.KeepAlive) {
	defer s.wg.Done()

	for {
		data, err := link.Receive(0)
		if err != nil {
			s.linkLost(link, err)
			return
		}

		frame, err := wire.Decode(data)
		if err != nil {
			s.debugLog("dropping undecodable frame", "error", err)
			continue
		}
		s.capture(log.DirectionIn, frame)

		switch f := frame.(type) {
		case *wire.Push:
			s.dispatch(f)
		case *wire.Pong:
			if ka != nil {
				ka.PongReceived(f.Sequence)
			}
		case *wire.Ping:
			s.sendOn(link, &wire.Pong{Sequence: f.Sequence})
		case *wire.Close:
			_ = link.Close()
		default:
			s.debugLog("ignoring frame", "type", frame.FrameType().String())
		}
	}
}

// linkLost handles the end of a read loop. Only the current link
// triggers a reconnect.
func (s *Session) linkLost(link Link, err error) {
	s.mu.Lock()
	current := s.link == link
	if current {
		s.detachLocked()
	}
	s.mu.Unlock()

	_ = link.Close()
	if !current {
		return
	}

	s.resync.Disconnected()
	if !errors.Is(err, transport.ErrConnectionClosed) {
		s.debugLog("connection lost", "error", err)
	}
	s.manager.NotifyConnectionLost()
}

func (s *Session) dispatch(p *wire.Push) {
	s.mu.Lock()
	handlers := append(([]func(*wire.Push))(nil), s.onPush...)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(p)
	}
}

func (s *Session) reportError(err error) {
	s.config.Logger.Warn("failed to connect to log server",
		"channel", s.config.Channel,
		"error", err)

	s.mu.Lock()
	handlers := append(([]func(error))(nil), s.onError...)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(err)
	}
}

func (s *Session) capture(dir log.Direction, f wire.Frame) {
	if s.config.ProtocolLogger == nil {
		return
	}
	s.config.ProtocolLogger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.ConnID(),
		Direction:    dir,
		Layer:        log.LayerRelay,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleClient,
		Channel:      s.config.Channel,
		Message:      log.NewMessageEvent(f),
	})
}

func (s *Session) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}
