package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/mash-protocol/logrelay/pkg/auth"
	"github.com/mash-protocol/logrelay/pkg/display"
	"github.com/mash-protocol/logrelay/pkg/log"
	"github.com/mash-protocol/logrelay/pkg/mirror"
	"github.com/mash-protocol/logrelay/pkg/registry"
	"github.com/mash-protocol/logrelay/pkg/severity"
	"github.com/mash-protocol/logrelay/pkg/sink"
	"github.com/mash-protocol/logrelay/pkg/transport"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

// Engine defaults.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultAuthorizeTimeout = 5 * time.Second
	SelfLogChannel          = "logserv"
)

// Engine errors.
var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrAuthorizerPanic   = errors.New("authorizer panicked")
)

// Config configures an Engine.
type Config struct {
	// Authorizer decides admission. Defaults to auth.AllowAll.
	Authorizer auth.Authorizer

	// AuthorizeTimeout bounds a single Authorize call (default: 5s).
	AuthorizeTimeout time.Duration

	// Sink receives every emitted event. Defaults to sink.Nop. Write runs
	// on the producer's read goroutine and must not block; wrap file or
	// network sinks in sink.NewAsync. Server does this itself.
	Sink sink.Sink

	// Mirror receives every emitted push frame. Defaults to a no-op.
	Mirror mirror.Publisher

	// Console, when set, prints every emitted event.
	Console *display.Renderer

	// EnforceHandshakeChannel ignores the channel field of log frames and
	// always uses the channel claimed at handshake.
	EnforceHandshakeChannel bool

	// RateLimit caps log events per second per connection. Zero disables.
	RateLimit float64

	// RateBurst is the limiter burst. Defaults to max(1, RateLimit).
	RateBurst int

	// MaxTopicsPerConn caps subscriptions per connection. Zero is unlimited.
	MaxTopicsPerConn int

	// HandshakeTimeout closes connections that have not sent hello.
	// Default: 10s. Negative disables the reaper.
	HandshakeTimeout time.Duration

	// DisableSelfLog stops lifecycle announcements on the "logserv" channel.
	DisableSelfLog bool

	// Logger receives operational messages (optional).
	Logger *slog.Logger

	// ProtocolLogger receives relay-layer capture events (optional).
	ProtocolLogger log.Logger

	// Now overrides the clock (tests).
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.Authorizer == nil {
		c.Authorizer = auth.AllowAll
	}
	if c.AuthorizeTimeout == 0 {
		c.AuthorizeTimeout = DefaultAuthorizeTimeout
	}
	if c.Sink == nil {
		c.Sink = sink.Nop{}
	}
	if c.Mirror == nil {
		c.Mirror = mirror.NoopPublisher{}
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = max(1, int(c.RateLimit))
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Connected  int
	Authorized int
	Active     int
	Topics     int

	Emitted   uint64
	Delivered uint64 // pushes queued for a subscriber
	Failed    uint64
	Dropped   uint64 // log frames over the rate limit
	Overflow  uint64 // pushes dropped for subscribers that are not reading
	Rejected  uint64
}

// Engine runs the per-connection state machine and distributes events.
type Engine struct {
	config   Config
	registry *registry.Registry[*Conn]
	pending  *handshakeTracker

	mu    sync.RWMutex
	conns map[string]*Conn

	ctx    context.Context
	cancel context.CancelFunc

	emitted   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	overflow  atomic.Uint64
	rejected  atomic.Uint64
}

// NewEngine creates an engine.
func NewEngine(config Config) *Engine {
	config.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		config:   config,
		registry: registry.NewWithConfig[*Conn](registry.Config{MaxTopicsPerMember: config.MaxTopicsPerConn}),
		pending:  newHandshakeTracker(),
		conns:    make(map[string]*Conn),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close cancels in-flight authorizations.
func (e *Engine) Close() {
	e.cancel()
}

// Accept registers a new transport connection in the Connected state.
func (e *Engine) Accept(tc transport.ServerConnection) *Conn {
	c := newConn(tc, e.config.Now())

	e.mu.Lock()
	e.conns[c.id] = c
	e.mu.Unlock()

	e.pending.Add(tc, c.connectedAt)
	e.captureState(c, "", StateConnected, "")
	e.debugLog("relay: connection accepted", "conn_id", c.id, "remote", c.remote)
	return c
}

// Conn returns the connection with id.
func (e *Engine) Conn(id string) (*Conn, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.conns[id]
	return c, ok
}

// Release moves the connection to Disconnected and removes it from every
// topic. It runs at most once per connection.
func (e *Engine) Release(tc transport.ServerConnection) {
	e.pending.Remove(tc)

	e.mu.Lock()
	c, ok := e.conns[tc.ID()]
	delete(e.conns, tc.ID())
	e.mu.Unlock()
	if !ok {
		return
	}

	prev, moved := c.transition(StateDisconnected, StateConnected, StateAuthorized, StateActive)
	if !moved {
		return
	}

	left := e.registry.DropAll(c)
	e.captureState(c, prev.String(), StateDisconnected, "")
	e.debugLog("relay: connection released", "conn_id", c.id, "topics", left)

	if prev.IsAuthorized() {
		e.selfLog(severity.Info, fmt.Sprintf("Client %s disconnected", c.SocketID()))
	}
}

// Handle processes one frame received on tc.
func (e *Engine) Handle(tc transport.ServerConnection, data []byte) {
	c, ok := e.Conn(tc.ID())
	if !ok {
		e.config.Logger.Warn("relay: frame from unknown connection", "conn_id", tc.ID())
		_ = tc.Close()
		return
	}

	frame, err := wire.Decode(data)
	if err != nil {
		e.captureError(c, err, "decode frame")
		e.config.Logger.Warn("relay: undecodable frame, closing", "conn_id", c.id, "error", err)
		_ = tc.Close()
		return
	}
	e.captureMessage(c, log.DirectionIn, frame, 0)

	state := c.State()
	switch state {
	case StateConnected:
		hello, ok := frame.(*wire.Hello)
		if !ok {
			e.violation(c, fmt.Errorf("%w: %s before hello", ErrProtocolViolation, frame.FrameType()))
			return
		}
		e.gate(c, hello)

	case StateAuthorized, StateActive:
		e.dispatch(c, frame)

	default:
		// Disconnected: the read loop is about to end.
	}
}

func (e *Engine) dispatch(c *Conn, frame wire.Frame) {
	switch f := frame.(type) {
	case *wire.Hello:
		e.debugLog("relay: ignoring repeated hello", "conn_id", c.id)
		return
	case *wire.Log:
		e.activate(c)
		e.handleLog(c, f)
	case *wire.Sub:
		e.activate(c)
		e.subscribe(c, f.Topic)
	case *wire.Unsub:
		e.activate(c)
		e.unsubscribe(c, f.Topic)
	default:
		e.debugLog("relay: ignoring unexpected frame", "conn_id", c.id, "type", frame.FrameType().String())
	}
}

func (e *Engine) activate(c *Conn) {
	if prev, ok := c.transition(StateActive, StateAuthorized); ok {
		e.captureState(c, prev.String(), StateActive, "")
	}
}

func (e *Engine) violation(c *Conn, err error) {
	e.captureError(c, err, "handshake")
	e.config.Logger.Warn("relay: closing connection", "conn_id", c.id, "remote", c.remote, "error", err)
	_ = c.tc.Close()
}

// gate evaluates the hello frame of a Connected connection.
func (e *Engine) gate(c *Conn, hello *wire.Hello) {
	sid := socketID(hello.Channel, c.id)

	if hello.Channel == "" {
		e.reject(c, wire.RejectUnauthorized, "missing channel")
		e.selfLog(severity.Trace, fmt.Sprintf("Client %s unauthorized", sid))
		return
	}

	ok, err := e.authorize(auth.Handshake{
		ConnID:     c.id,
		Channel:    hello.Channel,
		Token:      hello.Token,
		RemoteAddr: c.remote,
	})
	if err != nil {
		e.config.Logger.Error("relay: authorization failed",
			"conn_id", c.id,
			"channel", hello.Channel,
			"remote", c.remote,
			"error", err)
		e.captureError(c, err, "authorize")
		e.reject(c, wire.RejectInternal, "authorizer error")
		e.selfLog(severity.Error, fmt.Sprintf("Error during authorization of client %s:", sid))
		return
	}
	if !ok {
		e.config.Logger.Info("relay: client unauthorized",
			"conn_id", c.id,
			"channel", hello.Channel,
			"remote", c.remote)
		e.reject(c, wire.RejectUnauthorized, "denied")
		e.selfLog(severity.Trace, fmt.Sprintf("Client %s unauthorized", sid))
		return
	}

	c.mu.Lock()
	if c.state != StateConnected {
		// Closed while the authorizer ran.
		c.mu.Unlock()
		return
	}
	c.state = StateAuthorized
	c.channel = hello.Channel
	if e.config.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(e.config.RateLimit), e.config.RateBurst)
	}
	c.mu.Unlock()

	e.pending.Remove(c.tc)
	e.captureState(c, StateConnected.String(), StateAuthorized, "")

	welcome := &wire.Welcome{ConnID: c.id}
	if data, err := wire.Encode(welcome); err == nil {
		if err := c.send(data); err != nil {
			e.debugLog("relay: welcome failed", "conn_id", c.id, "error", err)
		} else {
			e.captureMessage(c, log.DirectionOut, welcome, 0)
		}
	}

	e.selfLog(severity.Info, fmt.Sprintf("Client %s connected", sid))
}

// authorize calls the Authorizer, turning a panic into an error.
func (e *Engine) authorize(hs auth.Handshake) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("%w: %v", ErrAuthorizerPanic, r)
		}
	}()

	ctx, cancel := context.WithTimeout(e.ctx, e.config.AuthorizeTimeout)
	defer cancel()
	return e.config.Authorizer.Authorize(ctx, hs)
}

func (e *Engine) reject(c *Conn, reason wire.RejectReason, detail string) {
	prev, moved := c.transition(StateDisconnected, StateConnected)
	if !moved {
		return
	}
	e.rejected.Add(1)
	e.pending.Remove(c.tc)

	frame := &wire.Reject{Reason: reason}
	if data, err := wire.Encode(frame); err == nil && c.send(data) == nil {
		e.captureMessage(c, log.DirectionOut, frame, 0)
	}
	e.captureState(c, prev.String(), StateDisconnected, detail)
	_ = c.tc.Close()
}

func (e *Engine) handleLog(c *Conn, l *wire.Log) {
	ok, firstDrop := c.allow()
	if !ok {
		e.dropped.Add(1)
		if firstDrop {
			e.config.Logger.Warn("relay: rate limit exceeded, dropping log events",
				"conn_id", c.id,
				"channel", c.Channel(),
				"limit", e.config.RateLimit)
		}
		return
	}

	channel := c.Channel()
	if !e.config.EnforceHandshakeChannel && l.Channel != "" {
		channel = l.Channel
	}
	e.Emit(l.Push(channel))
}

func (e *Engine) subscribe(c *Conn, topic string) {
	if topic == "" {
		topic = registry.Wildcard
	}
	if err := e.registry.Join(c, topic); err != nil {
		e.config.Logger.Warn("relay: subscribe refused", "conn_id", c.id, "topic", topic, "error", err)
		e.captureError(c, err, "subscribe "+topic)
		return
	}
	e.captureSubscription(c, "JOINED", topic)
	e.config.Logger.Info("client subscribed", "client", c.SocketID(), "topic", topic)
}

func (e *Engine) unsubscribe(c *Conn, topic string) {
	if topic == "" {
		topic = registry.Wildcard
	}
	if e.registry.Leave(c, topic) {
		e.captureSubscription(c, "LEFT", topic)
		e.config.Logger.Info("client unsubscribed", "client", c.SocketID(), "topic", topic)
	}
}

// Emit distributes one event to the subscribers of its channel and of
// "*", then hands it to the sink and the mirror. Pushes are queued per
// subscriber, so a subscriber that stops reading loses pushes instead of
// stalling the producer or other subscribers.
func (e *Engine) Emit(p *wire.Push) {
	e.emitted.Add(1)

	if e.config.Console != nil {
		_ = e.config.Console.PrintPush(p)
	}

	data, err := wire.Encode(p)
	if err != nil {
		e.config.Logger.Error("relay: encode push", "channel", p.Channel, "error", err)
		return
	}

	targets := e.registry.SubscribersOf(p.Channel)
	targets = append(targets, e.registry.SubscribersOf(registry.Wildcard)...)

	for _, c := range targets {
		err := c.enqueue(data)
		switch {
		case err == nil:
			e.delivered.Add(1)
		case errors.Is(err, transport.ErrSendQueueFull):
			e.overflow.Add(1)
			if c.noteOverflow() {
				e.config.Logger.Warn("relay: subscriber not reading, dropping pushes",
					"conn_id", c.id,
					"client", c.SocketID())
			}
		default:
			e.failed.Add(1)
			e.debugLog("relay: push failed", "conn_id", c.id, "channel", p.Channel, "error", err)
		}
	}
	e.capturePush(p, len(targets))

	if err := e.config.Sink.Write(sink.RecordFromPush(p)); err != nil {
		e.debugLog("relay: sink write failed", "error", err)
	}
	if err := e.config.Mirror.Publish(p.Channel, data); err != nil {
		e.debugLog("relay: mirror publish failed", "error", err)
	}
}

// selfLog emits a server message on the self-log channel.
func (e *Engine) selfLog(sev severity.Severity, msgs ...any) {
	if e.config.DisableSelfLog {
		return
	}
	e.Emit(wire.NewLog(SelfLogChannel, sev, e.config.Now(), msgs...).Push(SelfLogChannel))
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Topics:    e.registry.Len(),
		Emitted:   e.emitted.Load(),
		Delivered: e.delivered.Load(),
		Failed:    e.failed.Load(),
		Dropped:   e.dropped.Load(),
		Overflow:  e.overflow.Load(),
		Rejected:  e.rejected.Load(),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, c := range e.conns {
		switch c.State() {
		case StateConnected:
			s.Connected++
		case StateAuthorized:
			s.Authorized++
		case StateActive:
			s.Active++
		}
	}
	return s
}

// Topics returns the topics c is subscribed to.
func (e *Engine) Topics(c *Conn) []string {
	return e.registry.Topics(c)
}

// Subscribers returns the number of connections subscribed to topic.
func (e *Engine) Subscribers(topic string) int {
	return e.registry.Count(topic)
}

// ReapHandshakes closes connections that have not completed the
// handshake within HandshakeTimeout. Returns the number closed.
func (e *Engine) ReapHandshakes() int {
	if e.config.HandshakeTimeout < 0 {
		return 0
	}
	closed := e.pending.CloseStale(e.config.Now(), e.config.HandshakeTimeout)
	if closed > 0 {
		e.debugLog("relay: closed connections without handshake", "count", closed)
	}
	return closed
}

func (e *Engine) debugLog(msg string, args ...any) {
	if e.config.Logger != nil {
		e.config.Logger.Debug(msg, args...)
	}
}
