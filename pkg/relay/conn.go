package relay

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mash-protocol/logrelay/pkg/transport"
)

// Conn is the relay's view of one client connection.
type Conn struct {
	tc          transport.ServerConnection
	id          string
	remote      string
	connectedAt time.Time

	mu         sync.Mutex
	state      ConnState
	channel    string
	limiter    *rate.Limiter
	rateWarned bool
	dropped    uint64

	overflowWarned bool
	overflowed     uint64
}

func newConn(tc transport.ServerConnection, now time.Time) *Conn {
	remote := ""
	if addr := tc.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &Conn{
		tc:          tc,
		id:          tc.ID(),
		remote:      remote,
		connectedAt: now,
		state:       StateConnected,
	}
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.remote }

// Close drops the underlying transport connection. The engine releases
// the connection once the transport reports the disconnect.
func (c *Conn) Close() error { return c.tc.Close() }

// ConnectedAt returns the accept time.
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

// State returns the current state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Channel returns the channel claimed at handshake, or "" before it.
func (c *Conn) Channel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// Dropped returns the number of log events dropped by the rate limit.
func (c *Conn) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// SocketID renders "channel/id", or the bare id before a channel is known.
func (c *Conn) SocketID() string {
	return socketID(c.Channel(), c.id)
}

func socketID(channel, id string) string {
	if channel == "" {
		return id
	}
	return channel + "/" + id
}

// transition moves from one of the allowed states to next. It reports
// whether the move happened.
func (c *Conn) transition(next ConnState, from ...ConnState) (ConnState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	for _, f := range from {
		if prev == f {
			c.state = next
			return prev, true
		}
	}
	return prev, false
}

// allow consumes one token from the rate limiter. The second result is
// true exactly once per connection, on the first drop.
func (c *Conn) allow() (ok bool, firstDrop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limiter == nil || c.limiter.Allow() {
		return true, false
	}
	c.dropped++
	if !c.rateWarned {
		c.rateWarned = true
		return false, true
	}
	return false, false
}

// Overflowed returns the number of pushes dropped because the peer was
// not reading.
func (c *Conn) Overflowed() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overflowed
}

// noteOverflow counts a dropped push and reports whether it is the first.
func (c *Conn) noteOverflow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overflowed++
	if c.overflowWarned {
		return false
	}
	c.overflowWarned = true
	return true
}

// send writes synchronously. Used for handshake replies, which must be
// on the wire before the connection is closed or served.
func (c *Conn) send(data []byte) error {
	return c.tc.Send(data)
}

// enqueue hands a push to the connection's writer without blocking.
func (c *Conn) enqueue(data []byte) error {
	return c.tc.Enqueue(data)
}
