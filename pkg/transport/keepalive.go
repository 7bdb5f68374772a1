package transport

import (
	"context"
	"sync"
	"time"
)

// Keep-alive defaults.
const (
	// DefaultPingInterval is the interval between pings.
	DefaultPingInterval = 25 * time.Second

	// DefaultPongTimeout is how long a ping may go unanswered.
	DefaultPongTimeout = 20 * time.Second

	// DefaultMaxMissedPongs is the number of unanswered pings that
	// declares the link dead.
	DefaultMaxMissedPongs = 2
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the worst-case time to notice a dead link.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return CalculateDetectionDelay(c.PingInterval, c.PongTimeout, c.MaxMissedPongs)
}

// CalculateDetectionDelay returns pingInterval*(maxMissedPongs-1) + pongTimeout,
// the time from the first unanswered ping to the timeout.
func CalculateDetectionDelay(pingInterval, pongTimeout time.Duration, maxMissedPongs int) time.Duration {
	if maxMissedPongs < 1 {
		maxMissedPongs = 1
	}
	return pingInterval*time.Duration(maxMissedPongs-1) + pongTimeout
}

// KeepAliveStats is a snapshot of keep-alive state.
type KeepAliveStats struct {
	LastPingTime time.Time
	LastPongTime time.Time
	LastRTT      time.Duration
	MissedPongs  int
	CurrentSeq   uint32
}

// KeepAlive pings a peer periodically and reports a timeout after too many
// unanswered pings. It is used by clients; the relay only answers.
type KeepAlive struct {
	config    KeepAliveConfig
	sendPing  func(seq uint32) error
	onTimeout func()

	mu          sync.Mutex
	onPong      func(seq uint32, rtt time.Duration)
	running     bool
	stopCh      chan struct{}
	seq         uint32
	pending     map[uint32]time.Time
	missedPongs int
	lastPing    time.Time
	lastPong    time.Time
	lastRTT     time.Duration
	timedOut    bool

	pongCh chan uint32
}

// NewKeepAlive creates a keep-alive manager. sendPing transmits a ping with
// the given sequence; onTimeout is called once when the peer is declared dead.
func NewKeepAlive(config KeepAliveConfig, sendPing func(seq uint32) error, onTimeout func()) *KeepAlive {
	def := DefaultKeepAliveConfig()
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = def.PongTimeout
	}
	if config.MaxMissedPongs <= 0 {
		config.MaxMissedPongs = def.MaxMissedPongs
	}

	return &KeepAlive{
		config:    config,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		pending:   make(map[uint32]time.Time),
		pongCh:    make(chan uint32, 8),
	}
}

// SetPongReceivedCallback registers a callback with the measured round trip.
func (ka *KeepAlive) SetPongReceivedCallback(cb func(seq uint32, rtt time.Duration)) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	ka.onPong = cb
}

// Start begins pinging. It is a no-op if already running.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	stop := ka.stopCh
	ka.mu.Unlock()

	go ka.loop(ctx, stop)
}

// Stop stops pinging.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// IsRunning returns true while the ping loop is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// PongReceived must be called for every pong frame read from the peer.
func (ka *KeepAlive) PongReceived(seq uint32) {
	select {
	case ka.pongCh <- seq:
	default:
	}
}

// Stats returns a snapshot of the current state.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return KeepAliveStats{
		LastPingTime: ka.lastPing,
		LastPongTime: ka.lastPong,
		LastRTT:      ka.lastRTT,
		MissedPongs:  ka.missedPongs,
		CurrentSeq:   ka.seq,
	}
}

func (ka *KeepAlive) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	expired := make(chan uint32, 8)
	ka.ping(ctx, stop, expired)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			ka.ping(ctx, stop, expired)
		case seq := <-ka.pongCh:
			ka.pong(seq)
		case seq := <-expired:
			if ka.expire(seq) {
				ka.Stop()
				if ka.onTimeout != nil {
					ka.onTimeout()
				}
				return
			}
		}
	}
}

// ping sends the next ping and arms its pong timer.
func (ka *KeepAlive) ping(ctx context.Context, stop <-chan struct{}, expired chan<- uint32) {
	ka.mu.Lock()
	ka.seq++
	seq := ka.seq
	now := time.Now()
	ka.lastPing = now
	ka.pending[seq] = now
	ka.mu.Unlock()

	// A failed send is treated like a lost pong.
	_ = ka.sendPing(seq)

	time.AfterFunc(ka.config.PongTimeout, func() {
		select {
		case expired <- seq:
		case <-stop:
		case <-ctx.Done():
		}
	})
}

func (ka *KeepAlive) pong(seq uint32) {
	ka.mu.Lock()
	sent, ok := ka.pending[seq]
	now := time.Now()
	ka.lastPong = now
	var cb func(uint32, time.Duration)
	var rtt time.Duration
	if ok {
		delete(ka.pending, seq)
		rtt = now.Sub(sent)
		ka.lastRTT = rtt
		ka.missedPongs = 0
		cb = ka.onPong
	}
	ka.mu.Unlock()

	if cb != nil {
		cb(seq, rtt)
	}
}

// expire marks seq as missed if it is still pending and reports whether
// the missed-pong limit has been reached.
func (ka *KeepAlive) expire(seq uint32) bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if _, ok := ka.pending[seq]; !ok {
		return false
	}
	delete(ka.pending, seq)
	ka.missedPongs++
	if ka.missedPongs >= ka.config.MaxMissedPongs && !ka.timedOut {
		ka.timedOut = true
		return true
	}
	return false
}
