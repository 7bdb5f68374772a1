package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
)

// DefaultAttemptTimeout bounds a single reconnect attempt.
const DefaultAttemptTimeout = 15 * time.Second

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the Manager stops reconnecting when a
// ConnectFunc returns it. errors.Is and errors.As still see err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection and no retry pending.
	StateDisconnected State = iota

	// StateConnecting indicates a caller-initiated attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates the background loop is retrying.
	StateReconnecting

	// StateClosed indicates the manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes one connection. It returns nil on success.
type ConnectFunc func(ctx context.Context) error

// ManagerConfig tunes a Manager. Zero fields take the defaults.
type ManagerConfig struct {
	Backoff        BackoffConfig
	AttemptTimeout time.Duration

	// Logger receives reconnect diagnostics (optional).
	Logger *slog.Logger
}

type callbacks struct {
	onStateChange  func(oldState, newState State)
	onConnected    func()
	onDisconnected func()
	onReconnecting func(attempt int, delay time.Duration)
	onConnectError func(err error)
}

// Manager manages connection lifecycle with automatic reconnection.
type Manager struct {
	mu            sync.RWMutex
	state         State
	autoReconnect bool
	cb            callbacks

	backoff        *Backoff
	connectFn      ConnectFunc
	attemptTimeout time.Duration
	logger         *slog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	loopOnce    sync.Once
	reconnectCh chan struct{}
}

// NewManager creates a manager with default settings.
func NewManager(connectFn ConnectFunc) *Manager {
	return NewManagerWithConfig(connectFn, ManagerConfig{})
}

// NewManagerWithConfig creates a manager with custom settings.
func NewManagerWithConfig(connectFn ConnectFunc, cfg ManagerConfig) *Manager {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		state:          StateDisconnected,
		autoReconnect:  true,
		backoff:        NewBackoffWithConfig(cfg.Backoff),
		connectFn:      connectFn,
		attemptTimeout: cfg.AttemptTimeout,
		logger:         cfg.Logger,
		ctx:            ctx,
		cancel:         cancel,
		reconnectCh:    make(chan struct{}, 1),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected returns true if currently connected.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// SetAutoReconnect enables or disables automatic reconnection.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// Connect makes one connection attempt on the caller's goroutine.
// A failed attempt leaves the manager disconnected; use ScheduleReconnect
// to hand over to the background loop.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateClosed:
		m.mu.Unlock()
		return ErrConnectionClosed
	}
	old := m.state
	m.state = StateConnecting
	cb := m.cb
	m.mu.Unlock()

	notifyState(cb, old, StateConnecting)

	if err := m.connectFn(ctx); err != nil {
		if m.transition(StateConnecting, StateDisconnected) {
			m.reportError(err)
		}
		return err
	}

	if !m.transition(StateConnecting, StateConnected) {
		return ErrConnectionClosed
	}
	return nil
}

// ScheduleReconnect starts background retries from a disconnected state,
// e.g. after a failed initial Connect. It is a no-op when auto reconnect
// is off or the manager is connected or closed.
func (m *Manager) ScheduleReconnect() {
	m.mu.Lock()
	if m.state != StateDisconnected || !m.autoReconnect {
		m.mu.Unlock()
		return
	}
	m.state = StateReconnecting
	cb := m.cb
	m.mu.Unlock()

	notifyState(cb, StateDisconnected, StateReconnecting)
	m.triggerReconnect()
}

// Disconnect drops the current connection on purpose. Auto reconnect
// still applies.
func (m *Manager) Disconnect() {
	m.NotifyConnectionLost()
}

// NotifyConnectionLost must be called when the link fails. It triggers
// reconnection if enabled.
func (m *Manager) NotifyConnectionLost() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	next := StateDisconnected
	if m.autoReconnect {
		next = StateReconnecting
	}
	m.state = next
	cb := m.cb
	m.mu.Unlock()

	notifyState(cb, StateConnected, next)
	if cb.onDisconnected != nil {
		cb.onDisconnected()
	}

	if next == StateReconnecting {
		m.triggerReconnect()
	}
}

// StartReconnectLoop starts the background reconnection goroutine.
// Further calls are no-ops.
func (m *Manager) StartReconnectLoop() {
	m.loopOnce.Do(func() {
		m.wg.Add(1)
		go m.reconnectLoop()
	})
}

// Close stops reconnecting and waits for the loop to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateClosed
	cb := m.cb
	m.mu.Unlock()

	notifyState(cb, old, StateClosed)
	m.cancel()
	m.wg.Wait()
}

// BackoffAttempts returns the number of reconnection attempts since the
// last successful connect.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}

func (m *Manager) triggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
	}
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

func (m *Manager) attemptReconnect() {
	for {
		if m.State() != StateReconnecting {
			return
		}

		delay := m.backoff.Next()
		attempt := m.backoff.Attempts()

		m.mu.RLock()
		onReconnecting := m.cb.onReconnecting
		m.mu.RUnlock()
		if onReconnecting != nil {
			onReconnecting(attempt, delay)
		}
		m.debugLog("reconnecting", "attempt", attempt, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if m.State() != StateReconnecting {
			return
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.attemptTimeout)
		err := m.connectFn(ctx)
		cancel()

		if err == nil {
			m.transition(StateReconnecting, StateConnected)
			return
		}

		m.reportError(err)
		if IsPermanent(err) {
			m.debugLog("giving up reconnect", "error", err)
			m.transition(StateReconnecting, StateDisconnected)
			return
		}
	}
}

// transition moves from one state to another if the manager is still in
// from. Reaching StateConnected resets the backoff and fires OnConnected.
func (m *Manager) transition(from, to State) bool {
	m.mu.Lock()
	if m.state != from {
		m.mu.Unlock()
		return false
	}
	m.state = to
	if to == StateConnected {
		m.backoff.Reset()
	}
	cb := m.cb
	m.mu.Unlock()

	notifyState(cb, from, to)
	if to == StateConnected && cb.onConnected != nil {
		cb.onConnected()
	}
	return true
}

func (m *Manager) reportError(err error) {
	m.mu.RLock()
	fn := m.cb.onConnectError
	m.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func notifyState(cb callbacks, old, next State) {
	if cb.onStateChange != nil && old != next {
		cb.onStateChange(old, next)
	}
}

func (m *Manager) debugLog(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb.onStateChange = fn
}

// OnConnected sets a callback for every successful connect.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb.onConnected = fn
}

// OnDisconnected sets a callback for connection loss.
func (m *Manager) OnDisconnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb.onDisconnected = fn
}

// OnReconnecting sets a callback invoked before each retry delay.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb.onReconnecting = fn
}

// OnConnectError sets a callback for every failed attempt.
func (m *Manager) OnConnectError(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb.onConnectError = fn
}

// String implements fmt.Stringer for diagnostics.
func (m *Manager) String() string {
	return fmt.Sprintf("connection.Manager{state=%s attempts=%d}", m.State(), m.BackoffAttempts())
}
