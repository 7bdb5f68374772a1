package sink

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultBufferSize   = 1024
	defaultDrainTimeout = 5 * time.Second
)

// AsyncOption configures an Async wrapper.
type AsyncOption func(*Async)

// WithBufferSize sets the queue capacity. Default: 1024.
func WithBufferSize(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.bufSize = n
		}
	}
}

// WithLogger sets the logger used for drop warnings.
func WithLogger(l *slog.Logger) AsyncOption {
	return func(a *Async) {
		if l != nil {
			a.logger = l
		}
	}
}

// Async queues records for a background goroutine so Write never blocks.
// Records arriving while the queue is full are dropped.
type Async struct {
	inner   Sink
	ch      chan Record
	done    chan struct{}
	logger  *slog.Logger
	bufSize int

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	warned  atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// NewAsync wraps inner. The drain goroutine starts immediately.
func NewAsync(inner Sink, opts ...AsyncOption) *Async {
	a := &Async{
		inner:   inner,
		bufSize: defaultBufferSize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.ch = make(chan Record, a.bufSize)
	a.done = make(chan struct{})
	go a.drain()
	return a
}

// Write enqueues rec. It always returns nil.
func (a *Async) Write(rec Record) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}

	select {
	case a.ch <- rec:
	default:
		a.dropped.Add(1)
		if a.warned.CompareAndSwap(false, true) {
			a.logger.Warn("sink buffer full, dropping records",
				"buffer", a.bufSize,
				"channel", rec.Channel)
		}
	}
	return nil
}

// Dropped returns the number of records dropped on a full queue.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close drains the queue (bounded by a timeout) and closes inner.
func (a *Async) Close() error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()

		select {
		case <-a.done:
		case <-time.After(defaultDrainTimeout):
			a.logger.Warn("sink drain timed out")
		}
		a.closeErr = a.inner.Close()
	})
	return a.closeErr
}

func (a *Async) drain() {
	defer close(a.done)
	for rec := range a.ch {
		if err := a.inner.Write(rec); err != nil {
			a.logger.Warn("sink write failed", "error", err)
		}
	}
}
