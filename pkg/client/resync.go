package client

import "sync"

// Resync releases waiters on the next successful connect.
type Resync struct {
	mu        sync.Mutex
	connected bool
	waiters   []chan struct{}
}

// closed is returned to callers while connected.
var closed = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Sync returns a channel that is closed once connected. While connected
// the channel is already closed. Each call before a connect gets its own
// channel; all of them are closed by the same connect.
func (r *Resync) Sync() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected {
		return closed
	}
	ch := make(chan struct{})
	r.waiters = append(r.waiters, ch)
	return ch
}

// Connected marks the link up and releases every queued waiter exactly once.
func (r *Resync) Connected() {
	r.mu.Lock()
	r.connected = true
	waiters := r.waiters
	r.waiters = nil
	r.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

// Disconnected marks the link down. Later Sync calls wait again.
func (r *Resync) Disconnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
}

// Pending returns the number of queued waiters.
func (r *Resync) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
