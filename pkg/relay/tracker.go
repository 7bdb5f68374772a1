package relay

import (
	"sync"
	"time"

	"github.com/mash-protocol/logrelay/pkg/transport"
)

// handshakeTracker tracks connections that have not completed the hello
// handshake. The reaper closes those that linger past the handshake
// timeout.
type handshakeTracker struct {
	mu    sync.Mutex
	conns map[transport.ServerConnection]time.Time
}

func newHandshakeTracker() *handshakeTracker {
	return &handshakeTracker{
		conns: make(map[transport.ServerConnection]time.Time),
	}
}

// Add registers a connection with the given accept time.
func (ht *handshakeTracker) Add(conn transport.ServerConnection, at time.Time) {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	ht.conns[conn] = at
}

// Remove deregisters a connection. Safe to call on absent connections.
func (ht *handshakeTracker) Remove(conn transport.ServerConnection) {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	delete(ht.conns, conn)
}

// CloseStale closes and removes all connections accepted before now-maxAge.
// Returns the number of connections closed.
func (ht *handshakeTracker) CloseStale(now time.Time, maxAge time.Duration) int {
	ht.mu.Lock()
	var stale []transport.ServerConnection
	cutoff := now.Add(-maxAge)
	for conn, added := range ht.conns {
		if added.Before(cutoff) {
			stale = append(stale, conn)
			delete(ht.conns, conn)
		}
	}
	ht.mu.Unlock()

	// Close outside the lock: closing triggers the disconnect path,
	// which calls Remove.
	for _, conn := range stale {
		_ = conn.Close()
	}
	return len(stale)
}

// Len returns the number of tracked connections.
func (ht *handshakeTracker) Len() int {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return len(ht.conns)
}
