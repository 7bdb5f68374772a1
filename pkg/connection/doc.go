// Package connection keeps a client attached to the relay.
//
// A Manager owns the connect/reconnect lifecycle: it calls a ConnectFunc,
// tracks the resulting state, and when the link is lost retries with
// exponential backoff plus jitter until it succeeds, the manager is
// closed, or the ConnectFunc reports a permanent failure.
//
// # Reconnection Strategy
//
//  1. Initial delay: 1 second
//  2. Doubling: 2s, 4s, 8s, 16s
//  3. Capped at 30 seconds, retried at the cap until successful
//  4. Reset to 1s after every successful connect
//
// Jitter spreads out clients that lost the same relay at the same time:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// # Permanent failures
//
// A handshake the relay rejects (for example an unauthorized channel) will
// be rejected again on every retry. ConnectFuncs wrap such errors with
// Permanent; the manager then stops and reports StateDisconnected.
package connection
