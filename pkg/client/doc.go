// Package client is the producer and subscriber side of the log relay.
//
// A Session holds a channel identity and a set of desired subscriptions
// that survive reconnects. The transport link underneath may come and go;
// on every successful (re)connect the session releases its Sync waiters
// and re-sends a sub frame for each desired topic, so callers never
// resubscribe by hand.
//
// Log is fire and forget. While disconnected the event is still mirrored
// to the local console but not queued for later delivery.
//
// A handshake rejected by the relay is reported as ErrUnauthorized or
// ErrInternal (both wrap ErrRejected) and stops reconnecting: retrying a
// policy decision cannot succeed.
package client
