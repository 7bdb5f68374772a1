// Package transport provides the relay transport layer.
//
// The transport layer handles:
//   - TCP connections, optionally wrapped in TLS 1.3
//   - Length-prefixed frame I/O
//   - Ping/pong keep-alive for link liveness
//   - Per-connection protocol capture
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   CBOR relay frames (wire)     │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│   TLS 1.3 (optional)           │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// TLS is enabled when the server is given a certificate. The relay does not
// authenticate clients by certificate: who may publish is decided by the
// authorization gate during the hello handshake, above this layer.
//
// # Keep-Alive
//
// Clients ping the relay; the relay answers every ping with a pong carrying
// the same sequence number. Defaults:
//   - Ping interval: 25 seconds
//   - Pong timeout: 20 seconds
//   - Max missed pongs: 2
package transport
