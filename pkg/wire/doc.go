// Package wire defines the CBOR wire format of the log relay protocol.
//
// Every frame is a CBOR map with integer keys:
//
//	{
//	  1: type,  // uint8 FrameType
//	  2: body   // type-specific map, integer keys
//	}
//
// # Frame Types
//
// Handshake:
//   - Hello: client to server, carries the channel claim and an optional token
//   - Welcome: server to client, the connection was authorized
//   - Reject: server to client, Unauthorized or Internal error
//
// Traffic:
//   - Log: client to server, one log event
//   - Sub, Unsub: client to server, topic subscription changes
//   - Push: server to client, one relayed log event
//
// Control:
//   - Ping, Pong, Close: keep-alive and graceful close
//
// # Payload Values
//
// Log messages are a sequence of Value, a tagged union of null, string,
// number, bool, record and list. Values encode as native CBOR items so any
// CBOR-capable peer can read them without knowing the Go types.
package wire
