// Package relay implements the log relay server.
//
// The Engine owns the per-connection state machine, the authorization
// gate and distribution. Server binds an Engine to a transport listener
// and runs the handshake reaper.
//
// # Connection lifecycle
//
//	Connected ──hello ok──▶ Authorized ──first sub/unsub/log──▶ Active
//	    │                        │                                 │
//	    └──reject/timeout──▶ Disconnected ◀────── transport close ─┘
//
// A connection must send hello first. The gate rejects a hello without a
// channel claim outright and otherwise asks the configured Authorizer.
// Any other frame before authorization closes the connection.
//
// # Distribution
//
// Every log event is pushed to the subscribers of its channel and, in
// addition, to the subscribers of "*". There is no deduplication: a
// connection subscribed to both receives the event twice. The push frame
// is encoded once per event and then handed to the file sink and the NATS
// mirror. Delivery is best effort; a failed send is logged and never
// affects other subscribers.
//
// # Self-log
//
// Connection lifecycle messages are emitted as ordinary events on the
// "logserv" channel, so subscribers of "*" see clients come and go.
package relay
