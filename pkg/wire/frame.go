package wire

import (
	"time"

	"github.com/mash-protocol/logrelay/pkg/severity"
)

// FrameType identifies the kind of frame.
type FrameType uint8

const (
	// FrameHello is the client handshake carrying the channel claim.
	FrameHello FrameType = 1
	// FrameWelcome confirms an authorized connection.
	FrameWelcome FrameType = 2
	// FrameReject refuses a handshake.
	FrameReject FrameType = 3
	// FrameLog carries one log event from a producer.
	FrameLog FrameType = 4
	// FrameSub subscribes the connection to a topic.
	FrameSub FrameType = 5
	// FrameUnsub unsubscribes the connection from a topic.
	FrameUnsub FrameType = 6
	// FramePush delivers one log event to a subscriber.
	FramePush FrameType = 7
	// FramePing checks connection liveness.
	FramePing FrameType = 8
	// FramePong answers a ping.
	FramePong FrameType = 9
	// FrameClose initiates graceful close.
	FrameClose FrameType = 10
)

// String returns the frame type name as used in the protocol.
func (t FrameType) String() string {
	switch t {
	case FrameHello:
		return "hello"
	case FrameWelcome:
		return "welcome"
	case FrameReject:
		return "reject"
	case FrameLog:
		return "log"
	case FrameSub:
		return "sub"
	case FrameUnsub:
		return "unsub"
	case FramePush:
		return "push"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameClose:
		return "close"
	default:
		return "unknown"
	}
}

// IsValid returns true if t is a known frame type.
func (t FrameType) IsValid() bool {
	return t >= FrameHello && t <= FrameClose
}

// IsControl returns true for ping, pong and close.
func (t FrameType) IsControl() bool {
	return t == FramePing || t == FramePong || t == FrameClose
}

// Frame is implemented by every frame body.
type Frame interface {
	FrameType() FrameType
}

// newFrame allocates an empty frame body for t.
func newFrame(t FrameType) Frame {
	switch t {
	case FrameHello:
		return &Hello{}
	case FrameWelcome:
		return &Welcome{}
	case FrameReject:
		return &Reject{}
	case FrameLog:
		return &Log{}
	case FrameSub:
		return &Sub{}
	case FrameUnsub:
		return &Unsub{}
	case FramePush:
		return &Push{}
	case FramePing:
		return &Ping{}
	case FramePong:
		return &Pong{}
	case FrameClose:
		return &Close{}
	default:
		return nil
	}
}

// Hello is the first frame a client sends.
//
// CBOR encoding:
//
//	{
//	  1: channel,  // string, required by the server
//	  2: token     // string, optional credential for the authorizer
//	}
type Hello struct {
	Channel string `cbor:"1,keyasint,omitempty"`
	Token   string `cbor:"2,keyasint,omitempty"`
}

// FrameType implements Frame.
func (*Hello) FrameType() FrameType { return FrameHello }

// Welcome is the server's reply to an authorized Hello.
type Welcome struct {
	ConnID string `cbor:"1,keyasint"`
}

// FrameType implements Frame.
func (*Welcome) FrameType() FrameType { return FrameWelcome }

// RejectReason tells a refused client why.
type RejectReason uint8

const (
	// RejectUnauthorized means the channel claim was missing or the
	// authorizer refused the connection.
	RejectUnauthorized RejectReason = 1

	// RejectInternal means the authorizer failed while evaluating.
	RejectInternal RejectReason = 2
)

// String returns the reason text shown to clients.
func (r RejectReason) String() string {
	switch r {
	case RejectUnauthorized:
		return "Unauthorized"
	case RejectInternal:
		return "Internal error"
	default:
		return "Unknown"
	}
}

// Reject refuses a handshake. The connection is closed after it is sent.
type Reject struct {
	Reason RejectReason `cbor:"1,keyasint"`
}

// FrameType implements Frame.
func (*Reject) FrameType() FrameType { return FrameReject }

// Log is one log event emitted by a producer.
//
// CBOR encoding:
//
//	{
//	  1: channel,    // string, optional (server falls back to the handshake channel)
//	  2: severity,   // int ordinal
//	  3: timestamp,  // ISO-8601 string, echoed verbatim
//	  4: messages    // array of values
//	}
type Log struct {
	Channel   string            `cbor:"1,keyasint,omitempty"`
	Severity  severity.Severity `cbor:"2,keyasint"`
	Timestamp string            `cbor:"3,keyasint"`
	Messages  []Value           `cbor:"4,keyasint,omitempty"`
}

// FrameType implements Frame.
func (*Log) FrameType() FrameType { return FrameLog }

// NewLog builds a Log frame, converting each message with ValueOf.
func NewLog(channel string, sev severity.Severity, ts time.Time, messages ...any) *Log {
	return &Log{
		Channel:   channel,
		Severity:  sev,
		Timestamp: FormatTimestamp(ts),
		Messages:  ValuesOf(messages...),
	}
}

// Push converts the event into the frame delivered to subscribers of channel.
func (l *Log) Push(channel string) *Push {
	return &Push{
		Channel:   channel,
		Severity:  l.Severity,
		Timestamp: l.Timestamp,
		Messages:  l.Messages,
	}
}

// Sub subscribes to a topic. An empty topic means the wildcard.
type Sub struct {
	Topic string `cbor:"1,keyasint,omitempty"`
}

// FrameType implements Frame.
func (*Sub) FrameType() FrameType { return FrameSub }

// Unsub unsubscribes from a topic.
type Unsub struct {
	Topic string `cbor:"1,keyasint,omitempty"`
}

// FrameType implements Frame.
func (*Unsub) FrameType() FrameType { return FrameUnsub }

// Push is one relayed log event.
type Push struct {
	Channel   string            `cbor:"1,keyasint"`
	Severity  severity.Severity `cbor:"2,keyasint"`
	Timestamp string            `cbor:"3,keyasint"`
	Messages  []Value           `cbor:"4,keyasint,omitempty"`
}

// FrameType implements Frame.
func (*Push) FrameType() FrameType { return FramePush }

// Time parses the timestamp. The zero time is returned if it is malformed.
func (p *Push) Time() time.Time {
	t, err := ParseTimestamp(p.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Ping checks liveness. The peer echoes Sequence in a Pong.
type Ping struct {
	Sequence uint32 `cbor:"1,keyasint,omitempty"`
}

// FrameType implements Frame.
func (*Ping) FrameType() FrameType { return FramePing }

// Pong answers a Ping.
type Pong struct {
	Sequence uint32 `cbor:"1,keyasint,omitempty"`
}

// FrameType implements Frame.
func (*Pong) FrameType() FrameType { return FramePong }

// Close asks the peer to close the connection.
type Close struct{}

// FrameType implements Frame.
func (*Close) FrameType() FrameType { return FrameClose }

// Compile-time interface satisfaction checks.
var (
	_ Frame = (*Hello)(nil)
	_ Frame = (*Welcome)(nil)
	_ Frame = (*Reject)(nil)
	_ Frame = (*Log)(nil)
	_ Frame = (*Sub)(nil)
	_ Frame = (*Unsub)(nil)
	_ Frame = (*Push)(nil)
	_ Frame = (*Ping)(nil)
	_ Frame = (*Pong)(nil)
	_ Frame = (*Close)(nil)
)
