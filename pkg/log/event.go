package log

import (
	"time"

	"github.com/mash-protocol/logrelay/pkg/severity"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

// Event represents a protocol capture event recorded at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID on the server).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole indicates whether this is the relay server or a client.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Channel is the channel claimed at handshake (populated after hello).
	Channel string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection/session state
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"` // Ping/pong/close
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the frame encoding layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerRelay is the distribution engine and client session layer.
	LayerRelay Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerRelay:
		return "RELAY"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a protocol frame (hello/log/sub/push...).
	CategoryMessage Category = 0
	// CategoryControl indicates a control frame (ping/pong/close).
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates whether the local endpoint is the relay or a client.
type Role uint8

const (
	// RoleServer indicates the relay server.
	RoleServer Role = 0
	// RoleClient indicates a producer or subscriber client.
	RoleClient Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleServer:
		return "SERVER"
	case RoleClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded relay frame at the wire layer.
type MessageEvent struct {
	// Type is the frame type.
	Type wire.FrameType `cbor:"1,keyasint"`

	// For log and push: the event channel. For hello: the claim.
	Channel string `cbor:"2,keyasint,omitempty"`

	// For sub and unsub: the topic.
	Topic string `cbor:"3,keyasint,omitempty"`

	// For log and push: the severity.
	Severity *severity.Severity `cbor:"4,keyasint,omitempty"`

	// For log and push: the producer timestamp, verbatim.
	EventTime string `cbor:"5,keyasint,omitempty"`

	// For log and push: number of payload values.
	MessageCount int `cbor:"6,keyasint,omitempty"`

	// For reject: the reason.
	Reason *wire.RejectReason `cbor:"7,keyasint,omitempty"`

	// Recipients is the number of connections a push was sent to.
	Recipients int `cbor:"8,keyasint,omitempty"`
}

// NewMessageEvent summarizes a decoded frame.
func NewMessageEvent(f wire.Frame) *MessageEvent {
	m := &MessageEvent{Type: f.FrameType()}
	switch t := f.(type) {
	case *wire.Hello:
		m.Channel = t.Channel
	case *wire.Reject:
		reason := t.Reason
		m.Reason = &reason
	case *wire.Log:
		sev := t.Severity
		m.Channel = t.Channel
		m.Severity = &sev
		m.EventTime = t.Timestamp
		m.MessageCount = len(t.Messages)
	case *wire.Push:
		sev := t.Severity
		m.Channel = t.Channel
		m.Severity = &sev
		m.EventTime = t.Timestamp
		m.MessageCount = len(t.Messages)
	case *wire.Sub:
		m.Topic = t.Topic
	case *wire.Unsub:
		m.Topic = t.Topic
	}
	return m
}

// StateChangeEvent captures connection and session lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a transport connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntitySession indicates a relay session state change
	// (Connected, Authorized, Active, Disconnected).
	StateEntitySession StateEntity = 1
	// StateEntitySubscription indicates a topic join or leave.
	StateEntitySubscription StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntitySubscription:
		return "SUBSCRIPTION"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures transport-level control messages.
type ControlMsgEvent struct {
	// Type of control message.
	Type ControlMsgType `cbor:"1,keyasint"`

	// Sequence is the ping/pong sequence number.
	Sequence uint32 `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType indicates the type of control message.
type ControlMsgType uint8

const (
	// ControlMsgPing indicates a ping message.
	ControlMsgPing ControlMsgType = 0
	// ControlMsgPong indicates a pong message.
	ControlMsgPong ControlMsgType = 1
	// ControlMsgClose indicates a close message.
	ControlMsgClose ControlMsgType = 2
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}

// DefaultMaxFrameCapture is the number of frame bytes kept in a FrameEvent.
const DefaultMaxFrameCapture = 1024

// NewFrameEvent captures data, keeping at most max bytes.
// A max of zero or less keeps only the size.
func NewFrameEvent(data []byte, max int) *FrameEvent {
	fe := &FrameEvent{Size: len(data) + 4}
	if max <= 0 {
		fe.Truncated = len(data) > 0
		return fe
	}
	if len(data) > max {
		fe.Data = append([]byte(nil), data[:max]...)
		fe.Truncated = true
		return fe
	}
	fe.Data = append([]byte(nil), data...)
	return fe
}
