package transport

import (
	"time"

	"github.com/mash-protocol/logrelay/pkg/log"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

// EncodePing encodes a ping control frame.
func EncodePing(seq uint32) ([]byte, error) {
	return wire.Encode(&wire.Ping{Sequence: seq})
}

// EncodePong encodes a pong control frame.
func EncodePong(seq uint32) ([]byte, error) {
	return wire.Encode(&wire.Pong{Sequence: seq})
}

// EncodeClose encodes a close control frame.
func EncodeClose() ([]byte, error) {
	return wire.Encode(&wire.Close{})
}

// DecodeControlMessage decodes a control frame and returns its type and
// sequence number. Non-control frames yield wire.ErrInvalidFrame.
func DecodeControlMessage(data []byte) (wire.FrameType, uint32, error) {
	f, err := wire.Decode(data)
	if err != nil {
		return 0, 0, err
	}
	switch t := f.(type) {
	case *wire.Ping:
		return wire.FramePing, t.Sequence, nil
	case *wire.Pong:
		return wire.FramePong, t.Sequence, nil
	case *wire.Close:
		return wire.FrameClose, 0, nil
	default:
		return 0, 0, wire.ErrInvalidFrame
	}
}

// controlEvent builds the capture event for a control frame.
func controlEvent(connID, remote string, typ wire.FrameType, seq uint32, dir log.Direction) (log.Event, bool) {
	var ct log.ControlMsgType
	switch typ {
	case wire.FramePing:
		ct = log.ControlMsgPing
	case wire.FramePong:
		ct = log.ControlMsgPong
	case wire.FrameClose:
		ct = log.ControlMsgClose
	default:
		return log.Event{}, false
	}
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		RemoteAddr:   remote,
		ControlMsg:   &log.ControlMsgEvent{Type: ct, Sequence: seq},
	}, true
}
