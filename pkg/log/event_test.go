package log

import (
	"testing"

	"github.com/mash-protocol/logrelay/pkg/severity"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"direction in", DirectionIn.String(), "IN"},
		{"direction out", DirectionOut.String(), "OUT"},
		{"direction unknown", Direction(99).String(), "UNKNOWN"},
		{"layer transport", LayerTransport.String(), "TRANSPORT"},
		{"layer wire", LayerWire.String(), "WIRE"},
		{"layer relay", LayerRelay.String(), "RELAY"},
		{"layer unknown", Layer(99).String(), "UNKNOWN"},
		{"category message", CategoryMessage.String(), "MESSAGE"},
		{"category control", CategoryControl.String(), "CONTROL"},
		{"category state", CategoryState.String(), "STATE"},
		{"category error", CategoryError.String(), "ERROR"},
		{"category unknown", Category(99).String(), "UNKNOWN"},
		{"role server", RoleServer.String(), "SERVER"},
		{"role client", RoleClient.String(), "CLIENT"},
		{"role unknown", Role(99).String(), "UNKNOWN"},
		{"entity connection", StateEntityConnection.String(), "CONNECTION"},
		{"entity session", StateEntitySession.String(), "SESSION"},
		{"entity subscription", StateEntitySubscription.String(), "SUBSCRIPTION"},
		{"entity unknown", StateEntity(99).String(), "UNKNOWN"},
		{"ctrl ping", ControlMsgPing.String(), "PING"},
		{"ctrl pong", ControlMsgPong.String(), "PONG"},
		{"ctrl close", ControlMsgClose.String(), "CLOSE"},
		{"ctrl unknown", ControlMsgType(99).String(), "UNKNOWN"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestEnumValuesAreStable(t *testing.T) {
	// Capture files written by older builds must keep decoding.
	if LayerRelay != 2 {
		t.Errorf("LayerRelay = %d, want 2", LayerRelay)
	}
	if CategoryError != 3 {
		t.Errorf("CategoryError = %d, want 3", CategoryError)
	}
	if RoleClient != 1 {
		t.Errorf("RoleClient = %d, want 1", RoleClient)
	}
	if ControlMsgClose != 2 {
		t.Errorf("ControlMsgClose = %d, want 2", ControlMsgClose)
	}
}

func TestNewMessageEvent(t *testing.T) {
	logFrame := &wire.Log{
		Channel:   "build",
		Severity:  severity.Warn,
		Timestamp: "2024-03-01T12:00:00.000Z",
		Messages:  wire.ValuesOf("a", 1),
	}

	m := NewMessageEvent(logFrame)
	if m.Type != wire.FrameLog {
		t.Errorf("Type = %v, want log", m.Type)
	}
	if m.Channel != "build" {
		t.Errorf("Channel = %q, want build", m.Channel)
	}
	if m.Severity == nil || *m.Severity != severity.Warn {
		t.Errorf("Severity = %v, want WARN", m.Severity)
	}
	if m.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", m.MessageCount)
	}

	sub := NewMessageEvent(&wire.Sub{Topic: "deploy"})
	if sub.Topic != "deploy" {
		t.Errorf("Topic = %q, want deploy", sub.Topic)
	}

	rej := NewMessageEvent(&wire.Reject{Reason: wire.RejectUnauthorized})
	if rej.Reason == nil || *rej.Reason != wire.RejectUnauthorized {
		t.Errorf("Reason = %v, want Unauthorized", rej.Reason)
	}
}

func TestNewFrameEvent(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}

	full := NewFrameEvent(data, 16)
	if full.Size != 9 || full.Truncated || len(full.Data) != 5 {
		t.Errorf("full capture = %+v", full)
	}

	cut := NewFrameEvent(data, 2)
	if !cut.Truncated || len(cut.Data) != 2 {
		t.Errorf("truncated capture = %+v", cut)
	}

	sizeOnly := NewFrameEvent(data, 0)
	if sizeOnly.Data != nil || !sizeOnly.Truncated {
		t.Errorf("size-only capture = %+v", sizeOnly)
	}

	// The capture must not alias the caller's buffer.
	data[0] = 9
	if full.Data[0] != 1 {
		t.Error("FrameEvent aliases the input buffer")
	}
}
