package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/mash-protocol/logrelay/pkg/wire"
)

func createTestCapture(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.cap")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test capture: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, e)
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	path := createTestCapture(t, []Event{
		{Timestamp: time.Now(), ConnectionID: "conn-1", Layer: LayerTransport},
		{Timestamp: time.Now(), ConnectionID: "conn-2", Layer: LayerWire},
		{Timestamp: time.Now(), ConnectionID: "conn-3", Layer: LayerRelay, Category: CategoryState},
	})

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 3 {
		t.Fatalf("got %d events, want 3", len(read))
	}
	if read[0].ConnectionID != "conn-1" || read[2].ConnectionID != "conn-3" {
		t.Errorf("unexpected order: %q ... %q", read[0].ConnectionID, read[2].ConnectionID)
	}
}

func TestReaderHandlesEmptyFile(t *testing.T) {
	reader, err := NewReader(createTestCapture(t, nil))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("Next on empty capture: got %v, want io.EOF", err)
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, ConnectionID: "c1", Channel: "build", Direction: DirectionIn,
			Category: CategoryMessage, Message: &MessageEvent{Type: wire.FrameLog}},
		{Timestamp: base.Add(time.Second), ConnectionID: "c2", Channel: "deploy", Direction: DirectionOut,
			Category: CategoryMessage, Message: &MessageEvent{Type: wire.FramePush}},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "c1", Channel: "build", Direction: DirectionIn,
			Category: CategoryControl, ControlMsg: &ControlMsgEvent{Type: ControlMsgPing}},
	}
	path := createTestCapture(t, events)

	in := DirectionIn
	push := wire.FramePush
	start := base.Add(500 * time.Millisecond)
	end := base.Add(1500 * time.Millisecond)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"connection", Filter{ConnectionID: "c1"}, []string{"c1", "c1"}},
		{"channel", Filter{Channel: "deploy"}, []string{"c2"}},
		{"direction", Filter{Direction: &in}, []string{"c1", "c1"}},
		{"frame type", Filter{FrameType: &push}, []string{"c2"}},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, []string{"c2"}},
		{"combined", Filter{Channel: "build", Direction: &in, FrameType: &push}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer reader.Close()

			got := readAll(t, reader)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				if e.ConnectionID != tt.want[i] {
					t.Errorf("event %d: got %q, want %q", i, e.ConnectionID, tt.want[i])
				}
			}
		})
	}
}
