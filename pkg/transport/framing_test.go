package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/logrelay/pkg/log"
)

func TestFrameWriterReader(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"single byte", []byte{0x42}},
		{"small", []byte("started")},
		{"64KB", bytes.Repeat([]byte{0xAB}, 65536)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewFrameWriter(&buf).WriteFrame(tt.data))

			raw := buf.Bytes()
			require.Len(t, raw, FrameSize(len(tt.data)))
			assert.Equal(t, uint32(len(tt.data)), binary.BigEndian.Uint32(raw[:4]))

			got, err := NewFrameReader(&buf).ReadFrame()
			require.NoError(t, err)
			assert.Equal(t, tt.data, got)
		})
	}
}

func TestFrameWriterRejects(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, NewFrameWriter(&buf).WriteFrame(nil), ErrMessageEmpty)
	assert.ErrorIs(t, NewFrameWriterWithMaxSize(&buf, 4).WriteFrame([]byte("12345")), ErrMessageTooLarge)
	assert.Zero(t, buf.Len())
}

func TestFrameReaderErrors(t *testing.T) {
	lengthOnly := func(n uint32) []byte {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, n)
		return b
	}

	tests := []struct {
		name    string
		input   []byte
		maxSize uint32
		want    error
	}{
		{"eof", nil, DefaultMaxMessageSize, io.EOF},
		{"truncated length", []byte{0x00, 0x01}, DefaultMaxMessageSize, ErrFrameTruncated},
		{"truncated payload", append(lengthOnly(10), 1, 2, 3), DefaultMaxMessageSize, ErrFrameTruncated},
		{"zero length", lengthOnly(0), DefaultMaxMessageSize, ErrMessageEmpty},
		{"too large", lengthOnly(100), 10, ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrameReaderWithMaxSize(bytes.NewReader(tt.input), tt.maxSize).ReadFrame()
			if !errors.Is(err, tt.want) {
				t.Errorf("ReadFrame() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	framer := NewFramer(&buf)

	msgs := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, m := range msgs {
		require.NoError(t, framer.WriteFrame(m))
	}
	for _, want := range msgs {
		got, err := framer.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := framer.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

type capturingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *capturingLogger) Log(event log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *capturingLogger) Events() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}

func TestFramerCapture(t *testing.T) {
	var buf bytes.Buffer
	logger := &capturingLogger{}
	framer := NewFramer(&buf)
	framer.SetLogger(logger, "conn-7")

	big := bytes.Repeat([]byte{1}, MaxLogFrameDataSize+10)
	require.NoError(t, framer.WriteFrame(big))
	_, err := framer.ReadFrame()
	require.NoError(t, err)

	events := logger.Events()
	require.Len(t, events, 2)

	out, in := events[0], events[1]
	assert.Equal(t, log.DirectionOut, out.Direction)
	assert.Equal(t, log.DirectionIn, in.Direction)
	for _, e := range events {
		assert.Equal(t, "conn-7", e.ConnectionID)
		assert.Equal(t, log.LayerTransport, e.Layer)
		require.NotNil(t, e.Frame)
		assert.Equal(t, FrameSize(len(big)), e.Frame.Size)
		assert.True(t, e.Frame.Truncated)
		assert.Len(t, e.Frame.Data, MaxLogFrameDataSize)
	}
}

func TestFramerNoLoggerNoPanic(t *testing.T) {
	var buf bytes.Buffer
	framer := NewFramer(&buf)
	framer.SetLogger(nil, "")
	require.NoError(t, framer.WriteFrame([]byte("x")))
	_, err := framer.ReadFrame()
	require.NoError(t, err)
}

func BenchmarkFrameWrite(b *testing.B) {
	data := bytes.Repeat([]byte{0xAB}, 256)
	w := NewFrameWriter(io.Discard)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = w.WriteFrame(data)
	}
}
