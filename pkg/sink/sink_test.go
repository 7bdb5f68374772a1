package sink

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/logrelay/pkg/severity"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

var t0 = time.Date(2024, 3, 1, 9, 5, 7, 0, time.UTC)

func TestYAMLSerializer(t *testing.T) {
	tests := []struct {
		name string
		in   wire.Value
		want string
	}{
		{"string", wire.StringValue("started"), "started"},
		{"int", wire.NumberValue(3), "3"},
		{"float", wire.NumberValue(0.25), "0.25"},
		{"bool", wire.BoolValue(true), "true"},
		{"null", wire.Null(), "null"},
		{"nested record", wire.ValueOf(map[string]any{
			"b": 2,
			"a": map[string]any{"c": 1},
		}), "a:\n  c: 1\nb: 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := YAMLSerializer{}.Serialize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileSinkFormat(t *testing.T) {
	s := NewFileSink(FileConfig{Path: "unused", Location: time.UTC})

	got := s.Format(Record{
		Channel:  "build",
		Severity: severity.Info,
		Time:     t0,
		Messages: wire.ValuesOf("started", 3),
	})
	assert.Equal(t, "[24/3/1 09:05:07 build/INFO] started\n3\n", got)

	got = s.Format(Record{Channel: "build", Severity: severity.Warn, Time: t0})
	assert.Equal(t, "[24/3/1 09:05:07 build/WARN] \n", got)
}

func TestFileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logserv.log")
	s := NewFileSink(FileConfig{Path: path, Location: time.UTC})

	require.NoError(t, s.Write(Record{Channel: "build", Severity: severity.Info, Time: t0, Messages: wire.ValuesOf("one")}))
	require.NoError(t, s.Write(Record{Channel: "deploy", Severity: severity.Error, Time: t0, Messages: wire.ValuesOf("two")}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"[24/3/1 09:05:07 build/INFO] one\n[24/3/1 09:05:07 deploy/ERROR] two\n",
		string(data))
	assert.Equal(t, 2, s.Written())
	assert.Zero(t, s.Failures())
}

func TestFileSinkWarnsOnce(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	path := filepath.Join(t.TempDir(), "missing", "logserv.log")
	s := NewFileSink(FileConfig{Path: path, Logger: logger})

	rec := Record{Channel: "build", Severity: severity.Info, Time: t0, Messages: wire.ValuesOf("x")}
	assert.NoError(t, s.Write(rec))
	assert.NoError(t, s.Write(rec))

	assert.Equal(t, 2, s.Failures())
	assert.Equal(t, 1, strings.Count(logs.String(), "failed to write to log file"))
}

func TestFileSinkWarnStateIsPerInstance(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	path := filepath.Join(t.TempDir(), "missing", "logserv.log")

	rec := Record{Channel: "build", Time: t0}
	_ = NewFileSink(FileConfig{Path: path, Logger: logger}).Write(rec)
	_ = NewFileSink(FileConfig{Path: path, Logger: logger}).Write(rec)

	assert.Equal(t, 2, strings.Count(logs.String(), "failed to write to log file"))
}

func TestFileSinkClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logserv.log")
	s := NewFileSink(FileConfig{Path: path})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.NoError(t, s.Write(Record{Channel: "build", Time: t0}))

	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFileSinkDefaults(t *testing.T) {
	s := NewFileSink(FileConfig{})
	assert.Equal(t, DefaultPath, s.Path())
}

func TestRecordFromPush(t *testing.T) {
	rec := RecordFromPush(&wire.Push{
		Channel:   "build",
		Severity:  severity.Warn,
		Timestamp: "2024-03-01T09:05:07.000Z",
		Messages:  wire.ValuesOf("x"),
	})
	assert.Equal(t, "build", rec.Channel)
	assert.True(t, rec.Time.Equal(t0))

	rec = RecordFromPush(&wire.Push{Channel: "build", Timestamp: "garbage"})
	assert.False(t, rec.Time.IsZero())
}

// recordingSink collects records and can be blocked.
type recordingSink struct {
	mu      sync.Mutex
	records []Record
	gate    chan struct{}
	closed  bool
}

func (r *recordingSink) Write(rec Record) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func TestAsyncDrainsOnClose(t *testing.T) {
	inner := &recordingSink{}
	a := NewAsync(inner)

	for i := 0; i < 10; i++ {
		require.NoError(t, a.Write(Record{Channel: "build", Time: t0}))
	}
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	assert.Equal(t, 10, inner.len())
	assert.True(t, inner.closed)
	assert.NoError(t, a.Write(Record{}), "writes after close are ignored")
}

func TestAsyncDropsWhenFull(t *testing.T) {
	var logs bytes.Buffer
	inner := &recordingSink{gate: make(chan struct{})}
	a := NewAsync(inner, WithBufferSize(2), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	// One record is held by the blocked drain goroutine, two fill the
	// buffer; the rest must drop without blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = a.Write(Record{Channel: "build", Time: t0})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Write blocked on a full buffer")
	}

	assert.GreaterOrEqual(t, a.Dropped(), int64(7))
	assert.Equal(t, 1, strings.Count(logs.String(), "sink buffer full"))

	close(inner.gate)
	require.NoError(t, a.Close())
	assert.Equal(t, int64(10), a.Dropped()+int64(inner.len()))
}
