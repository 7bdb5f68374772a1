package sink

import (
	"time"

	"github.com/mash-protocol/logrelay/pkg/severity"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

// DefaultPath is where the relay appends its log file.
const DefaultPath = "/var/log/logserv.log"

// Record is one log event handed to a sink.
type Record struct {
	Channel  string
	Severity severity.Severity
	Time     time.Time
	Messages []wire.Value
}

// RecordFromPush builds a Record from a relayed event. A malformed
// timestamp is replaced by the receive time.
func RecordFromPush(p *wire.Push) Record {
	ts := p.Time()
	if ts.IsZero() {
		ts = time.Now()
	}
	return Record{
		Channel:  p.Channel,
		Severity: p.Severity,
		Time:     ts,
		Messages: p.Messages,
	}
}

// Sink receives records.
type Sink interface {
	// Write persists one record. Implementations used by the relay
	// swallow their own failures.
	Write(rec Record) error

	// Close flushes and releases resources.
	Close() error
}

// Nop discards every record.
type Nop struct{}

// Write implements Sink.
func (Nop) Write(Record) error { return nil }

// Close implements Sink.
func (Nop) Close() error { return nil }

// Verify interface compliance at compile time.
var (
	_ Sink = Nop{}
	_ Sink = (*FileSink)(nil)
	_ Sink = (*Async)(nil)
)
