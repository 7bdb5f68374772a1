package client

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mash-protocol/logrelay/pkg/transport"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

var errTimeout = errors.New("receive timeout")

// fakeLink is an in-memory Link. Frames written with Send are decoded
// and recorded; frames queued with deliver are returned by Receive.
type fakeLink struct {
	reply func(*wire.Hello) wire.Frame

	// onSend runs before a frame is recorded, on the sending goroutine.
	onSend func(*fakeLink, wire.Frame)

	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	sent []wire.Frame
}

func newFakeLink(reply func(*wire.Hello) wire.Frame) *fakeLink {
	return &fakeLink{
		reply:  reply,
		in:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (l *fakeLink) Send(data []byte) error {
	select {
	case <-l.closed:
		return transport.ErrConnectionClosed
	default:
	}

	f, err := wire.Decode(data)
	if err != nil {
		return err
	}
	if l.onSend != nil {
		l.onSend(l, f)
	}
	l.mu.Lock()
	l.sent = append(l.sent, f)
	l.mu.Unlock()

	if hello, ok := f.(*wire.Hello); ok && l.reply != nil {
		l.deliver(l.reply(hello))
	}
	return nil
}

func (l *fakeLink) Receive(timeout time.Duration) ([]byte, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case data := <-l.in:
		return data, nil
	case <-l.closed:
		return nil, transport.ErrConnectionClosed
	case <-expired:
		return nil, errTimeout
	}
}

func (l *fakeLink) SendPing(seq uint32) error {
	data, err := wire.Encode(&wire.Ping{Sequence: seq})
	if err != nil {
		return err
	}
	return l.Send(data)
}

func (l *fakeLink) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeLink) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

func (l *fakeLink) deliver(f wire.Frame) {
	data, err := wire.Encode(f)
	if err != nil {
		panic(err)
	}
	l.in <- data
}

func (l *fakeLink) frames() []wire.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]wire.Frame(nil), l.sent...)
}

// subs returns the topics of every sub frame sent, in order.
func (l *fakeLink) subs() []string {
	var out []string
	for _, f := range l.frames() {
		if s, ok := f.(*wire.Sub); ok {
			out = append(out, s.Topic)
		}
	}
	return out
}

// topicState replays sub and unsub frames and returns the topics the
// relay would hold for this link, sorted.
func (l *fakeLink) topicState() []string {
	held := make(map[string]bool)
	for _, f := range l.frames() {
		switch fr := f.(type) {
		case *wire.Sub:
			held[fr.Topic] = true
		case *wire.Unsub:
			delete(held, fr.Topic)
		}
	}
	out := make([]string, 0, len(held))
	for topic := range held {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

func (l *fakeLink) logs() []*wire.Log {
	var out []*wire.Log
	for _, f := range l.frames() {
		if lg, ok := f.(*wire.Log); ok {
			out = append(out, lg)
		}
	}
	return out
}

// fakeDialer hands out fakeLinks. failures makes the next n dials fail.
type fakeDialer struct {
	reply func(*wire.Hello) wire.Frame

	mu       sync.Mutex
	links    []*fakeLink
	failures int
	onSend   func(*fakeLink, wire.Frame)
}

func welcomeAs(id string) func(*wire.Hello) wire.Frame {
	return func(*wire.Hello) wire.Frame { return &wire.Welcome{ConnID: id} }
}

func (d *fakeDialer) Dial(ctx context.Context) (Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("connection refused")
	}
	link := newFakeLink(d.reply)
	link.onSend = d.onSend
	d.links = append(d.links, link)
	return link, nil
}

// hookSends installs fn on every link dialed from now on.
func (d *fakeDialer) hookSends(fn func(*fakeLink, wire.Frame)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSend = fn
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.links)
}

func (d *fakeDialer) link(i int) *fakeLink {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.links) {
		return nil
	}
	return d.links[i]
}
