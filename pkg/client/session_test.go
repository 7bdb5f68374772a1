package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/logrelay/pkg/connection"
	"github.com/mash-protocol/logrelay/pkg/severity"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(d Dialer) Config {
	return Config{
		Channel:          "app",
		Token:            "secret",
		Dialer:           d,
		DisableKeepAlive: true,
		HandshakeTimeout: time.Second,
		Backoff: connection.BackoffConfig{
			Initial: 10 * time.Millisecond,
			Max:     20 * time.Millisecond,
		},
		Logger: quietLogger(),
	}
}

func connected(t *testing.T, cfg Config) (*Session, *fakeDialer) {
	t.Helper()
	d := &fakeDialer{reply: welcomeAs("conn-1")}
	cfg.Dialer = d
	s := New(cfg)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Connect(context.Background()))
	require.True(t, s.IsConnected())
	return s, d
}

func TestSessionWithoutTransport(t *testing.T) {
	s := New(Config{Channel: "app", Logger: quietLogger()})
	defer s.Close()

	assert.ErrorIs(t, s.Connect(context.Background()), ErrNoTransport)
	assert.ErrorIs(t, s.Info("hello"), ErrNoTransport)
	assert.ErrorIs(t, s.Listen("app"), ErrNoTransport)
	assert.ErrorIs(t, s.Unlisten("app"), ErrNoTransport)
	assert.ErrorIs(t, s.Sync(context.Background()), ErrNoTransport)
	assert.False(t, s.IsConnected())
}

func TestSessionHandshake(t *testing.T) {
	s, d := connected(t, testConfig(nil))

	assert.Equal(t, "conn-1", s.ConnID())
	assert.Equal(t, connection.StateConnected, s.State())

	frames := d.link(0).frames()
	require.NotEmpty(t, frames)
	hello, ok := frames[0].(*wire.Hello)
	require.True(t, ok, "first frame must be hello, got %T", frames[0])
	assert.Equal(t, "app", hello.Channel)
	assert.Equal(t, "secret", hello.Token)
}

func TestSessionRejectedStopsReconnecting(t *testing.T) {
	d := &fakeDialer{reply: func(*wire.Hello) wire.Frame {
		return &wire.Reject{Reason: wire.RejectUnauthorized}
	}}
	cfg := testConfig(d)

	var mu sync.Mutex
	var reported []error
	s := New(cfg)
	defer s.Close()
	s.OnError(func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	})

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, ErrRejected)
	assert.True(t, connection.IsPermanent(err))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, d.dials(), "rejection must not be retried")
	assert.Equal(t, connection.StateDisconnected, s.State())
	assert.True(t, d.link(0).isClosed())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], ErrUnauthorized)
}

func TestSessionInternalReject(t *testing.T) {
	d := &fakeDialer{reply: func(*wire.Hello) wire.Frame {
		return &wire.Reject{Reason: wire.RejectInternal}
	}}
	s := New(testConfig(d))
	defer s.Close()

	err := s.Connect(context.Background())
	assert.ErrorIs(t, err, ErrInternal)
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestSessionUnexpectedHandshakeReply(t *testing.T) {
	d := &fakeDialer{reply: func(*wire.Hello) wire.Frame {
		return &wire.Pong{Sequence: 1}
	}}
	s := New(testConfig(d))
	defer s.Close()

	err := s.Connect(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedFrame)
	assert.False(t, connection.IsPermanent(err))
}

func TestSessionRetriesAfterFailedConnect(t *testing.T) {
	d := &fakeDialer{reply: welcomeAs("conn-1"), failures: 2}
	s := New(testConfig(d))
	defer s.Close()

	require.Error(t, s.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Sync(ctx))
	assert.True(t, s.IsConnected())
	assert.Equal(t, 1, d.dials())
}

func TestSessionSync(t *testing.T) {
	d := &fakeDialer{reply: welcomeAs("conn-1")}
	s := New(testConfig(d))
	defer s.Close()

	ready := s.Ready()
	done := make(chan error, 1)
	go func() { done <- s.Sync(context.Background()) }()

	select {
	case <-ready:
		t.Fatal("ready before connect")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, s.Connect(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Sync did not return after connect")
	}
	<-ready

	// Already connected: Sync returns at once.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Sync(ctx))
}

func TestSessionSyncHonorsContext(t *testing.T) {
	s := New(testConfig(&fakeDialer{}))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Sync(ctx), context.DeadlineExceeded)
}

func TestSessionLog(t *testing.T) {
	s, d := connected(t, testConfig(nil))

	require.NoError(t, s.Warn("disk", "almost", "full"))
	require.NoError(t, s.Log(severity.Error, "boom"))

	logs := d.link(0).logs()
	require.Len(t, logs, 2)
	assert.Equal(t, "app", logs[0].Channel)
	assert.Equal(t, severity.Warn, logs[0].Severity)
	assert.Equal(t, []string{"disk", "almost", "full"}, wire.Texts(logs[0].Messages))
	assert.Equal(t, severity.Error, logs[1].Severity)

	_, err := wire.ParseTimestamp(logs[0].Timestamp)
	assert.NoError(t, err)
}

func TestSessionLogWhileDisconnected(t *testing.T) {
	d := &fakeDialer{reply: welcomeAs("conn-1")}
	s := New(testConfig(d))
	defer s.Close()

	assert.NoError(t, s.Info("dropped"))
	assert.Equal(t, 0, d.dials())
}

func TestSessionListenBeforeConnect(t *testing.T) {
	d := &fakeDialer{reply: welcomeAs("conn-1")}
	s := New(testConfig(d))
	defer s.Close()

	require.NoError(t, s.Listen("zeta"))
	require.NoError(t, s.Listen(""))
	require.NoError(t, s.Listen("alpha"))
	assert.Equal(t, []string{"*", "alpha", "zeta"}, s.Subscriptions())

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, []string{"*", "alpha", "zeta"}, d.link(0).subs())
}

func TestSessionListenWhileConnected(t *testing.T) {
	s, d := connected(t, testConfig(nil))

	require.NoError(t, s.Listen("db"))
	require.NoError(t, s.Unlisten("db"))
	require.NoError(t, s.Unlisten(""))

	var unsubs []string
	for _, f := range d.link(0).frames() {
		if u, ok := f.(*wire.Unsub); ok {
			unsubs = append(unsubs, u.Topic)
		}
	}
	assert.Equal(t, []string{"db"}, d.link(0).subs())
	assert.Equal(t, []string{"db", "*"}, unsubs)
	assert.Empty(t, s.Subscriptions())
}

func TestSessionResubscribesAfterReconnect(t *testing.T) {
	s, d := connected(t, testConfig(nil))

	require.NoError(t, s.Listen("db"))
	require.NoError(t, s.Listen("api"))

	var connects int
	var mu sync.Mutex
	s.manager.OnStateChange(func(_, next connection.State) {
		if next == connection.StateConnected {
			mu.Lock()
			connects++
			mu.Unlock()
		}
	})

	// Drop the link from the relay side.
	require.NoError(t, d.link(0).Close())

	require.Eventually(t, func() bool {
		l := d.link(1)
		return l != nil && len(l.subs()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"api", "db"}, d.link(1).subs())
	assert.True(t, s.IsConnected())

	mu.Lock()
	assert.Equal(t, 1, connects)
	mu.Unlock()
}

func TestSessionUnlistenDuringResubscribe(t *testing.T) {
	s, d := connected(t, testConfig(nil))

	require.NoError(t, s.Listen("a"))
	require.NoError(t, s.Listen("b"))

	var once sync.Once
	d.hookSends(func(_ *fakeLink, f wire.Frame) {
		if sub, ok := f.(*wire.Sub); ok && sub.Topic == "a" {
			once.Do(func() { require.NoError(t, s.Unlisten("b")) })
		}
	})

	require.NoError(t, d.link(0).Close())
	require.Eventually(t, func() bool {
		l := d.link(1)
		return l != nil && len(l.subs()) > 0
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"a"}, s.Subscriptions())
	assert.Equal(t, []string{"a"}, d.link(1).topicState())
	assert.NotContains(t, d.link(1).subs(), "b")
}

func TestSessionListenConvergesWithConcurrentUnlisten(t *testing.T) {
	s, d := connected(t, testConfig(nil))

	// Unlisten lands while the sub frame for the same topic is in flight.
	var once sync.Once
	d.link(0).onSend = func(_ *fakeLink, f wire.Frame) {
		if sub, ok := f.(*wire.Sub); ok && sub.Topic == "x" {
			once.Do(func() { require.NoError(t, s.Unlisten("x")) })
		}
	}

	require.NoError(t, s.Listen("x"))

	assert.Empty(t, s.Subscriptions())
	assert.Empty(t, d.link(0).topicState())
}

func TestSessionPushHandlers(t *testing.T) {
	s, d := connected(t, testConfig(nil))

	got := make(chan *wire.Push, 1)
	s.OnPush(func(p *wire.Push) { got <- p })

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d.link(0).deliver(wire.NewLog("db", severity.Info, ts, "ready").Push("db"))

	select {
	case p := <-got:
		assert.Equal(t, "db", p.Channel)
		assert.Equal(t, severity.Info, p.Severity)
		assert.Equal(t, []string{"ready"}, wire.Texts(p.Messages))
		assert.True(t, ts.Equal(p.Time()))
	case <-time.After(time.Second):
		t.Fatal("push not dispatched")
	}
}

func TestSessionAnswersPing(t *testing.T) {
	_, d := connected(t, testConfig(nil))

	d.link(0).deliver(&wire.Ping{Sequence: 7})

	require.Eventually(t, func() bool {
		for _, f := range d.link(0).frames() {
			if p, ok := f.(*wire.Pong); ok && p.Sequence == 7 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestSessionKeepAliveTimeoutReconnects(t *testing.T) {
	cfg := testConfig(nil)
	cfg.DisableKeepAlive = false
	cfg.KeepAlive.PingInterval = 10 * time.Millisecond
	cfg.KeepAlive.PongTimeout = 10 * time.Millisecond
	cfg.KeepAlive.MaxMissedPongs = 1

	_, d := connected(t, cfg)

	// The fake never answers pings.
	require.Eventually(t, func() bool {
		return d.link(0).isClosed() && d.dials() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSessionClose(t *testing.T) {
	d := &fakeDialer{reply: welcomeAs("conn-1")}
	s := New(testConfig(d))
	require.NoError(t, s.Connect(context.Background()))

	require.NoError(t, s.Close())
	assert.Equal(t, connection.StateClosed, s.State())
	assert.Empty(t, s.ConnID())

	link := d.link(0)
	assert.True(t, link.isClosed())
	frames := link.frames()
	_, isClose := frames[len(frames)-1].(*wire.Close)
	assert.True(t, isClose, "close frame sent before hanging up")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, d.dials())
}
