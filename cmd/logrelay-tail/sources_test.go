package main

import (
	"bytes"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/logrelay/cmd/logrelay-tail/interactive"
	"github.com/mash-protocol/logrelay/pkg/display"
	"github.com/mash-protocol/logrelay/pkg/mirror"
	"github.com/mash-protocol/logrelay/pkg/severity"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNATSSource(t *testing.T) {
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(5*time.Second))

	sub, err := mirror.NewNATSSubscriber(mirror.Config{URL: srv.ClientURL()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	pub, err := mirror.NewNATSPublisher(mirror.Config{URL: srv.ClientURL()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	out := &lockedBuffer{}
	src := newNATSSource(sub, display.NewRenderer(out, false), srv.ClientURL())

	require.NoError(t, src.Listen("deploy"))
	require.NoError(t, src.Listen("deploy"))
	require.NoError(t, src.Listen(""))
	assert.Equal(t, []string{"*", "deploy"}, src.Subscriptions())
	assert.Contains(t, src.Status(), srv.ClientURL())

	require.NoError(t, src.Unlisten("*"))
	assert.Equal(t, []string{"deploy"}, src.Subscriptions())

	frame, err := wire.Encode(&wire.Push{
		Channel:   "deploy",
		Severity:  severity.Warn,
		Timestamp: "2024-03-01T09:05:07.000Z",
		Messages:  wire.ValuesOf("rolling back"),
	})
	require.NoError(t, err)

	// The subscription may not be registered on the server yet.
	require.Eventually(t, func() bool {
		_ = pub.Publish("deploy", frame)
		return bytes.Contains([]byte(out.String()), []byte("rolling back"))
	}, 3*time.Second, 50*time.Millisecond)
	assert.Contains(t, out.String(), "deploy/WARN")

	t.Run("log is not supported", func(t *testing.T) {
		assert.ErrorIs(t, src.Log(severity.Info, "x"), interactive.ErrNotSupported)
	})
}
