package client_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/logrelay/pkg/auth"
	"github.com/mash-protocol/logrelay/pkg/client"
	"github.com/mash-protocol/logrelay/pkg/relay"
	"github.com/mash-protocol/logrelay/pkg/transport"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

func startRelay(t *testing.T, authorizer auth.Authorizer) *relay.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := relay.NewServer(relay.ServerConfig{
		Address: "127.0.0.1:0",
		Engine: relay.Config{
			Authorizer:     authorizer,
			DisableSelfLog: true,
			Logger:         logger,
		},
		Logger: logger,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func newSession(t *testing.T, srv *relay.Server, channel, token string) *client.Session {
	t.Helper()
	s := client.New(client.Config{
		Channel:          channel,
		Token:            token,
		Dialer:           client.NewTransportDialer(srv.Addr().String(), transport.ClientConfig{}),
		HandshakeTimeout: 2 * time.Second,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionOverTCP(t *testing.T) {
	srv := startRelay(t, nil)

	watcher := newSession(t, srv, "watch", "")
	pushes := make(chan *wire.Push, 4)
	watcher.OnPush(func(p *wire.Push) { pushes <- p })
	require.NoError(t, watcher.Listen("build"))
	require.NoError(t, watcher.Connect(context.Background()))
	assert.NotEmpty(t, watcher.ConnID())

	require.Eventually(t, func() bool {
		return srv.Engine().Subscribers("build") == 1
	}, 2*time.Second, 10*time.Millisecond)

	producer := newSession(t, srv, "build", "")
	require.NoError(t, producer.Connect(context.Background()))
	require.NoError(t, producer.Info("compiled", 12))

	select {
	case p := <-pushes:
		assert.Equal(t, "build", p.Channel)
		assert.Equal(t, []string{"compiled", "12"}, wire.Texts(p.Messages))
	case <-time.After(2 * time.Second):
		t.Fatal("no push received")
	}
}

func TestSessionUnauthorizedOverTCP(t *testing.T) {
	authorizer := auth.Func(func(_ context.Context, hs auth.Handshake) (bool, error) {
		return hs.Token == "letmein", nil
	})
	srv := startRelay(t, authorizer)

	denied := newSession(t, srv, "build", "wrong")
	err := denied.Connect(context.Background())
	assert.ErrorIs(t, err, client.ErrUnauthorized)

	allowed := newSession(t, srv, "build", "letmein")
	assert.NoError(t, allowed.Connect(context.Background()))
}
