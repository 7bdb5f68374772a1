package main

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mash-protocol/logrelay/cmd/logrelay-tail/interactive"
	"github.com/mash-protocol/logrelay/pkg/client"
	"github.com/mash-protocol/logrelay/pkg/display"
	"github.com/mash-protocol/logrelay/pkg/mirror"
	"github.com/mash-protocol/logrelay/pkg/severity"
)

// sessionSource tails a relay through a client session.
type sessionSource struct {
	session *client.Session
	address string
}

func (s *sessionSource) Listen(topic string) error   { return s.session.Listen(topic) }
func (s *sessionSource) Unlisten(topic string) error { return s.session.Unlisten(topic) }
func (s *sessionSource) Subscriptions() []string     { return s.session.Subscriptions() }

func (s *sessionSource) Log(sev severity.Severity, msgs ...any) error {
	return s.session.Log(sev, msgs...)
}

func (s *sessionSource) Status() string {
	if s.session.IsConnected() {
		return fmt.Sprintf("connected to %s as %s (conn %s)", s.address, s.session.Channel(), s.session.ConnID())
	}
	return fmt.Sprintf("%s: %s", s.address, s.session.State())
}

// natsSource tails the NATS mirror. It never talks to the relay.
type natsSource struct {
	sub     *mirror.NATSSubscriber
	console *display.Renderer
	url     string

	mu     sync.Mutex
	active map[string]func()
}

func newNATSSource(sub *mirror.NATSSubscriber, console *display.Renderer, url string) *natsSource {
	return &natsSource{
		sub:     sub,
		console: console,
		url:     url,
		active:  make(map[string]func()),
	}
}

func (n *natsSource) Listen(topic string) error {
	if topic == "" {
		topic = "*"
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.active[topic]; ok {
		return nil
	}

	pushes, cancel, err := n.sub.Subscribe(topic)
	if err != nil {
		return err
	}
	n.active[topic] = cancel

	go func() {
		for p := range pushes {
			_ = n.console.PrintPush(p)
		}
	}()
	return nil
}

func (n *natsSource) Unlisten(topic string) error {
	if topic == "" {
		topic = "*"
	}
	n.mu.Lock()
	cancel, ok := n.active[topic]
	delete(n.active, topic)
	n.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

func (n *natsSource) Subscriptions() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.active))
	for topic := range n.active {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

func (n *natsSource) Log(severity.Severity, ...any) error {
	return interactive.ErrNotSupported
}

func (n *natsSource) Status() string {
	return "mirroring " + n.url
}

var (
	_ interactive.Source = (*sessionSource)(nil)
	_ interactive.Source = (*natsSource)(nil)
)
