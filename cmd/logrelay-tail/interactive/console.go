// Package interactive provides the interactive console of logrelay-tail.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/mash-protocol/logrelay/pkg/severity"
)

// ErrNotSupported is returned by sources that cannot perform a command.
var ErrNotSupported = errors.New("not supported by this source")

// Source is where the console gets events from.
type Source interface {
	// Listen subscribes to topic ("" or "*" for all channels).
	Listen(topic string) error

	// Unlisten drops a subscription.
	Unlisten(topic string) error

	// Subscriptions returns the current topics, sorted.
	Subscriptions() []string

	// Log emits an event. Read-only sources return ErrNotSupported.
	Log(sev severity.Severity, msgs ...any) error

	// Status describes the source in one line.
	Status() string
}

// Console reads commands and applies them to a Source.
type Console struct {
	src Source
	rl  *readline.Instance
	out io.Writer
}

// New creates a console reading from the terminal.
func New(src Source) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tail> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{src: src, rl: rl, out: rl.Stdout()}, nil
}

// NewWithWriter creates a console without a terminal; commands are fed
// to Execute and replies go to out.
func NewWithWriter(src Source, out io.Writer) *Console {
	return &Console{src: src, out: out}
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use it for event output so lines do not garble the input.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if c.Execute(line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether it asked to quit.
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "listen", "l", "sub":
		c.cmdListen(args)

	case "unlisten", "u", "unsub":
		c.cmdUnlisten(args)

	case "subs", "s":
		c.cmdSubs()

	case "log":
		c.cmdLog(args)

	case "status":
		fmt.Fprintln(c.out, c.src.Status())

	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Commands:
  listen [topic]           - Subscribe to a channel (default: * for all)
  unlisten [topic]         - Drop a subscription
  subs                     - List subscriptions
  log <severity> <msg...>  - Send an event (trace, debug, info, warn, error)
  status                   - Show connection status
  help                     - Show this help
  quit                     - Exit`)
}

func topicArg(args []string) string {
	if len(args) == 0 {
		return "*"
	}
	return args[0]
}

func (c *Console) cmdListen(args []string) {
	topic := topicArg(args)
	if err := c.src.Listen(topic); err != nil {
		fmt.Fprintf(c.out, "listen %s: %v\n", topic, err)
		return
	}
	fmt.Fprintf(c.out, "Listening to %s\n", topic)
}

func (c *Console) cmdUnlisten(args []string) {
	topic := topicArg(args)
	if err := c.src.Unlisten(topic); err != nil {
		fmt.Fprintf(c.out, "unlisten %s: %v\n", topic, err)
		return
	}
	fmt.Fprintf(c.out, "Stopped listening to %s\n", topic)
}

func (c *Console) cmdSubs() {
	subs := c.src.Subscriptions()
	if len(subs) == 0 {
		fmt.Fprintln(c.out, "No subscriptions")
		return
	}
	for _, topic := range subs {
		fmt.Fprintf(c.out, "  %s\n", topic)
	}
}

func (c *Console) cmdLog(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: log <severity> <message...>")
		return
	}
	sev, err := severity.Parse(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "%v\n", err)
		return
	}
	msgs := make([]any, len(args)-1)
	for i, a := range args[1:] {
		msgs[i] = a
	}
	if err := c.src.Log(sev, msgs...); err != nil {
		fmt.Fprintf(c.out, "log: %v\n", err)
	}
}
