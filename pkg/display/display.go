// Package display formats relayed log events for humans.
//
// The plain format is shared by the console and the file sink:
//
//	[24/3/1 09:05:07 build/INFO] started 3
//
// The date is YY/M/D without padding; the time is HH:MM:SS zero-padded,
// in the location of the time value given. A Renderer adds severity
// colors when writing to a terminal.
package display

import (
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/mash-protocol/logrelay/pkg/severity"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

// Timestamp renders t as "YY/M/D HH:MM:SS".
func Timestamp(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d %02d:%02d:%02d",
		t.Year()%100, int(t.Month()), t.Day(),
		t.Hour(), t.Minute(), t.Second())
}

// Prefix renders the uncolored prefix "[ts channel/TAG]", or "[ts TAG]"
// when channel is empty.
func Prefix(sev severity.Severity, channel string, t time.Time) string {
	if channel == "" {
		return "[" + Timestamp(t) + " " + sev.Tag() + "]"
	}
	return "[" + Timestamp(t) + " " + channel + "/" + sev.Tag() + "]"
}

// Line renders a full console line: prefix then the messages separated
// by spaces.
func Line(sev severity.Severity, channel string, t time.Time, msgs []wire.Value) string {
	parts := append([]string{Prefix(sev, channel, t)}, wire.Texts(msgs)...)
	return strings.Join(parts, " ")
}

// channelPalette holds the ANSI-256 colors channels are hashed onto.
var channelPalette = []lipgloss.Color{"39", "42", "170", "208", "81", "214", "141", "203"}

// ChannelColor picks a stable color for channel.
func ChannelColor(channel string) lipgloss.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(channel))
	return channelPalette[h.Sum32()%uint32(len(channelPalette))]
}

// Renderer writes colored lines.
type Renderer struct {
	out      io.Writer
	lg       *lipgloss.Renderer
	colorize bool
}

// NewRenderer creates a renderer writing to out. With colorize set,
// prefixes are rendered in true color regardless of terminal detection.
func NewRenderer(out io.Writer, colorize bool) *Renderer {
	lg := lipgloss.NewRenderer(out)
	if colorize {
		lg.SetColorProfile(termenv.TrueColor)
	} else {
		lg.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{out: out, lg: lg, colorize: colorize}
}

// Stdout creates a renderer for os.Stdout that colorizes only when stdout
// is a terminal.
func Stdout() *Renderer {
	return NewRenderer(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
}

// Colorize reports whether the renderer emits color.
func (r *Renderer) Colorize() bool {
	return r.colorize
}

// Prefix renders the prefix in the severity's color.
func (r *Renderer) Prefix(sev severity.Severity, channel string, t time.Time) string {
	text := Prefix(sev, channel, t)
	if !r.colorize {
		return text
	}
	return r.lg.NewStyle().Foreground(lipgloss.Color(sev.Color())).Render(text)
}

// Channel renders channel in its hash color.
func (r *Renderer) Channel(channel string) string {
	if !r.colorize {
		return channel
	}
	return r.lg.NewStyle().Foreground(ChannelColor(channel)).Render(channel)
}

// Line renders a colored console line.
func (r *Renderer) Line(sev severity.Severity, channel string, t time.Time, msgs []wire.Value) string {
	parts := append([]string{r.Prefix(sev, channel, t)}, wire.Texts(msgs)...)
	return strings.Join(parts, " ")
}

// Print writes one line for sev and msgs, stamped now.
func (r *Renderer) Print(sev severity.Severity, channel string, msgs []wire.Value) error {
	_, err := fmt.Fprintln(r.out, r.Line(sev, channel, time.Now(), msgs))
	return err
}

// PrintPush writes one line for a relayed event, stamped with the
// producer's timestamp in local time. An unparseable timestamp falls back
// to now.
func (r *Renderer) PrintPush(p *wire.Push) error {
	ts := p.Time()
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := fmt.Fprintln(r.out, r.Line(p.Severity, p.Channel, ts.Local(), p.Messages))
	return err
}
