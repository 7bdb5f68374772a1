package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/mash-protocol/logrelay/pkg/log"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Frames            map[wire.FrameType]int
	Channels          map[string]int
	Connections       map[string]*ConnectionStats
	Errors            int
	Start, End        time.Time
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Channel   string
}

// Collect reads every event in path.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Frames:            make(map[wire.FrameType]int),
		Channels:          make(map[string]int),
		Connections:       make(map[string]*ConnectionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
}

func (s *Stats) add(e log.Event) {
	s.TotalEvents++
	s.EventsByLayer[e.Layer]++
	s.EventsByCategory[e.Category]++
	s.EventsByDirection[e.Direction]++

	if e.Error != nil {
		s.Errors++
	}
	if e.Message != nil {
		s.Frames[e.Message.Type]++
		if e.Message.Type == wire.FramePush && e.Message.Channel != "" {
			s.Channels[e.Message.Channel]++
		}
	}

	if s.Start.IsZero() || e.Timestamp.Before(s.Start) {
		s.Start = e.Timestamp
	}
	if e.Timestamp.After(s.End) {
		s.End = e.Timestamp
	}

	if e.ConnectionID == "" {
		return
	}
	cs, ok := s.Connections[e.ConnectionID]
	if !ok {
		cs = &ConnectionStats{FirstSeen: e.Timestamp}
		s.Connections[e.ConnectionID] = cs
	}
	cs.Events++
	cs.LastSeen = e.Timestamp
	if e.Channel != "" {
		cs.Channel = e.Channel
	}
}

// RunStats analyzes the capture file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Events:      %d\n", stats.TotalEvents)
	if stats.TotalEvents == 0 {
		return nil
	}
	fmt.Fprintf(w, "Time range:  %s - %s (%s)\n",
		stats.Start.UTC().Format(time.RFC3339), stats.End.UTC().Format(time.RFC3339),
		stats.End.Sub(stats.Start).Round(time.Millisecond))
	fmt.Fprintf(w, "Errors:      %d\n", stats.Errors)
	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))

	fmt.Fprintln(w, "\nBy layer:")
	for _, l := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerRelay} {
		if n := stats.EventsByLayer[l]; n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", l, n)
		}
	}

	fmt.Fprintln(w, "\nBy category:")
	for _, c := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError} {
		if n := stats.EventsByCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-10s %d\n", c, n)
		}
	}

	if len(stats.Frames) > 0 {
		fmt.Fprintln(w, "\nFrames:")
		for t := wire.FrameHello; t <= wire.FrameClose; t++ {
			if n := stats.Frames[t]; n > 0 {
				fmt.Fprintf(w, "  %-10s %d\n", t, n)
			}
		}
	}

	if len(stats.Channels) > 0 {
		fmt.Fprintln(w, "\nPushes by channel:")
		channels := make([]string, 0, len(stats.Channels))
		for ch := range stats.Channels {
			channels = append(channels, ch)
		}
		sort.Strings(channels)
		for _, ch := range channels {
			fmt.Fprintf(w, "  %-20s %d\n", ch, stats.Channels[ch])
		}
	}

	fmt.Fprintln(w, "\nConnections:")
	ids := make([]string, 0, len(stats.Connections))
	for id := range stats.Connections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return stats.Connections[ids[i]].FirstSeen.Before(stats.Connections[ids[j]].FirstSeen)
	})
	for _, id := range ids {
		cs := stats.Connections[id]
		fmt.Fprintf(w, "  %s %-16s %5d events  %s\n", shortenConnID(id), cs.Channel, cs.Events,
			cs.LastSeen.Sub(cs.FirstSeen).Round(time.Millisecond))
	}
	return nil
}
