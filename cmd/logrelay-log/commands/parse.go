// Package commands implements the logrelay-log CLI commands.
package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/mash-protocol/logrelay/pkg/log"
	"github.com/mash-protocol/logrelay/pkg/wire"
)

// FilterOptions holds the raw flag values shared by view, filter and
// export.
type FilterOptions struct {
	ConnID    string
	Channel   string
	Frame     string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

// BuildFilter turns flag values into a log.Filter.
func BuildFilter(opts FilterOptions) (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: opts.ConnID,
		Channel:      opts.Channel,
	}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if opts.Layer != "" {
		l, err := parseLayer(opts.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if opts.Direction != "" {
		d, err := parseDirection(opts.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if opts.Category != "" {
		c, err := parseCategory(opts.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	if opts.Frame != "" {
		ft, err := parseFrameType(opts.Frame)
		if err != nil {
			return filter, err
		}
		filter.FrameType = &ft
	}
	return filter, nil
}

func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "relay":
		return log.LayerRelay, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or relay)", s)
	}
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, control, state, or error)", s)
	}
}

func parseFrameType(s string) (wire.FrameType, error) {
	name := strings.ToLower(s)
	for t := wire.FrameHello; t <= wire.FrameClose; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("invalid frame type: %s", s)
}
