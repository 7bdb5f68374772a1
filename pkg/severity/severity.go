// Package severity defines the closed set of log severities carried by
// relayed events.
//
// Severities are ordered by increasing urgency and travel on the wire as
// their integer ordinal. They drive display policy only: nothing in the
// relay filters or rejects an event because of its severity, and values
// outside the known range are displayed as INFO.
package severity

import (
	"errors"
	"fmt"
	"strings"
)

// Severity is the urgency of a log event.
type Severity int

const (
	// Trace is the most verbose level.
	Trace Severity = iota
	// Debug is diagnostic output.
	Debug
	// Info is normal operational output.
	Info
	// Warn marks unexpected but recoverable conditions.
	Warn
	// Error marks failures.
	Error
)

// Default display values used for unknown severities.
const (
	DefaultTag   = "INFO"
	DefaultColor = "#FFFFFF"
)

// ErrUnknownSeverity is returned by Parse for unrecognized names.
var ErrUnknownSeverity = errors.New("unknown severity")

var tags = [...]string{
	Trace: "TRACE",
	Debug: "DEBUG",
	Info:  "INFO",
	Warn:  "WARN",
	Error: "ERROR",
}

var colors = [...]string{
	Trace: "#6A04E8",
	Debug: "#6A04E8",
	Info:  "#FFFFFF",
	Warn:  "#FFD000",
	Error: "#FF0000",
}

// All returns every known severity in ascending order.
func All() []Severity {
	return []Severity{Trace, Debug, Info, Warn, Error}
}

// IsValid returns true if s is one of the known severities.
func (s Severity) IsValid() bool {
	return s >= Trace && s <= Error
}

// Tag returns the display tag. Unknown severities map to "INFO".
func (s Severity) Tag() string {
	if !s.IsValid() {
		return DefaultTag
	}
	return tags[s]
}

// Color returns the display color as a hex string.
// Unknown severities map to white.
func (s Severity) Color() string {
	if !s.IsValid() {
		return DefaultColor
	}
	return colors[s]
}

// String returns the display tag.
func (s Severity) String() string {
	return s.Tag()
}

// Parse converts a tag name (case-insensitive) to a Severity.
func Parse(name string) (Severity, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, tag := range tags {
		if tag == upper {
			return Severity(i), nil
		}
	}
	if upper == "WARNING" {
		return Warn, nil
	}
	return Info, fmt.Errorf("%w: %q", ErrUnknownSeverity, name)
}
