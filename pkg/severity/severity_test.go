package severity_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mash-protocol/logrelay/pkg/severity"
)

func TestSeverityOrder(t *testing.T) {
	all := severity.All()
	for i := 1; i < len(all); i++ {
		if all[i-1] >= all[i] {
			t.Errorf("%s should be lower than %s", all[i-1], all[i])
		}
	}
	assert.Equal(t, severity.Severity(0), severity.Trace)
	assert.Equal(t, severity.Severity(4), severity.Error)
}

func TestSeverityTagAndColor(t *testing.T) {
	tests := []struct {
		sev   severity.Severity
		tag   string
		color string
	}{
		{severity.Trace, "TRACE", "#6A04E8"},
		{severity.Debug, "DEBUG", "#6A04E8"},
		{severity.Info, "INFO", "#FFFFFF"},
		{severity.Warn, "WARN", "#FFD000"},
		{severity.Error, "ERROR", "#FF0000"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.tag, tt.sev.Tag())
			assert.Equal(t, tt.tag, tt.sev.String())
			assert.Equal(t, tt.color, tt.sev.Color())
			assert.True(t, tt.sev.IsValid())
		})
	}
}

func TestSeverityUnknownFallsBackToInfo(t *testing.T) {
	for _, s := range []severity.Severity{-1, 5, 42} {
		assert.False(t, s.IsValid())
		assert.Equal(t, "INFO", s.Tag())
		assert.Equal(t, "#FFFFFF", s.Color())
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want severity.Severity
	}{
		{"trace", severity.Trace},
		{"DEBUG", severity.Debug},
		{" Info ", severity.Info},
		{"warn", severity.Warn},
		{"warning", severity.Warn},
		{"error", severity.Error},
	}
	for _, tt := range tests {
		got, err := severity.Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	_, err := severity.Parse("fatal")
	if !errors.Is(err, severity.ErrUnknownSeverity) {
		t.Errorf("Parse(fatal) error = %v, want ErrUnknownSeverity", err)
	}
}
