package connection

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Run("DefaultSequence", func(t *testing.T) {
		b := NewBackoff()

		expected := append(BackoffSequence(), MaxBackoff)
		for i, exp := range expected {
			base := b.Current()
			_ = b.Next()
			if base != exp {
				t.Errorf("attempt %d: base = %v, want %v", i, base, exp)
			}
		}
		if b.Attempts() != len(expected) {
			t.Errorf("Attempts() = %d, want %d", b.Attempts(), len(expected))
		}
	})

	t.Run("JitterWithinBounds", func(t *testing.T) {
		b := NewBackoff()
		upper := time.Duration(float64(InitialBackoff) * (1 + JitterFactor))
		for i := 0; i < 50; i++ {
			if d := b.Peek(); d < InitialBackoff || d > upper {
				t.Fatalf("sample %d: %v outside [%v, %v]", i, d, InitialBackoff, upper)
			}
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff()
		b.Next()
		b.Next()
		b.Reset()
		if b.Current() != InitialBackoff || b.Attempts() != 0 {
			t.Errorf("after Reset: current=%v attempts=%d", b.Current(), b.Attempts())
		}
	})

	t.Run("CustomConfig", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial:    10 * time.Millisecond,
			Max:        25 * time.Millisecond,
			Multiplier: 2,
			Jitter:     0,
		})
		got := []time.Duration{b.Next(), b.Next(), b.Next()}
		want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("delay %d = %v, want %v", i, got[i], want[i])
			}
		}
	})

	t.Run("InvalidConfigFallsBack", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Multiplier: 0.5, Jitter: -1})
		if b.Current() != InitialBackoff {
			t.Errorf("Current() = %v, want %v", b.Current(), InitialBackoff)
		}
		if d := b.Next(); d != InitialBackoff {
			t.Errorf("negative jitter must be clamped to 0, got %v", d)
		}
		if b.Current() != 2*InitialBackoff {
			t.Errorf("multiplier must fall back to default, got %v", b.Current())
		}
	})
}
