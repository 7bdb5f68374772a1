package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeepAliveConfig(t *testing.T) {
	config := DefaultKeepAliveConfig()
	assert.Equal(t, DefaultPingInterval, config.PingInterval)
	assert.Equal(t, DefaultPongTimeout, config.PongTimeout)
	assert.Equal(t, DefaultMaxMissedPongs, config.MaxMissedPongs)

	// 25s * (2-1) + 20s
	assert.Equal(t, 45*time.Second, config.DetectionDelay())
}

func TestCalculateDetectionDelay(t *testing.T) {
	assert.Equal(t, 5*time.Second, CalculateDetectionDelay(time.Second, 5*time.Second, 1))
	assert.Equal(t, 7*time.Second, CalculateDetectionDelay(time.Second, 5*time.Second, 3))
	assert.Equal(t, 5*time.Second, CalculateDetectionDelay(time.Second, 5*time.Second, 0))
}

func TestKeepAliveAnsweredPingsNeverTimeOut(t *testing.T) {
	var pings atomic.Int32
	var timedOut atomic.Bool

	var ka *KeepAlive
	ka = NewKeepAlive(KeepAliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    15 * time.Millisecond,
		MaxMissedPongs: 1,
	}, func(seq uint32) error {
		pings.Add(1)
		go ka.PongReceived(seq)
		return nil
	}, func() { timedOut.Store(true) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)

	time.Sleep(150 * time.Millisecond)
	ka.Stop()

	assert.GreaterOrEqual(t, pings.Load(), int32(3))
	assert.False(t, timedOut.Load())
	assert.Zero(t, ka.Stats().MissedPongs)
}

func TestKeepAliveTimeout(t *testing.T) {
	timedOut := make(chan struct{})
	var calls atomic.Int32

	ka := NewKeepAlive(KeepAliveConfig{
		PingInterval:   20 * time.Millisecond,
		PongTimeout:    10 * time.Millisecond,
		MaxMissedPongs: 2,
	}, func(uint32) error { return nil }, func() {
		if calls.Add(1) == 1 {
			close(timedOut)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("timeout callback not called")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, ka.IsRunning())
}

func TestKeepAliveLatencyCallback(t *testing.T) {
	got := make(chan time.Duration, 1)

	var ka *KeepAlive
	ka = NewKeepAlive(KeepAliveConfig{
		PingInterval:   time.Hour,
		PongTimeout:    time.Second,
		MaxMissedPongs: 1,
	}, func(seq uint32) error {
		go func() {
			time.Sleep(5 * time.Millisecond)
			ka.PongReceived(seq)
		}()
		return nil
	}, nil)
	ka.SetPongReceivedCallback(func(_ uint32, rtt time.Duration) {
		select {
		case got <- rtt:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ka.Start(ctx)
	defer ka.Stop()

	select {
	case rtt := <-got:
		assert.GreaterOrEqual(t, rtt, 5*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("pong callback not called")
	}
	assert.Equal(t, uint32(1), ka.Stats().CurrentSeq)
}

func TestKeepAliveIgnoresUnknownPong(t *testing.T) {
	ka := NewKeepAlive(KeepAliveConfig{}, func(uint32) error { return nil }, nil)
	ka.pong(99)
	assert.Zero(t, ka.Stats().LastRTT)
	assert.False(t, ka.expire(99))
}

func TestKeepAliveStartStop(t *testing.T) {
	ka := NewKeepAlive(KeepAliveConfig{PingInterval: time.Hour}, func(uint32) error { return nil }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ka.Start(ctx)
	ka.Start(ctx)
	assert.True(t, ka.IsRunning())

	ka.Stop()
	ka.Stop()
	assert.False(t, ka.IsRunning())
}
