package app

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTickerSchedulerRunsUntilCancelled(t *testing.T) {
	s := NewTickerScheduler(zaptest.NewLogger(t))
	defer s.Stop()

	var ticks atomic.Int32
	s.Schedule("ROOM01", 5*time.Millisecond, func() { ticks.Add(1) })
	assert.True(t, s.Active("ROOM01"))

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)
	s.Cancel("ROOM01")
	assert.False(t, s.Active("ROOM01"))

	// allow an in-flight tick to land, then expect silence
	time.Sleep(10 * time.Millisecond)
	settled := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, ticks.Load())
}

func TestTickerSchedulerReplacesTimer(t *testing.T) {
	s := NewTickerScheduler(zaptest.NewLogger(t))
	defer s.Stop()

	var first, second atomic.Int32
	s.Schedule("ROOM01", 5*time.Millisecond, func() { first.Add(1) })
	s.Schedule("ROOM01", 5*time.Millisecond, func() { second.Add(1) })

	require.Eventually(t, func() bool { return second.Load() >= 2 }, time.Second, time.Millisecond)
	assert.LessOrEqual(t, first.Load(), int32(1))
}

func TestTickerSchedulerCancelFromCallback(t *testing.T) {
	s := NewTickerScheduler(zaptest.NewLogger(t))
	defer s.Stop()

	done := make(chan struct{})
	var ticks atomic.Int32
	s.Schedule("ROOM01", 5*time.Millisecond, func() {
		if ticks.Add(1) == 1 {
			s.Cancel("ROOM01")
			close(done)
		}
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), ticks.Load())
	assert.False(t, s.Active("ROOM01"))
}

func TestTickerSchedulerStop(t *testing.T) {
	s := NewTickerScheduler(zaptest.NewLogger(t))
	s.Schedule("A", time.Hour, func() {})
	s.Schedule("B", time.Hour, func() {})

	s.Stop()
	assert.False(t, s.Active("A"))
	assert.False(t, s.Active("B"))
	s.Cancel("A")
}
