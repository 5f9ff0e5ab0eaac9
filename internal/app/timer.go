package app

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler drives per-room repeating timers. A room has at most one active
// timer; scheduling a new one cancels the previous.
type Scheduler interface {
	Schedule(roomCode string, every time.Duration, fn func())
	Cancel(roomCode string)
}

// TickerScheduler runs each room timer on its own goroutine backed by a time.Ticker.
type TickerScheduler struct {
	logger *zap.Logger

	mu     sync.Mutex
	timers map[string]*roomTimer
}

type roomTimer struct {
	stop chan struct{}
}

func NewTickerScheduler(logger *zap.Logger) *TickerScheduler {
	return &TickerScheduler{
		logger: logger,
		timers: make(map[string]*roomTimer),
	}
}

// Schedule starts calling fn every interval until cancelled or replaced.
func (s *TickerScheduler) Schedule(roomCode string, every time.Duration, fn func()) {
	t := &roomTimer{stop: make(chan struct{})}

	s.mu.Lock()
	if prev, ok := s.timers[roomCode]; ok {
		close(prev.stop)
	}
	s.timers[roomCode] = t
	s.mu.Unlock()

	go t.run(every, fn)
}

// Cancel stops the room's timer. It never waits for an in-flight callback, so
// it is safe to call from inside one.
func (s *TickerScheduler) Cancel(roomCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[roomCode]; ok {
		close(t.stop)
		delete(s.timers, roomCode)
	}
}

// Active reports whether a timer is running for the room.
func (s *TickerScheduler) Active(roomCode string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[roomCode]
	return ok
}

// Stop cancels every timer.
func (s *TickerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for code, t := range s.timers {
		close(t.stop)
		delete(s.timers, code)
	}
	s.logger.Debug("all room timers stopped")
}

func (t *roomTimer) run(every time.Duration, fn func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			// a stop racing with the tick wins
			select {
			case <-t.stop:
				return
			default:
			}
			fn()
		}
	}
}
