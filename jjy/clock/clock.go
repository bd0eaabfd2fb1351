// Package clock abstracts the monotonic clock so the emission engine
// can run under simulated time in tests.
package clock

import (
	"sync"
	"time"
)

// Clock yields monotonic time since an arbitrary epoch. Only
// differences between readings are meaningful. Implementations must
// never go backward.
type Clock interface {
	Now() time.Duration
}

// System reads the Go runtime's monotonic clock.
type System struct {
	start time.Time
}

func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) Now() time.Duration {
	return time.Since(s.start)
}

// Manual is a hand-stepped clock for deterministic tests.
type Manual struct {
	mu  sync.Mutex
	now time.Duration
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d
}

// Set jumps the clock to an absolute reading. It never moves backward.
func (m *Manual) Set(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > m.now {
		m.now = d
	}
}
