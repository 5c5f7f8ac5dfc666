// Package clock abstracts timers so turn scheduling and speech debouncing can be driven manually in
// tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is the handle of a pending callback.
type Timer interface {
	Stop() bool
}

// AfterFunc arranges for f to run after d, matching time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// Real schedules f on the runtime timer wheel.
func Real(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Manual is a clock that only moves when Advance is called.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *Manual
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

// NewManual returns a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc registers f to run once the clock passes now+d.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{clock: m, at: m.now.Add(d), f: f}
	m.timers = append(m.timers, t)
	return t
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d and runs due callbacks in deadline order on the calling
// goroutine.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		due := m.nextDueLocked(target)
		if due == nil {
			break
		}
		due.fired = true
		m.now = due.at
		m.mu.Unlock()
		due.f()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

func (m *Manual) nextDueLocked(target time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool { return m.timers[i].at.Before(m.timers[j].at) })

	if len(m.timers) == 0 || m.timers[0].at.After(target) {
		return nil
	}
	return m.timers[0]
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
