package conversation

import (
	"time"

	"github.com/zhouzirui/z-practice/backend/internal/clock"
)

// ScheduledTurn is an in-flight agent reply keyed by the turn index it was scheduled for.
type ScheduledTurn struct {
	TurnIndex int           `json:"turnIndex"`
	Token     uint64        `json:"token"`
	AgentID   string        `json:"agentId"`
	Delay     time.Duration `json:"delay"`
	Fired     bool          `json:"fired"`

	timer clock.Timer
}

// Registry tracks at most one scheduled turn per turn index. It is owned by a single goroutine and
// does no locking.
type Registry struct {
	after   clock.AfterFunc
	entries map[int]*ScheduledTurn
	next    uint64
}

// NewRegistry creates an empty registry. A nil after uses the real clock.
func NewRegistry(after clock.AfterFunc) *Registry {
	if after == nil {
		after = clock.Real
	}
	return &Registry{
		after:   after,
		entries: make(map[int]*ScheduledTurn),
	}
}

// Has reports whether a schedule exists for turn, fired or not.
func (r *Registry) Has(turn int) bool {
	_, ok := r.entries[turn]
	return ok
}

// Len returns the number of outstanding schedules.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Add schedules fire for turn after delay. It refuses to add a second entry for the same turn.
// fire runs on the timer goroutine and receives the entry's identity, not the entry itself.
func (r *Registry) Add(turn int, agentID string, delay time.Duration, fire func(turn int, token uint64)) (ScheduledTurn, bool) {
	if _, exists := r.entries[turn]; exists {
		return ScheduledTurn{}, false
	}

	r.next++
	entry := &ScheduledTurn{
		TurnIndex: turn,
		Token:     r.next,
		AgentID:   agentID,
		Delay:     delay,
	}
	token := entry.Token
	entry.timer = r.after(delay, func() { fire(turn, token) })
	r.entries[turn] = entry
	return *entry, true
}

// Claim marks the entry for turn as fired. It fails when the entry was cancelled, replaced by a
// newer schedule, or already claimed.
func (r *Registry) Claim(turn int, token uint64) (ScheduledTurn, bool) {
	entry, ok := r.entries[turn]
	if !ok || entry.Token != token || entry.Fired {
		return ScheduledTurn{}, false
	}
	entry.Fired = true
	return *entry, true
}

// Release removes the entry for turn if it still carries token.
func (r *Registry) Release(turn int, token uint64) bool {
	entry, ok := r.entries[turn]
	if !ok || entry.Token != token {
		return false
	}
	delete(r.entries, turn)
	return true
}

// Cancel stops and removes the schedule for turn.
func (r *Registry) Cancel(turn int) bool {
	entry, ok := r.entries[turn]
	if !ok {
		return false
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(r.entries, turn)
	return true
}

// CancelAll stops every outstanding schedule and returns how many were removed.
func (r *Registry) CancelAll() int {
	n := len(r.entries)
	for turn := range r.entries {
		r.Cancel(turn)
	}
	return n
}
