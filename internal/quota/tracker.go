// Package quota tracks per-provider call budgets.
package quota

import (
	"sync"
	"time"

	"github.com/pders01/signally/internal/provider"
)

// State is the mutable budget of one provider.
type State struct {
	CallsToday    int       `json:"calls_today"`
	LastCallAt    time.Time `json:"last_call_at"`
	WindowResetAt time.Time `json:"window_reset_at"`
}

// Called reports whether a call has ever been recorded.
func (s State) Called() bool {
	return !s.LastCallAt.IsZero()
}

// Tracker holds quota state for every tracked provider behind one lock.
// All mutations are single steps under that lock.
type Tracker struct {
	mu     sync.Mutex
	descs  map[string]provider.Descriptor
	states map[string]*State
}

func NewTracker() *Tracker {
	return &Tracker{
		descs:  make(map[string]provider.Descriptor),
		states: make(map[string]*State),
	}
}

// Track starts tracking a provider with an empty budget for the day of now.
// Tracking an already known provider only refreshes its descriptor.
func (t *Tracker) Track(desc provider.Descriptor, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.descs[desc.ID] = desc
	if _, ok := t.states[desc.ID]; !ok {
		t.states[desc.ID] = &State{WindowResetAt: now}
	}
}

// Restore replaces the state of a tracked provider, typically from storage.
func (t *Tracker) Restore(id string, s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.descs[id]; !ok {
		return
	}
	restored := s
	t.states[id] = &restored
}

// ResetIfNewDay zeroes the call count when now falls on a later calendar
// day than the last reset. It reports whether a reset happened.
func (t *Tracker) ResetIfNewDay(id string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[id]
	if !ok {
		return false
	}
	if sameDay(s.WindowResetAt, now) {
		return false
	}
	s.CallsToday = 0
	s.WindowResetAt = now
	return true
}

// CanCall reports whether a call is allowed now: inside the window, under
// the daily quota, and at least the effective interval after the last call.
func (t *Tracker) CanCall(id string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	desc, ok := t.descs[id]
	if !ok {
		return false
	}
	s := t.states[id]

	if !desc.Window.Contains(now) {
		return false
	}
	if s.CallsToday >= desc.DailyQuota {
		return false
	}
	if s.Called() && now.Sub(s.LastCallAt) < desc.EffectiveInterval() {
		return false
	}
	return true
}

// RecordCall charges one call against the budget. Failed attempts count.
// It returns the updated state.
func (t *Tracker) RecordCall(id string, now time.Time) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[id]
	if !ok {
		return State{}
	}
	s.CallsToday++
	s.LastCallAt = now
	return *s
}

// Snapshot returns a copy of a provider's state.
func (t *Tracker) Snapshot(id string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[id]
	if !ok {
		return State{}, false
	}
	return *s, true
}

// Remaining returns how many calls are left today.
func (t *Tracker) Remaining(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	desc, ok := t.descs[id]
	if !ok {
		return 0
	}
	if left := desc.DailyQuota - t.states[id].CallsToday; left > 0 {
		return left
	}
	return 0
}

func sameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
