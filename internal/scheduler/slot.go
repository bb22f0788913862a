package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pders01/signally/internal/fallback"
)

// SlotKind selects what a slot renders.
type SlotKind string

const (
	// KindClock shows the date over the live time.
	KindClock SlotKind = "clock"
	// KindData shows a value from a provider, gated by its quota.
	KindData SlotKind = "data"
	// KindWeather is a data slot bound to the weather provider.
	KindWeather SlotKind = "weather"
	// KindMessage always shows a fallback message.
	KindMessage SlotKind = "message"
)

// Slot is one entry of the rotation.
type Slot struct {
	Kind       SlotKind
	Duration   time.Duration
	ProviderID string
	// Keys are sub-keys passed to the provider, one picked per entry.
	Keys []string
	// Fallback lists the categories eligible when the slot cannot show
	// data. Empty means all categories.
	Fallback []fallback.Category
}

func (s Slot) isData() bool {
	return s.Kind == KindData || s.Kind == KindWeather
}

// Label names the slot in logs.
func (s Slot) Label() string {
	if s.ProviderID != "" {
		return string(s.Kind) + ":" + s.ProviderID
	}
	return string(s.Kind)
}

var errBadSequence = errors.New("invalid slot sequence")

// Sequence builds the rotation Clock, the middle slots in order, then
// Weather. Middle slots must be data or message slots.
func Sequence(clock Slot, middle []Slot, weather Slot) ([]Slot, error) {
	if clock.Kind != KindClock {
		return nil, fmt.Errorf("%w: first slot must be %s, got %s", errBadSequence, KindClock, clock.Kind)
	}
	if weather.Kind != KindWeather {
		return nil, fmt.Errorf("%w: last slot must be %s, got %s", errBadSequence, KindWeather, weather.Kind)
	}
	slots := make([]Slot, 0, len(middle)+2)
	slots = append(slots, clock)
	for i, s := range middle {
		if s.Kind != KindData && s.Kind != KindMessage {
			return nil, fmt.Errorf("%w: slot %d has kind %s", errBadSequence, i+1, s.Kind)
		}
		slots = append(slots, s)
	}
	slots = append(slots, weather)

	for i, s := range slots {
		if s.Duration <= 0 {
			return nil, fmt.Errorf("%w: slot %d (%s) has no duration", errBadSequence, i, s.Label())
		}
		if s.isData() && s.ProviderID == "" {
			return nil, fmt.Errorf("%w: slot %d (%s) has no provider", errBadSequence, i, s.Label())
		}
	}
	return slots, nil
}

// Sequencer cycles through slots forever.
type Sequencer struct {
	mu    sync.Mutex
	slots []Slot
	next  int
	cycle int
}

func NewSequencer(slots []Slot) (*Sequencer, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: no slots", errBadSequence)
	}
	return &Sequencer{slots: append([]Slot(nil), slots...)}, nil
}

// Next returns the next slot and the number of completed cycles before it.
func (s *Sequencer) Next() (Slot, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := s.slots[s.next]
	cycle := s.cycle
	s.next++
	if s.next == len(s.slots) {
		s.next = 0
		s.cycle++
	}
	return slot, cycle
}

func (s *Sequencer) Len() int {
	return len(s.slots)
}
