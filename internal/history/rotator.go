package history

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pders01/signally/internal/storage"
)

// MetaStore persists the time of the last rotation. storage.Store
// implements it.
type MetaStore interface {
	LastRotation() (time.Time, error)
	SetLastRotation(t time.Time) error
}

// Resetter is anything the rotator clears.
type Resetter interface {
	Reset() error
}

// RotatorConfig schedules rotation every Days days, at or after Hour.
type RotatorConfig struct {
	Days int
	Hour int
}

// Rotator deletes accumulated history on a schedule.
type Rotator struct {
	cfg     RotatorConfig
	meta    MetaStore
	targets []Resetter
	logger  zerolog.Logger

	mu     sync.Mutex
	last   time.Time
	loaded bool
}

func NewRotator(cfg RotatorConfig, meta MetaStore, logger zerolog.Logger, targets ...Resetter) *Rotator {
	if cfg.Days <= 0 {
		cfg.Days = 2
	}
	if meta == nil {
		meta = &MemoryMeta{}
	}
	return &Rotator{cfg: cfg, meta: meta, targets: targets, logger: logger}
}

// Due reports whether a rotation should run at now. Without a recorded
// rotation, any time at or after the configured hour is due.
func (r *Rotator) Due(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dueLocked(now)
}

func (r *Rotator) dueLocked(now time.Time) bool {
	r.load()
	if now.Hour() < r.cfg.Hour {
		return false
	}
	if r.last.IsZero() {
		return true
	}
	return now.Sub(r.last) >= time.Duration(r.cfg.Days)*24*time.Hour
}

func (r *Rotator) load() {
	if r.loaded {
		return
	}
	r.loaded = true
	last, err := r.meta.LastRotation()
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn().Err(err).Msg("reading last rotation")
		}
		return
	}
	r.last = last
}

// Check rotates when due and reports whether it did. A failure to persist
// the rotation time is logged; the in-memory time still advances so the
// rotation does not repeat on every check.
func (r *Rotator) Check(now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dueLocked(now) {
		return false, nil
	}

	var errs []error
	for _, t := range r.targets {
		if err := t.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	r.last = now
	if err := r.meta.SetLastRotation(now); err != nil {
		r.logger.Warn().Err(err).Msg("persisting last rotation")
	}
	r.logger.Info().Time("at", now).Int("targets", len(r.targets)).Msg("history rotated")

	if err := errors.Join(errs...); err != nil {
		return true, fmt.Errorf("rotating history: %w", err)
	}
	return true, nil
}

// MemoryMeta keeps the last rotation in memory only.
type MemoryMeta struct {
	mu   sync.Mutex
	last time.Time
}

func (m *MemoryMeta) LastRotation() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last.IsZero() {
		return time.Time{}, storage.ErrNotFound
	}
	return m.last, nil
}

func (m *MemoryMeta) SetLastRotation(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = t
	return nil
}
