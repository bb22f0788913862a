// Package scheduler runs the display rotation: it walks the slot sequence,
// decides per data slot whether to call a provider, serve the cache or
// show a fallback message, and renders each slot once per tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/pders01/signally/internal/cache"
	"github.com/pders01/signally/internal/display"
	"github.com/pders01/signally/internal/fallback"
	"github.com/pders01/signally/internal/history"
	"github.com/pders01/signally/internal/metrics"
	"github.com/pders01/signally/internal/provider"
	"github.com/pders01/signally/internal/quota"
)

const (
	DefaultTick = time.Second

	dateLayout = "Jan 2, 2006"
	timeLayout = "03:04:05 PM"
)

// Source says where the content of a data slot came from.
type Source string

const (
	SourceFetched  Source = "fetched"
	SourceCached   Source = "cached"
	SourceFallback Source = "fallback"
	SourceStatic   Source = "static"
)

// StateStore persists quota and cache state. storage.Store implements it.
type StateStore interface {
	SaveQuota(providerID string, state quota.State) error
	AllQuotas() (map[string]quota.State, error)
	SaveCacheEntry(e cache.Entry) error
	CacheEntries() ([]cache.Entry, error)
	PruneCache(now time.Time) (int, error)
}

// Recorder receives a record for every rendered tick. A recorder that also
// implements Flusher is flushed at the end of every slot.
type Recorder interface {
	Append(rec history.Record) error
}

// Flusher writes buffered records out. history.Recorder implements it.
type Flusher interface {
	Flush() error
}

// Maintainer runs periodic history rotation. history.Rotator implements it.
type Maintainer interface {
	Check(now time.Time) (bool, error)
}

// Deps are the collaborators of the loop. Registry, Tracker, Cache, Pool,
// Sink and Slots are required.
type Deps struct {
	Registry *provider.Registry
	Tracker  *quota.Tracker
	Cache    *cache.Cache
	Pool     *fallback.Pool
	Sink     display.Sink
	Slots    []Slot

	Clock    Clock
	Random   fallback.Random
	Recorder Recorder
	Rotator  Maintainer
	Store    StateStore
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Options tune the loop.
type Options struct {
	Tick         time.Duration
	FetchTimeout time.Duration
	Intro        *display.IntroConfig
}

// Scheduler owns the rotation state. It has no package-level state.
type Scheduler struct {
	registry *provider.Registry
	tracker  *quota.Tracker
	cache    *cache.Cache
	pool     *fallback.Pool
	sink     display.Sink
	seq      *Sequencer

	clock    Clock
	rnd      fallback.Random
	recorder Recorder
	rotator  Maintainer
	store    StateStore
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	tick         time.Duration
	fetchTimeout time.Duration
	intro        *display.IntroConfig
}

// New validates deps and registers every provider with the tracker and
// cache.
func New(deps Deps, opts Options) (*Scheduler, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("scheduler: registry is required")
	case deps.Tracker == nil:
		return nil, errors.New("scheduler: quota tracker is required")
	case deps.Cache == nil:
		return nil, errors.New("scheduler: cache is required")
	case deps.Pool == nil:
		return nil, errors.New("scheduler: fallback pool is required")
	case deps.Sink == nil:
		return nil, errors.New("scheduler: display sink is required")
	}

	seq, err := NewSequencer(deps.Slots)
	if err != nil {
		return nil, err
	}
	for _, slot := range deps.Slots {
		if slot.isData() && deps.Registry.Get(slot.ProviderID) == nil {
			return nil, fmt.Errorf("scheduler: slot %s references unknown provider", slot.Label())
		}
	}

	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.FetchTimeout <= 0 || opts.FetchTimeout > opts.Tick {
		opts.FetchTimeout = opts.Tick
	}

	s := &Scheduler{
		registry:     deps.Registry,
		tracker:      deps.Tracker,
		cache:        deps.Cache,
		pool:         deps.Pool,
		sink:         deps.Sink,
		seq:          seq,
		clock:        deps.Clock,
		rnd:          deps.Random,
		recorder:     deps.Recorder,
		rotator:      deps.Rotator,
		store:        deps.Store,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		tick:         opts.Tick,
		fetchTimeout: opts.FetchTimeout,
		intro:        opts.Intro,
	}
	if s.clock == nil {
		s.clock = RealClock{}
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	now := s.clock.Now()
	for _, desc := range s.registry.Descriptors() {
		s.tracker.Track(desc, now)
		s.cache.SetTTL(desc.ID, desc.CacheTTL)
	}
	return s, nil
}

// Restore loads quota and cache state from the store. Stale cache entries
// are skipped. Read errors are returned; the caller decides whether they
// are fatal.
func (s *Scheduler) Restore() error {
	if s.store == nil {
		return nil
	}
	now := s.clock.Now()

	quotas, err := s.store.AllQuotas()
	if err != nil {
		return fmt.Errorf("loading quota state: %w", err)
	}
	for id, st := range quotas {
		if s.registry.Get(id) == nil {
			continue
		}
		s.tracker.Restore(id, st)
		s.tracker.ResetIfNewDay(id, now)
	}

	entries, err := s.store.CacheEntries()
	if err != nil {
		return fmt.Errorf("loading cache: %w", err)
	}
	loaded := 0
	for _, e := range entries {
		if s.registry.Get(cache.ProviderOf(e.Key)) == nil {
			continue
		}
		s.cache.Load(e)
		if _, ok := s.cache.Get(e.Key, now); ok {
			loaded++
		}
	}
	s.logger.Info().Int("quotas", len(quotas)).Int("cache_entries", loaded).Msg("state restored")
	return nil
}

// Run plays the intro, if any, then renders slots until ctx ends. It
// returns nil on cancellation and an error wrapping display.ErrDisplay
// when the display fails beyond its retries.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Int("slots", s.seq.Len()).Dur("tick", s.tick).Msg("display loop started")

	if s.intro != nil {
		if err := display.Intro(ctx, s.sink, s.clock.Sleep, *s.intro); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return asDisplayError(err)
		}
	}

	for {
		slot, cycle := s.seq.Next()
		if err := s.RunSlot(ctx, slot); err != nil {
			if ctx.Err() != nil {
				s.logger.Info().Int("cycles", cycle).Msg("display loop stopped")
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// RunSlot decides the content of one slot and renders it for the slot's
// duration.
func (s *Scheduler) RunSlot(ctx context.Context, slot Slot) error {
	content, src, err := s.content(ctx, slot)
	if err != nil {
		return err
	}
	s.metrics.SlotRender(string(slot.Kind))
	s.logger.Debug().Str("slot", slot.Label()).Str("source", string(src)).Msg("rendering slot")
	return s.renderFor(ctx, slot, content)
}

func (s *Scheduler) content(ctx context.Context, slot Slot) (func(time.Time) display.Frame, Source, error) {
	switch slot.Kind {
	case KindClock:
		return clockFrame, SourceStatic, nil
	case KindMessage:
		s.metrics.FallbackRender(metrics.ReasonScheduled)
		return s.fallbackFrame(slot), SourceFallback, nil
	case KindData, KindWeather:
		return s.decide(ctx, slot)
	default:
		return nil, "", fmt.Errorf("unknown slot kind %q", slot.Kind)
	}
}

// decide runs the data slot state machine: reset the day, then fetch if the
// gate allows, else serve a fresh cache entry, else a fallback message. A
// gated slot never calls the provider.
func (s *Scheduler) decide(ctx context.Context, slot Slot) (func(time.Time) display.Frame, Source, error) {
	id := slot.ProviderID
	now := s.clock.Now()
	log := s.logger.With().Str("provider", id).Logger()

	if s.tracker.ResetIfNewDay(id, now) {
		log.Info().Msg("daily quota reset")
	}

	key := s.pickKey(slot)
	cacheKey := cache.Key(id, key)

	if s.tracker.CanCall(id, now) {
		p := s.registry.Get(id)

		fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		value, err := p.Fetch(fetchCtx, key)
		cancel()
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}

		state := s.tracker.RecordCall(id, now)
		s.persistQuota(id, state)
		s.metrics.ProviderCall(id, err)
		s.metrics.QuotaRemaining(id, s.tracker.Remaining(id))

		if err == nil {
			entry := s.cache.Put(cacheKey, value, now)
			s.persistCache(entry)
			log.Debug().Str("key", key).Int("calls_today", state.CallsToday).Msg("fetched")
			return valueFrame(value), SourceFetched, nil
		}

		log.Warn().Err(err).Str("kind", string(provider.KindOf(err))).
			Int("calls_today", state.CallsToday).Msg("fetch failed, showing fallback")
		s.metrics.FallbackRender(metrics.ReasonFetchError)
		return s.fallbackFrame(slot), SourceFallback, nil
	}

	if value, ok := s.cache.Get(cacheKey, now); ok {
		s.metrics.CacheHit(id)
		return valueFrame(value), SourceCached, nil
	}
	if e, ok := s.cache.Freshest(id, now); ok {
		s.metrics.CacheHit(id)
		return valueFrame(e.Value), SourceCached, nil
	}

	s.metrics.FallbackRender(metrics.ReasonGated)
	return s.fallbackFrame(slot), SourceFallback, nil
}

func (s *Scheduler) pickKey(slot Slot) string {
	switch len(slot.Keys) {
	case 0:
		return ""
	case 1:
		return slot.Keys[0]
	default:
		return slot.Keys[s.rnd.IntN(len(slot.Keys))]
	}
}

// fallbackFrame picks one message for the whole slot. Two-line entries
// fill both lines; single-line entries share the display with the time.
func (s *Scheduler) fallbackFrame(slot Slot) func(time.Time) display.Frame {
	msg, err := s.pool.PickAny(slot.Fallback...)
	if err != nil {
		msg, err = s.pool.PickAny()
	}
	if err != nil {
		s.logger.Error().Err(err).Str("slot", slot.Label()).Msg("no fallback message available")
		msg = fallback.Content{Line1: slot.Label()}
	}
	if msg.TwoLine() {
		return func(time.Time) display.Frame {
			return display.Frame{Line1: msg.Line1, Line2: msg.Line2}
		}
	}
	return valueFrame(msg.Line1)
}

func valueFrame(value string) func(time.Time) display.Frame {
	return func(now time.Time) display.Frame {
		return display.Frame{Line1: value, Line2: now.Format(timeLayout)}
	}
}

func clockFrame(now time.Time) display.Frame {
	return display.Frame{Line1: now.Format(dateLayout), Line2: now.Format(timeLayout)}
}

// renderFor shows content once per tick for the slot's duration, logging
// every frame, and stops early when ctx ends. The history is flushed when
// the slot ends, however it ends.
func (s *Scheduler) renderFor(ctx context.Context, slot Slot, content func(time.Time) display.Frame) error {
	ticks := int(slot.Duration / s.tick)
	if ticks < 1 {
		ticks = 1
	}
	defer s.flushHistory()

	for i := 0; i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := s.clock.Now()
		frame := content(now)

		if err := display.Show(s.sink, frame); err != nil {
			s.metrics.DisplayError(err)
			return asDisplayError(err)
		}
		if s.recorder != nil {
			if err := s.recorder.Append(history.NewRecord(now, frame.Line1, frame.Line2)); err != nil {
				s.logger.Warn().Err(err).Msg("appending history record")
			}
		}
		if err := s.clock.Sleep(ctx, s.tick); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) flushHistory() {
	f, ok := s.recorder.(Flusher)
	if !ok {
		return
	}
	if err := f.Flush(); err != nil {
		s.logger.Warn().Err(err).Msg("flushing history")
	}
}

func asDisplayError(err error) error {
	if errors.Is(err, display.ErrDisplay) {
		return err
	}
	return fmt.Errorf("%w: %v", display.ErrDisplay, err)
}

func (s *Scheduler) persistQuota(id string, state quota.State) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveQuota(id, state); err != nil {
		s.logger.Warn().Err(err).Str("provider", id).Msg("persisting quota state")
	}
}

func (s *Scheduler) persistCache(e cache.Entry) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveCacheEntry(e); err != nil {
		s.logger.Warn().Err(err).Str("key", e.Key).Msg("persisting cache entry")
	}
}

// Maintain runs one maintenance pass: history rotation, pruning of stale
// persisted cache entries and quota gauges. Errors are logged.
func (s *Scheduler) Maintain(now time.Time) {
	if s.rotator != nil {
		if _, err := s.rotator.Check(now); err != nil {
			s.logger.Warn().Err(err).Msg("history rotation")
		}
	}
	if s.store != nil {
		if n, err := s.store.PruneCache(now); err != nil {
			s.logger.Warn().Err(err).Msg("pruning persisted cache")
		} else if n > 0 {
			s.logger.Debug().Int("removed", n).Msg("pruned persisted cache")
		}
	}
	for _, desc := range s.registry.Descriptors() {
		s.tracker.ResetIfNewDay(desc.ID, now)
		s.metrics.QuotaRemaining(desc.ID, s.tracker.Remaining(desc.ID))
	}
}

// RunMaintenance calls Maintain every interval until ctx ends.
func (s *Scheduler) RunMaintenance(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		s.Maintain(s.clock.Now())
		if err := s.clock.Sleep(ctx, interval); err != nil {
			return nil
		}
	}
}
