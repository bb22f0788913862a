package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pders01/signally/internal/cache"
	"github.com/pders01/signally/internal/config"
	"github.com/pders01/signally/internal/display"
	"github.com/pders01/signally/internal/history"
	"github.com/pders01/signally/internal/logging"
	"github.com/pders01/signally/internal/metrics"
	"github.com/pders01/signally/internal/provider"
	"github.com/pders01/signally/internal/quota"
	"github.com/pders01/signally/internal/scheduler"
	"github.com/pders01/signally/internal/storage"
)

// app wires the configured components together.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	store     *storage.Store
	index     *history.Index
	recorder  *history.Recorder
	raw       display.Sink
	sink      *display.Retrying
	metrics   *metrics.Metrics
	scheduler *scheduler.Scheduler
}

func newSink(kind string, out io.Writer) (display.Sink, error) {
	switch kind {
	case "console":
		return display.NewConsole(out, false), nil
	case "plain":
		return display.NewConsole(out, true), nil
	case "memory":
		return display.NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: unknown display kind %q", config.ErrConfig, kind)
	}
}

// newApp builds the components from cfg. Storage and history are optional:
// when one of them cannot be opened the display still runs without it.
func newApp(ctx context.Context, cfg *config.Config, out io.Writer, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	registry, err := cfg.BuildRegistry(provider.NewClient(cfg.Schedule.FetchTimeout, cfg.Schedule.UserAgent))
	if err != nil {
		return nil, err
	}
	rnd := config.NewRandom()
	pool, err := cfg.BuildPool(rnd)
	if err != nil {
		return nil, err
	}
	slots, err := cfg.BuildSlots()
	if err != nil {
		return nil, err
	}

	if a.raw, err = newSink(cfg.Display.Kind, out); err != nil {
		return nil, err
	}
	a.sink = display.NewRetrying(ctx, a.raw, cfg.Display.Retries, cfg.Display.RetryBackoff,
		logging.Component(logger, "display"))
	a.sink.OnError = a.metrics.DisplayError

	if store, err := storage.NewStore(cfg.Storage.Path, cfg.Storage.Timeout); err != nil {
		logger.Warn().Err(err).Str("path", cfg.Storage.Path).Msg("state database unavailable, running without persistence")
	} else {
		a.store = store
	}

	var sinks []history.Sink
	if cfg.History.Index != "" {
		if idx, err := history.OpenIndex(cfg.History.Index, cfg.History.IndexBatch); err != nil {
			logger.Warn().Err(err).Str("path", cfg.History.Index).Msg("history index unavailable")
		} else {
			a.index = idx
			sinks = append(sinks, idx)
		}
	}
	a.recorder, err = history.NewRecorder(history.RecorderConfig{
		TextPath: cfg.History.TextLog,
		HTMLPath: cfg.History.HTMLLog,
	}, sinks...)
	if err != nil {
		logger.Warn().Err(err).Msg("history logs unavailable")
		if a.recorder, err = history.NewRecorder(history.RecorderConfig{}, sinks...); err != nil {
			return nil, err
		}
	}

	targets := []history.Resetter{a.recorder}
	if a.index != nil {
		targets = append(targets, a.index)
	}
	var meta history.MetaStore
	if a.store != nil {
		meta = a.store
	}
	rotator := history.NewRotator(history.RotatorConfig{
		Days: cfg.History.RotateDays,
		Hour: cfg.History.RotateHour,
	}, meta, logging.Component(logger, "history"), targets...)

	var intro *display.IntroConfig
	if cfg.Display.Intro.Enabled {
		intro = &display.IntroConfig{
			Line1: cfg.Display.Intro.Line1,
			Line2: cfg.Display.Intro.Line2,
			Step:  cfg.Display.Intro.Step,
			Hold:  cfg.Display.Intro.Hold,
		}
	}

	deps := scheduler.Deps{
		Registry: registry,
		Tracker:  quota.NewTracker(),
		Cache:    cache.New(cache.DefaultTTL),
		Pool:     pool,
		Sink:     a.sink,
		Slots:    slots,
		Random:   rnd,
		Recorder: a.recorder,
		Rotator:  rotator,
		Metrics:  a.metrics,
		Logger:   logging.Component(logger, "scheduler"),
	}
	if cfg.Storage.PersistState && a.store != nil {
		deps.Store = a.store
	}
	a.scheduler, err = scheduler.New(deps, scheduler.Options{
		Tick:         cfg.Schedule.Tick,
		FetchTimeout: cfg.Schedule.FetchTimeout,
		Intro:        intro,
	})
	if err != nil {
		return nil, err
	}

	if err := a.scheduler.Restore(); err != nil {
		logger.Warn().Err(err).Msg("starting with empty state")
	}
	ok = true
	return a, nil
}

// Run drives the display loop, periodic maintenance and the metrics
// endpoint until ctx ends or one of them fails.
func (a *app) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.scheduler.Run(ctx); err != nil {
			return err
		}
		// A clean stop of the loop ends the other workers too.
		return context.Canceled
	})
	g.Go(func() error {
		return a.scheduler.RunMaintenance(ctx, a.cfg.Schedule.MaintenanceInterval)
	})
	if bind := a.cfg.Metrics.Bind; bind != "" {
		g.Go(func() error {
			return a.metrics.Serve(ctx, bind, logging.Component(a.logger, "metrics"))
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *app) Close() error {
	var errs []error
	if a.recorder != nil {
		errs = append(errs, a.recorder.Close())
	}
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.sink != nil {
		errs = append(errs, a.sink.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
