// Package metrics exposes scheduler counters over Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "signally"

// Fetch results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Reasons a fallback was rendered.
const (
	ReasonFetchError = "fetch_error"
	ReasonGated      = "gated"
	ReasonScheduled  = "scheduled"
)

// Metrics holds the collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	providerCalls   *prometheus.CounterVec
	fallbackRenders *prometheus.CounterVec
	slotRenders     *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	quotaRemaining  *prometheus.GaugeVec
	displayErrors   prometheus.Counter
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Provider fetches by outcome.",
		}, []string{"provider", "result"}),
		fallbackRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_renders_total",
			Help:      "Slots rendered from the fallback pool.",
		}, []string{"reason"}),
		slotRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_renders_total",
			Help:      "Slots rendered by kind.",
		}, []string{"kind"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Data slots served from cache.",
		}, []string{"provider"}),
		quotaRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_remaining",
			Help:      "Calls left today per provider.",
		}, []string{"provider"}),
		displayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "display_errors_total",
			Help:      "Failed display operations, retries included.",
		}),
	}

	m.registry.MustRegister(
		m.providerCalls,
		m.fallbackRenders,
		m.slotRenders,
		m.cacheHits,
		m.quotaRemaining,
		m.displayErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ProviderCall(provider string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.providerCalls.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) FallbackRender(reason string) {
	if m == nil {
		return
	}
	m.fallbackRenders.WithLabelValues(reason).Inc()
}

func (m *Metrics) SlotRender(kind string) {
	if m == nil {
		return
	}
	m.slotRenders.WithLabelValues(kind).Inc()
}

func (m *Metrics) CacheHit(provider string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(provider).Inc()
}

func (m *Metrics) QuotaRemaining(provider string, remaining int) {
	if m == nil {
		return
	}
	m.quotaRemaining.WithLabelValues(provider).Set(float64(remaining))
}

func (m *Metrics) DisplayError(error) {
	if m == nil {
		return
	}
	m.displayErrors.Inc()
}

// Handler exposes the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve listens on bind until ctx is done.
func (m *Metrics) Serve(ctx context.Context, bind string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              bind,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("bind", bind).Msg("metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
