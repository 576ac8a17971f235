// Package metrics exposes Prometheus instrumentation for the daily pass,
// the market data cache and the notification arbiter.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry holds all watchtower metrics. A nil *Registry records nothing,
// so components can be built without instrumentation in tests.
type Registry struct {
	registry *prometheus.Registry
	log      zerolog.Logger

	// Step duration metrics
	StepDuration *prometheus.HistogramVec

	// Pipeline outcome metrics
	Passes         *prometheus.CounterVec
	PipelineErrors *prometheus.CounterVec
	DataGaps       prometheus.Counter
	LastPass       prometheus.Gauge

	// Market data cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Arbiter metrics
	Notices *prometheus.CounterVec
}

// NewRegistry creates a registry with every metric registered
func NewRegistry(log zerolog.Logger) *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		log:      log.With().Str("component", "metrics").Logger(),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watchtower_step_duration_seconds",
				Help:    "Duration of each daily pass step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"step", "result"},
		),

		Passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchtower_passes_total",
				Help: "Total number of daily passes by final status",
			},
			[]string{"status"},
		),

		PipelineErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchtower_pipeline_errors_total",
				Help: "Total number of pipeline errors by step",
			},
			[]string{"step", "error_type"},
		),

		DataGaps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "watchtower_data_gaps_total",
				Help: "Total number of tickers skipped because market data was missing",
			},
		),

		LastPass: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "watchtower_last_pass_timestamp_seconds",
				Help: "Unix time the last daily pass finished",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchtower_cache_hits_total",
				Help: "Total number of market data cache hits by data kind",
			},
			[]string{"kind"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchtower_cache_misses_total",
				Help: "Total number of market data cache misses by data kind",
			},
			[]string{"kind"},
		),

		Notices: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchtower_notices_total",
				Help: "Total number of arbitrated notices by outcome and channel",
			},
			[]string{"outcome", "channel"},
		),
	}

	r.registry.MustRegister(
		r.StepDuration,
		r.Passes,
		r.PipelineErrors,
		r.DataGaps,
		r.LastPass,
		r.CacheHits,
		r.CacheMisses,
		r.Notices,
	)

	return r
}

// StepTimer tracks execution time for pipeline steps
type StepTimer struct {
	metrics *Registry
	step    string
	start   time.Time
}

// StartStepTimer begins timing a pipeline step
func (r *Registry) StartStepTimer(step string) *StepTimer {
	return &StepTimer{metrics: r, step: step, start: time.Now()}
}

// Stop completes the step timing and records the metric
func (st *StepTimer) Stop(result string) {
	if st.metrics == nil {
		return
	}
	duration := time.Since(st.start)
	st.metrics.StepDuration.WithLabelValues(st.step, result).Observe(duration.Seconds())

	st.metrics.log.Debug().
		Str("step", st.step).
		Str("result", result).
		Dur("duration", duration).
		Msg("Pipeline step completed")
}

// RecordPass records a finished daily pass
func (r *Registry) RecordPass(status string, finished time.Time) {
	if r == nil {
		return
	}
	r.Passes.WithLabelValues(status).Inc()
	r.LastPass.Set(float64(finished.Unix()))
}

// RecordPipelineError records a pipeline error
func (r *Registry) RecordPipelineError(step, errorType string) {
	if r == nil {
		return
	}
	r.PipelineErrors.WithLabelValues(step, errorType).Inc()
}

// RecordDataGap records one skipped ticker
func (r *Registry) RecordDataGap() {
	if r == nil {
		return
	}
	r.DataGaps.Inc()
}

// RecordCacheHit records a cache hit for the data kind ("bars", "fundamentals")
func (r *Registry) RecordCacheHit(kind string) {
	if r == nil {
		return
	}
	r.CacheHits.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records a cache miss for the data kind
func (r *Registry) RecordCacheMiss(kind string) {
	if r == nil {
		return
	}
	r.CacheMisses.WithLabelValues(kind).Inc()
}

// RecordNotices adds n notices with the given outcome and channel
func (r *Registry) RecordNotices(outcome, channel string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.Notices.WithLabelValues(outcome, channel).Add(float64(n))
}

// Gatherer exposes the underlying registry for tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler for Prometheus metrics
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
