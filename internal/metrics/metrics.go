package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple instances do not
// collide on the default one.
type Metrics struct {
	Registry *prometheus.Registry

	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	marketResolves  *prometheus.CounterVec
	resolveAttempts prometheus.Histogram
	resolutions     *prometheus.CounterVec
	schedulerJobs   *prometheus.CounterVec
	ingestEvents    *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	parkedJobs      prometheus.Gauge
	activeSignals   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "mfs", Name: "provider_calls_total", Help: "Provider calls by result kind"},
			[]string{"provider", "kind"},
		),
		providerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: "mfs", Name: "provider_call_seconds", Help: "Provider call latency including limiter wait", Buckets: prometheus.DefBuckets},
			[]string{"provider"},
		),
		marketResolves: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "mfs", Name: "market_resolves_total", Help: "Market-data resolutions by winning source"},
			[]string{"source", "resolution_error"},
		),
		resolveAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{Namespace: "mfs", Name: "market_resolve_attempts", Help: "Provider steps per resolution", Buckets: []float64{1, 2, 3, 4, 6, 8}},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "mfs", Name: "signal_resolutions_total", Help: "Applied signal resolutions"},
			[]string{"source", "outcome", "resolution_error"},
		),
		schedulerJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "mfs", Name: "scheduler_jobs_total", Help: "Scheduler job results"},
			[]string{"result"},
		),
		ingestEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "mfs", Name: "ingest_events_total", Help: "Chain events handled"},
			[]string{"kind", "result"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: "mfs", Name: "scheduler_queue_depth", Help: "Jobs waiting or in flight"},
		),
		parkedJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: "mfs", Name: "scheduler_parked_jobs", Help: "Jobs parked after exhausting attempts"},
		),
		activeSignals: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: "mfs", Name: "active_signals", Help: "Signals awaiting resolution"},
		),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.providerCalls,
		m.providerLatency,
		m.marketResolves,
		m.resolveAttempts,
		m.resolutions,
		m.schedulerJobs,
		m.ingestEvents,
		m.queueDepth,
		m.parkedJobs,
		m.activeSignals,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCall(provider string, kind string, took time.Duration) {
	m.providerCalls.WithLabelValues(provider, kind).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(took.Seconds())
}

func (m *Metrics) ObserveResolve(source string, resolutionError bool, attempts int) {
	m.marketResolves.WithLabelValues(source, strconv.FormatBool(resolutionError)).Inc()
	m.resolveAttempts.Observe(float64(attempts))
}

func (m *Metrics) ObserveResolution(source, outcome string, resolutionError bool) {
	m.resolutions.WithLabelValues(source, outcome, strconv.FormatBool(resolutionError)).Inc()
}

func (m *Metrics) ObserveJob(result string) {
	m.schedulerJobs.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveEvent(kind, result string) {
	m.ingestEvents.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) SetQueueDepth(n int64)    { m.queueDepth.Set(float64(n)) }
func (m *Metrics) SetParkedJobs(n int64)    { m.parkedJobs.Set(float64(n)) }
func (m *Metrics) SetActiveSignals(n int64) { m.activeSignals.Set(float64(n)) }
