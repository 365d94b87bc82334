// Package metrics exposes prometheus collectors for the API and the
// settlement pipeline on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tripsplit"

type Metrics struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec

	reportBuilds   prometheus.Counter
	reportDuration prometheus.Histogram
	reportCache    *prometheus.CounterVec
	reportEdges    prometheus.Gauge
	ledgerWrites   *prometheus.CounterVec
	publishErrors  prometheus.Counter
	exports        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		reportBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_builds_total",
			Help:      "Settlement reports computed from a ledger snapshot.",
		}),
		reportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_build_duration_seconds",
			Help:      "Time spent computing a settlement report.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}),
		reportCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_lookups_total",
			Help:      "Report cache lookups by result.",
		}, []string{"result"}),
		reportEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_edges",
			Help:      "Settlement edges in the most recent report.",
		}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_writes_total",
			Help:      "Accepted ledger writes by kind.",
		}, []string{"kind"}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Ledger events that could not be published.",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_exports_total",
			Help:      "Report exports by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.requests, m.durations,
		m.reportBuilds, m.reportDuration, m.reportCache, m.reportEdges,
		m.ledgerWrites, m.publishErrors, m.exports,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// The recording methods accept a nil receiver so callers can run without metrics.

func (m *Metrics) ObserveReport(d time.Duration, edges int) {
	if m == nil {
		return
	}
	m.reportBuilds.Inc()
	m.reportDuration.Observe(d.Seconds())
	m.reportEdges.Set(float64(edges))
}

func (m *Metrics) ReportCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.reportCache.WithLabelValues("hit").Inc()
		return
	}
	m.reportCache.WithLabelValues("miss").Inc()
}

func (m *Metrics) LedgerWrite(kind string) {
	if m == nil {
		return
	}
	m.ledgerWrites.WithLabelValues(kind).Inc()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishErrors.Inc()
}

func (m *Metrics) Export(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.exports.WithLabelValues("error").Inc()
		return
	}
	m.exports.WithLabelValues("ok").Inc()
}

// Middleware records request counts and latencies under route.
func (m *Metrics) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
			m.durations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests and additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
