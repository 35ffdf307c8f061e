package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "ontogate"

// Metrics holds the gateway's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	requestTime   *prometheus.HistogramVec
	queryDuration *prometheus.HistogramVec
	validations   *prometheus.CounterVec
	filesLoaded   prometheus.Counter
	filesFailed   prometheus.Counter
	triples       *prometheus.CounterVec
	backendUp     prometheus.Gauge
}

// NewMetrics creates and registers the collectors, plus the Go runtime and
// process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		requestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "query_duration_seconds",
			Help:      "SPARQL query latency by query form and outcome.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60},
		}, []string{"form", "outcome"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "validations_total",
			Help:      "SHACL validations by outcome (conforms, violations, error).",
		}, []string{"outcome"}),
		filesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "files_loaded_total",
			Help:      "RDF files loaded successfully.",
		}),
		filesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "files_failed_total",
			Help:      "RDF files that failed to load.",
		}),
		triples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "triples_changed_total",
			Help:      "Triples added or deleted through the triples endpoint.",
		}, []string{"op"}),
		backendUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "backend_up",
			Help:      "1 when the last backend ping succeeded.",
		}),
	}
	m.registry.MustRegister(
		m.requests, m.requestTime, m.queryDuration, m.validations,
		m.filesLoaded, m.filesFailed, m.triples, m.backendUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) observeRequest(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.requestTime.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) observeQuery(form, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if form == "" {
		form = "unknown"
	}
	m.queryDuration.WithLabelValues(form, outcome).Observe(d.Seconds())
}

func (m *Metrics) observeValidation(outcome string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeLoad(loaded, failed int) {
	if m == nil {
		return
	}
	m.filesLoaded.Add(float64(loaded))
	m.filesFailed.Add(float64(failed))
}

func (m *Metrics) observeTriples(op string, n int) {
	if m == nil {
		return
	}
	m.triples.WithLabelValues(op).Add(float64(n))
}

func (m *Metrics) setBackendUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.backendUp.Set(1)
	} else {
		m.backendUp.Set(0)
	}
}
