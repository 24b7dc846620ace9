package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. All methods are safe on
// a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	estimatesTotal    *prometheus.CounterVec
	ingestRunsTotal   *prometheus.CounterVec
	ingestDuration    prometheus.Histogram
	ingestRowsTotal   *prometheus.CounterVec
	ingestLastSuccess prometheus.Gauge
	cbState           *prometheus.GaugeVec
	telemetryTotal    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		estimatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wheatr_estimates_total",
			Help: "Local weather estimates by outcome.",
		}, []string{"outcome"}),
		ingestRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wheatr_ingest_runs_total",
			Help: "AEMET ingestion runs by outcome.",
		}, []string{"outcome"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wheatr_ingest_duration_seconds",
			Help:    "Histogram of AEMET ingestion run durations.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		ingestRowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wheatr_ingest_rows_total",
			Help: "Rows written by ingestion, by kind.",
		}, []string{"kind"}),
		ingestLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wheatr_ingest_last_success_timestamp_seconds",
			Help: "Unix time of the last successful ingestion run.",
		}),
		cbState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cb_state",
			Help: "Circuit breaker state gauge (0 closed, 1 half, 2 open).",
		}, []string{"target"}),
		telemetryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wheatr_mqtt_messages_total",
			Help: "MQTT telemetry messages by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.estimatesTotal,
		m.ingestRunsTotal,
		m.ingestDuration,
		m.ingestRowsTotal,
		m.ingestLastSuccess,
		m.cbState,
		m.telemetryTotal,
	)

	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and latency under the given route label.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// EstimateOutcome counts one estimate. Use "ok" for success and a short
// error class otherwise.
func (m *Metrics) EstimateOutcome(outcome string) {
	if m == nil {
		return
	}
	m.estimatesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IngestRun(duration time.Duration, stations, observations int, err error) {
	if m == nil {
		return
	}
	m.ingestDuration.Observe(duration.Seconds())
	if err != nil {
		m.ingestRunsTotal.WithLabelValues("error").Inc()
		return
	}
	m.ingestRunsTotal.WithLabelValues("ok").Inc()
	m.ingestRowsTotal.WithLabelValues("stations").Add(float64(stations))
	m.ingestRowsTotal.WithLabelValues("observations").Add(float64(observations))
	m.ingestLastSuccess.SetToCurrentTime()
}

func (m *Metrics) SetCircuitBreakerState(target string, state float64) {
	if m == nil {
		return
	}
	m.cbState.WithLabelValues(target).Set(state)
}

func (m *Metrics) TelemetryMessage(outcome string) {
	if m == nil {
		return
	}
	m.telemetryTotal.WithLabelValues(outcome).Inc()
}
