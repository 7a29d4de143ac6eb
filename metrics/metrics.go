// Package metrics exposes fogger cycle and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"furitingoasis/fogger/control"
)

type Metrics struct {
	registry        *prometheus.Registry
	cycles          *prometheus.CounterVec
	actuations      *prometheus.CounterVec
	actuationTime   prometheus.Histogram
	sensorFallbacks prometheus.Counter
	commanded       prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the fogger collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fogger_cycles_total",
			Help: "Evaluation cycles by mode and commanded state.",
		}, []string{"mode", "commanded"}),
		actuations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fogger_actuations_total",
			Help: "Actuation attempts by outcome (ok, Unreachable, RemoteRejected).",
		}, []string{"outcome"}),
		actuationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fogger_actuation_duration_seconds",
			Help:    "Time spent on the control request.",
			Buckets: prometheus.DefBuckets,
		}),
		sensorFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fogger_sensor_fallbacks_total",
			Help: "Cycles that ran on a fallback reading.",
		}),
		commanded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fogger_commanded_state",
			Help: "Last commanded state (1 on, 0 off).",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		m.cycles,
		m.actuations,
		m.actuationTime,
		m.sensorFallbacks,
		m.commanded,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// RecordCycle implements control.Recorder.
func (m *Metrics) RecordCycle(s control.Summary) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(s.Mode.String(), s.Commanded.String()).Inc()
	outcome := "ok"
	if !s.Actuation.Succeeded {
		outcome = s.Actuation.Kind.String()
	}
	m.actuations.WithLabelValues(outcome).Inc()
	m.actuationTime.Observe(s.Actuation.Duration.Seconds())
	if s.Reading.IsFallback {
		m.sensorFallbacks.Inc()
	}
	if s.Commanded {
		m.commanded.Set(1)
	} else {
		m.commanded.Set(0)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and their latency under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
