// Package metrics exposes Prometheus instrumentation for sessions, captures,
// prompts and the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vbonduro/lensfriend/internal/session"
)

const namespace = "lensfriend"

// Capture sources.
const (
	SourceUpload = "upload"
	SourceServer = "server"
)

// Metrics holds all collectors on a private registry so several instances can
// coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	CapturesTotal       *prometheus.CounterVec
	PromptsTotal        *prometheus.CounterVec
	FragmentsTotal      prometheus.Counter
	ResponseDuration    *prometheus.HistogramVec
	TranscriptionsTotal *prometheus.CounterVec
	SessionsActive      prometheus.Gauge
	StreamsActive       *prometheus.GaugeVec

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CapturesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "captures_total",
				Help:      "Capture gestures by source and result",
			},
			[]string{"source", "result"},
		),
		PromptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prompts_total",
				Help:      "Prompt submissions by result",
			},
			[]string{"result"},
		),
		FragmentsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fragments_total",
				Help:      "Answer fragments appended to sessions",
			},
		),
		ResponseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "response_duration_seconds",
				Help:      "Time from prompt submission to the end of the answer stream",
				Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"result"},
		),
		TranscriptionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transcriptions_total",
				Help:      "Voice prompt transcriptions by result",
			},
			[]string{"result"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of live sessions",
			},
		),
		StreamsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "streams_active",
				Help:      "Open snapshot streams by transport",
			},
			[]string{"transport"},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionHooks wires session lifecycle notifications to the collectors.
func (m *Metrics) SessionHooks() session.Hooks {
	return session.Hooks{
		Fragment: m.FragmentsTotal.Inc,
		ResponseFinished: func(err error, elapsed time.Duration) {
			m.ResponseDuration.WithLabelValues(result(err)).Observe(elapsed.Seconds())
		},
		SessionCount: func(n int) {
			m.SessionsActive.Set(float64(n))
		},
	}
}

func (m *Metrics) ObserveCapture(source string, err error) {
	m.CapturesTotal.WithLabelValues(source, result(err)).Inc()
}

// ObservePrompt counts a submit attempt. Rejected submits are counted apart
// from ones that started a response.
func (m *Metrics) ObservePrompt(err error) {
	label := "started"
	if err != nil {
		label = "rejected"
	}
	m.PromptsTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveTranscription(transcript string, err error) {
	label := result(err)
	if err == nil && transcript == "" {
		label = "empty"
	}
	m.TranscriptionsTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
