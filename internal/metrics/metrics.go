// Package metrics exposes Prometheus instrumentation for the converter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name
const Namespace = "ytconverter"

// Recorder captures service metrics.
type Recorder interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
	ObserveConversion(format, outcome string, durationSeconds float64)
	IncDownload(outcome string)
	AddEvicted(n int)
	SetArtifacts(n int)
	IncActiveJobs()
	DecActiveJobs()
}

// Noop implements Recorder without emitting anything.
type Noop struct{}

func (Noop) ObserveRequest(string, string, string, float64) {}
func (Noop) ObserveConversion(string, string, float64)       {}
func (Noop) IncDownload(string)                              {}
func (Noop) AddEvicted(int)                                  {}
func (Noop) SetArtifacts(int)                                {}
func (Noop) IncActiveJobs()                                  {}
func (Noop) DecActiveJobs()                                  {}

// Prom implements Recorder on a dedicated registry.
type Prom struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	conversions *prometheus.CounterVec
	convLatency *prometheus.HistogramVec
	downloads   *prometheus.CounterVec
	evicted     prometheus.Counter
	artifacts   prometheus.Gauge
	activeJobs  prometheus.Gauge
}

// NewProm creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func NewProm() *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "conversions_total",
			Help:      "Conversions by format and outcome",
		}, []string{"format", "outcome"}),
		convLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Time spent acquiring media",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"format"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "downloads_total",
			Help:      "Artifact downloads by outcome",
		}, []string{"outcome"}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "artifacts_evicted_total",
			Help:      "Artifacts removed by the retention sweeper",
		}),
		artifacts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "artifacts_stored",
			Help:      "Artifacts currently registered",
		}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_jobs",
			Help:      "Conversions currently in progress",
		}),
	}
	p.registry.MustRegister(
		p.requests, p.latency, p.conversions, p.convLatency,
		p.downloads, p.evicted, p.artifacts, p.activeJobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

func (p *Prom) ObserveConversion(format, outcome string, durationSeconds float64) {
	p.conversions.WithLabelValues(format, outcome).Inc()
	p.convLatency.WithLabelValues(format).Observe(durationSeconds)
}

func (p *Prom) IncDownload(outcome string) {
	p.downloads.WithLabelValues(outcome).Inc()
}

func (p *Prom) AddEvicted(n int) {
	if n > 0 {
		p.evicted.Add(float64(n))
	}
}

func (p *Prom) SetArtifacts(n int) {
	p.artifacts.Set(float64(n))
}

func (p *Prom) IncActiveJobs() {
	p.activeJobs.Inc()
}

func (p *Prom) DecActiveJobs() {
	p.activeJobs.Dec()
}

// Registry returns the registry backing p.
func (p *Prom) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
