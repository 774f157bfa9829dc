// Package metrics exposes generation and model-load metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusOK labels successful loads and generations.
const StatusOK = "ok"

// Metrics records model loads and generation outcomes.
type Metrics interface {
	IncModelLoads(status string)
	ObserveGeneration(status string, durationSeconds float64)
}

// HTTPMetrics captures request metrics for the web host.
type HTTPMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements Metrics and HTTPMetrics without emitting anything.
type Noop struct{}

func (Noop) IncModelLoads(string)                           {}
func (Noop) ObserveGeneration(string, float64)              {}
func (Noop) ObserveRequest(string, string, string, float64) {}

// Prom implements Metrics and HTTPMetrics backed by Prometheus collectors.
type Prom struct {
	modelLoads  *prometheus.CounterVec
	generations *prometheus.CounterVec
	genLatency  *prometheus.HistogramVec
	requests    *prometheus.CounterVec
	reqLatency  *prometheus.HistogramVec
	once        sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		modelLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      "Model load attempts by status",
		}, []string{"status"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation requests by status",
		}, []string{"status"}),
		genLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall-clock generation time",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		reqLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.modelLoads, p.generations, p.genLatency, p.requests, p.reqLatency)
	})
}

func (p *Prom) IncModelLoads(status string) {
	p.modelLoads.WithLabelValues(status).Inc()
}

// ObserveGeneration counts every outcome; latency is only recorded for
// successful generations since failures carry no elapsed time.
func (p *Prom) ObserveGeneration(status string, durationSeconds float64) {
	p.generations.WithLabelValues(status).Inc()
	if status == StatusOK {
		p.genLatency.WithLabelValues(status).Observe(durationSeconds)
	}
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.reqLatency.WithLabelValues(method, route).Observe(durationSeconds)
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
