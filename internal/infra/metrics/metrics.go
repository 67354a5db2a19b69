package metrics

import (
	"net/http"
	"strconv"
	"time"

	"zkrent/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zkrent"

// Registry owns the collectors of one service process.
type Registry struct {
	reg         *prometheus.Registry
	proofs      *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	revocations *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

func New(service string) *Registry {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}
	r := &Registry{
		reg: reg,
		proofs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "proof_verifications_total",
			Help:        "Groth16 proof verifications by circuit and outcome.",
			ConstLabels: constLabels,
		}, []string{"circuit", "outcome"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "application_decisions_total",
			Help:        "Rental application decisions by status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "revocation_lookups_total",
			Help:        "Revocation registry lookups by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "HTTP requests by route and status code.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency by route.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.proofs, r.decisions, r.revocations, r.requests, r.latency,
	)
	return r
}

func (r *Registry) ObserveProof(circuit, outcome string) {
	r.proofs.WithLabelValues(circuit, outcome).Inc()
}

func (r *Registry) ObserveDecision(status domain.ApplicationStatus) {
	r.decisions.WithLabelValues(string(status)).Inc()
}

func (r *Registry) ObserveRevocationLookup(outcome string) {
	r.revocations.WithLabelValues(outcome).Inc()
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Middleware records request counts and latency keyed by route template.
func (r *Registry) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		r.requests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		r.latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
