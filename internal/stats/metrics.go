package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry wraps a dedicated Prometheus registry for the dispatch run,
// rather than registering against the global default registry - this
// keeps a library-embedded dispatcher from colliding with a host
// process's own metric names.
type Registry struct {
	reg *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	latencySeconds   prometheus.Histogram
	endpointInFlight *prometheus.GaugeVec
}

var defaultRegistry *Registry

func init() {
	defaultRegistry = newRegistry()
}

func newRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_requests_total",
			Help: "Total number of terminal request outcomes, by outcome.",
		}, []string{"outcome"}),
		latencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_latency_seconds",
			Help:    "Latency of successfully completed requests.",
			Buckets: prometheus.DefBuckets,
		}),
		endpointInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispatch_endpoint_inflight",
			Help: "Current in-flight request count per endpoint.",
		}, []string{"endpoint"}),
	}
	r.reg.MustRegister(r.requestsTotal, r.latencySeconds, r.endpointInFlight)
	return r
}

// DefaultRegistry returns the package-level Prometheus registry used by
// the admin server's /metrics route.
func DefaultRegistry() *Registry { return defaultRegistry }

// Gatherer exposes the underlying prometheus.Gatherer for an HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// SetEndpointInFlight updates the in-flight gauge for one endpoint.
func (r *Registry) SetEndpointInFlight(url string, value int64) {
	r.endpointInFlight.WithLabelValues(url).Set(float64(value))
}

func recordOutcome(outcome string) {
	defaultRegistry.requestsTotal.WithLabelValues(outcome).Inc()
}

func observeLatency(d time.Duration) {
	defaultRegistry.latencySeconds.Observe(d.Seconds())
}
