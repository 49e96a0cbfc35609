// Package endpoint tracks per-backend health and capacity, and implements
// the weighted load balancer that selects among configured endpoints.
package endpoint

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/blazeapi/blaze/internal/config"
)

// Endpoint is one configured backend with lock-free counters and a narrow
// guarded region for the healthy/last-check pair (§4.1, §9).
type Endpoint struct {
	Config config.EndpointConfig

	inFlight            int64
	successCount        int64
	failureCount        int64
	totalLatencyMicros  int64
	consecutiveFailures int64

	mu                 sync.RWMutex
	healthy            bool
	lastHealthCheckSet bool
	lastHealthCheck    time.Time

	logger *zap.Logger
}

// New creates a healthy endpoint from configuration.
func New(cfg config.EndpointConfig, logger *zap.Logger) *Endpoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Endpoint{
		Config:  cfg,
		healthy: true,
		logger:  logger,
	}
}

// URL returns the endpoint's configured URL.
func (e *Endpoint) URL() string { return e.Config.URL }

// APIKey returns the endpoint's configured API key, if any.
func (e *Endpoint) APIKey() string { return e.Config.APIKey }

// Model returns the endpoint's configured model identifier, if any.
func (e *Endpoint) Model() string { return e.Config.Model }

// InFlight returns the current number of in-flight requests.
func (e *Endpoint) InFlight() int64 { return atomic.LoadInt64(&e.inFlight) }

// IsHealthy reports the current health flag.
func (e *Endpoint) IsHealthy() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.healthy
}

// CanAccept reports whether the endpoint has spare capacity.
func (e *Endpoint) CanAccept() bool {
	return atomic.LoadInt64(&e.inFlight) < int64(e.Config.MaxConcurrent)
}

// Acquire attempts to reserve a concurrency slot. It returns true and
// increments in_flight iff current < max_concurrent. The compare-and-swap
// loop makes the check and the increment atomic, so Acquire itself never
// admits more than max_concurrent concurrent callers.
func (e *Endpoint) Acquire() bool {
	for {
		current := atomic.LoadInt64(&e.inFlight)
		if current >= int64(e.Config.MaxConcurrent) {
			return false
		}
		if atomic.CompareAndSwapInt64(&e.inFlight, current, current+1) {
			return true
		}
	}
}

// Release frees a concurrency slot. It must be called exactly once per
// successful Acquire, on every completion path.
func (e *Endpoint) Release() {
	atomic.AddInt64(&e.inFlight, -1)
}

// RecordSuccess records a successful request outcome.
func (e *Endpoint) RecordSuccess(latency time.Duration) {
	atomic.AddInt64(&e.successCount, 1)
	atomic.AddInt64(&e.totalLatencyMicros, latency.Microseconds())
	atomic.StoreInt64(&e.consecutiveFailures, 0)
	e.markHealthy()
}

// RecordFailure records a failed request outcome, quarantining the endpoint
// once UnhealthyThreshold consecutive failures have accumulated.
func (e *Endpoint) RecordFailure() {
	atomic.AddInt64(&e.failureCount, 1)
	failures := atomic.AddInt64(&e.consecutiveFailures, 1)
	if failures >= config.UnhealthyThreshold {
		e.markUnhealthy()
	}
}

func (e *Endpoint) markHealthy() {
	e.mu.Lock()
	wasUnhealthy := !e.healthy
	e.healthy = true
	e.mu.Unlock()
	if wasUnhealthy {
		e.logger.Info("endpoint recovered", zap.String("url", e.Config.URL))
	}
}

func (e *Endpoint) markUnhealthy() {
	e.mu.Lock()
	wasHealthy := e.healthy
	e.healthy = false
	e.lastHealthCheckSet = true
	e.lastHealthCheck = time.Now()
	e.mu.Unlock()
	if wasHealthy {
		e.logger.Warn("endpoint marked unhealthy",
			zap.String("url", e.Config.URL),
			zap.Int64("consecutive_failures", atomic.LoadInt64(&e.consecutiveFailures)))
	}
}

// ShouldRetry reports whether this endpoint may be selected by the
// recovery path: healthy, or past its cooldown, or never quarantined.
func (e *Endpoint) ShouldRetry(cooldown time.Duration) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.healthy {
		return true
	}
	if !e.lastHealthCheckSet {
		return true
	}
	return time.Since(e.lastHealthCheck) >= cooldown
}

// AvgLatencyMs returns the mean successful-request latency in milliseconds,
// or 0 if there have been no successes yet.
func (e *Endpoint) AvgLatencyMs() float64 {
	count := atomic.LoadInt64(&e.successCount)
	if count == 0 {
		return 0
	}
	total := atomic.LoadInt64(&e.totalLatencyMicros)
	return float64(total) / float64(count) / 1000.0
}

// Stats is a point-in-time snapshot of an endpoint's counters, useful for
// admin/monitoring surfaces.
type Stats struct {
	URL                 string  `json:"url"`
	Healthy             bool    `json:"healthy"`
	InFlight            int64   `json:"in_flight"`
	SuccessCount        int64   `json:"success_count"`
	FailureCount        int64   `json:"failure_count"`
	ConsecutiveFailures int64   `json:"consecutive_failures"`
	AvgLatencyMs        float64 `json:"avg_latency_ms"`
}

// Snapshot returns the current Stats for this endpoint.
func (e *Endpoint) Snapshot() Stats {
	return Stats{
		URL:                 e.Config.URL,
		Healthy:             e.IsHealthy(),
		InFlight:            e.InFlight(),
		SuccessCount:        atomic.LoadInt64(&e.successCount),
		FailureCount:        atomic.LoadInt64(&e.failureCount),
		ConsecutiveFailures: atomic.LoadInt64(&e.consecutiveFailures),
		AvgLatencyMs:        e.AvgLatencyMs(),
	}
}

// rngSource is package-level so LoadBalancer.Select can draw uniformly
// without allocating a *rand.Rand per call; a *rand.Rand is not safe for
// concurrent use, so every draw holds rngMu.
var rngSource = rand.New(rand.NewSource(time.Now().UnixNano()))
var rngMu sync.Mutex

func randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	rngMu.Lock()
	defer rngMu.Unlock()
	return rngSource.Intn(n)
}
