// Package stats tracks dispatch-wide counters and exposes both a plain
// snapshot for CLI/admin consumption and a Prometheus registry for
// scraping.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Tracker accumulates monotonic counters across every request the
// dispatcher processes, plus a 1-second sliding window of completion
// timestamps used to estimate instantaneous throughput.
type Tracker struct {
	startedAt time.Time

	totalProcessed     int64
	successCount       int64
	failureCount       int64
	totalLatencyMicros int64
	totalLines         int64

	windowMu sync.Mutex
	window   []time.Time
}

// New creates a Tracker. totalLines is the known size of the input (0 if
// unknown, in which case Progress always reports 0).
func New(totalLines int) *Tracker {
	return &Tracker{
		startedAt:  time.Now(),
		totalLines: int64(totalLines),
	}
}

// RecordSuccess records one successfully completed request.
func (t *Tracker) RecordSuccess(latency time.Duration) {
	atomic.AddInt64(&t.totalProcessed, 1)
	atomic.AddInt64(&t.successCount, 1)
	atomic.AddInt64(&t.totalLatencyMicros, latency.Microseconds())
	t.pushCompletion()
	recordOutcome("success")
	observeLatency(latency)
}

// RecordFailure records one terminally failed request.
func (t *Tracker) RecordFailure() {
	atomic.AddInt64(&t.totalProcessed, 1)
	atomic.AddInt64(&t.failureCount, 1)
	t.pushCompletion()
	recordOutcome("failure")
}

func (t *Tracker) pushCompletion() {
	now := time.Now()
	t.windowMu.Lock()
	defer t.windowMu.Unlock()

	t.window = append(t.window, now)
	cutoff := now.Add(-time.Second)
	i := 0
	for i < len(t.window) && t.window[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		t.window = t.window[i:]
	}
}

// InstantaneousRPS returns the number of completions in the one-second
// window ending at the most recent completion. The window is pruned only
// when a completion is recorded, so once completions stop the count stays
// at its last value.
func (t *Tracker) InstantaneousRPS() int {
	t.windowMu.Lock()
	defer t.windowMu.Unlock()
	return len(t.window)
}

// Snapshot is a consistent-enough, point-in-time view of the tracker's
// counters, suitable for the admin server and the end-of-run summary.
// Individual fields are read with relaxed ordering; a monitoring surface
// tolerates the resulting small skew.
type Snapshot struct {
	TotalProcessed int64   `json:"total_processed"`
	SuccessCount   int64   `json:"success_count"`
	FailureCount   int64   `json:"failure_count"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	OverallRPS     float64 `json:"overall_rps"`
	InstantRPS     int     `json:"instant_rps"`
	Progress       float64 `json:"progress,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Snapshot returns the current view of all tracked counters.
func (t *Tracker) Snapshot() Snapshot {
	elapsed := time.Since(t.startedAt).Seconds()

	processed := atomic.LoadInt64(&t.totalProcessed)
	success := atomic.LoadInt64(&t.successCount)
	failure := atomic.LoadInt64(&t.failureCount)
	latency := atomic.LoadInt64(&t.totalLatencyMicros)

	snap := Snapshot{
		TotalProcessed: processed,
		SuccessCount:   success,
		FailureCount:   failure,
		InstantRPS:     t.InstantaneousRPS(),
		ElapsedSeconds: elapsed,
	}
	if success > 0 {
		snap.AvgLatencyMs = float64(latency) / float64(success) / 1000.0
	}
	if elapsed > 0 {
		snap.OverallRPS = float64(processed) / elapsed
	}
	if t.totalLines > 0 {
		snap.Progress = float64(processed) / float64(t.totalLines)
	}
	return snap
}
