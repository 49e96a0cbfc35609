// Package dispatch implements the retrying sender and the bounded
// concurrent pipeline that drives requests through the endpoint pool.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blazeapi/blaze/internal/config"
	"github.com/blazeapi/blaze/internal/endpoint"
	"github.com/blazeapi/blaze/internal/httpbody"
	"github.com/blazeapi/blaze/internal/record"
)

// maxErrorBodyBytes bounds the error-body text captured for a failed
// request, per the 500-byte truncation rule.
const maxErrorBodyBytes = 500

// nonRetryableStatuses are terminal client/permission/not-found statuses
// that will not resolve by retrying the same request.
var nonRetryableStatuses = map[int]bool{
	http.StatusBadRequest:   true,
	http.StatusUnauthorized: true,
	http.StatusForbidden:    true,
	http.StatusNotFound:     true,
}

// Sender issues one request against a selected endpoint, retrying on
// transient failures according to the configured backoff schedule.
type Sender struct {
	client *http.Client
	retry  config.RetryConfig
	logger *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewSender builds a Sender sharing client across every request it issues.
func NewSender(client *http.Client, retry config.RetryConfig, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		client: client,
		retry:  retry,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Send drives req against ep through up to retry.MaxAttempts attempts,
// returning the terminal outcome. release() is guaranteed to be called
// exactly once, and record_success/record_failure are called exactly once
// on the appropriate terminal path (§4.4).
func (s *Sender) Send(ctx context.Context, req *record.Request, ep *endpoint.Endpoint, timeout time.Duration) record.Outcome {
	defer ep.Release()

	start := time.Now()

	body, err := httpbody.Build(req, ep.Model())
	if err != nil {
		ep.RecordFailure()
		return record.Outcome{Failure: &record.FailureRecord{
			Input:      req.Input,
			Body:       req.Body,
			Error:      fmt.Sprintf("build request body: %v", err),
			LineNumber: req.LineNumber,
			Attempts:   0,
		}}
	}

	var lastErr string
	var lastStatus *int

	maxAttempts := s.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		status, respBody, sendErr := s.attempt(ctx, req, ep, body, timeout)

		if sendErr == nil && status >= 200 && status < 300 {
			var parsed json.RawMessage
			if err := json.Unmarshal(respBody, &parsed); err != nil {
				lastErr = fmt.Sprintf("parse response body: %v", err)
				lastStatus = &status
				if attempt < maxAttempts {
					s.sleepBackoff(ctx, attempt)
					continue
				}
				break
			}

			latency := time.Since(start)
			ep.RecordSuccess(latency)
			return record.Outcome{Success: &record.SuccessRecord{
				Input:    req.Input,
				Response: parsed,
				Metadata: record.ResponseMetadata{
					Endpoint:  ep.URL(),
					LatencyMs: latency.Milliseconds(),
					Attempts:  attempt,
				},
			}}
		}

		if sendErr != nil {
			lastErr = sendErr.Error()
			lastStatus = nil
		} else {
			lastErr = truncateBody(respBody)
			lastStatus = &status
			if nonRetryableStatuses[status] {
				break
			}
		}

		if attempt < maxAttempts {
			s.sleepBackoff(ctx, attempt)
		}
	}

	ep.RecordFailure()
	return record.Outcome{Failure: &record.FailureRecord{
		Input:      req.Input,
		Body:       req.Body,
		Error:      lastErr,
		StatusCode: lastStatus,
		LineNumber: req.LineNumber,
		Attempts:   attempts,
	}}
}

// attempt issues a single HTTP transaction. A non-nil error indicates a
// transport-level failure (no status carried); otherwise status and the
// (possibly error) response body are returned.
func (s *Sender) attempt(ctx context.Context, req *record.Request, ep *endpoint.Endpoint, body json.RawMessage, timeout time.Duration) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, ep.URL(), bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build http request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Accept-Encoding", "gzip, br")
	if ep.APIKey() != "" {
		httpReq.Header.Set("Authorization", "Bearer "+ep.APIKey())
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("transport error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

func truncateBody(body []byte) string {
	if len(body) <= maxErrorBodyBytes {
		return string(body)
	}
	return string(body[:maxErrorBodyBytes]) + "..."
}

// sleepBackoff sleeps for the attempt-th backoff interval, or returns
// early if ctx is cancelled.
func (s *Sender) sleepBackoff(ctx context.Context, attempt int) {
	delay := s.backoff(attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// backoff computes delay_ms = clamp(initial * multiplier^(attempt-1) *
// jitter, 0, max_backoff), jitter uniform in [0.75, 1.25).
func (s *Sender) backoff(attempt int) time.Duration {
	base := float64(s.retry.InitialBackoff) * pow(s.retry.Multiplier, attempt-1)

	s.rngMu.Lock()
	jitter := 0.75 + s.rng.Float64()*0.5
	s.rngMu.Unlock()

	delay := time.Duration(base * jitter)
	if delay < 0 {
		delay = 0
	}
	if delay > s.retry.MaxBackoff {
		delay = s.retry.MaxBackoff
	}
	return delay
}

func pow(base float64, exp int) float64 {
	if exp <= 0 {
		return 1
	}
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
