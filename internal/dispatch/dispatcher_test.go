package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blazeapi/blaze/internal/config"
	"github.com/blazeapi/blaze/internal/endpoint"
	"github.com/blazeapi/blaze/internal/ratelimit"
	"github.com/blazeapi/blaze/internal/record"
	"github.com/blazeapi/blaze/internal/sink"
	"github.com/blazeapi/blaze/internal/stats"
)

func newTestDispatcher(t *testing.T, srvURL string, workers int) (*Dispatcher, *sink.Sink, *sink.Sink) {
	t.Helper()

	lb := endpoint.NewLoadBalancer([]config.EndpointConfig{
		{URL: srvURL, Weight: 1, MaxConcurrent: 100},
	}, 30*time.Second, nil)

	successPath := t.TempDir() + "/success.jsonl"
	failurePath := t.TempDir() + "/failure.jsonl"
	successSink, err := sink.Open(successPath, nil)
	require.NoError(t, err)
	failureSink, err := sink.Open(failurePath, nil)
	require.NoError(t, err)

	return &Dispatcher{
		LoadBalancer: lb,
		RateLimiter:  ratelimit.New(10000),
		Sender:       NewSender(http.DefaultClient, testRetryConfig(), nil),
		Stats:        stats.New(0),
		Success:      successSink,
		Failure:      failureSink,
		Workers:      workers,
		Timeout:      time.Second,
		Cooldown:     30 * time.Second,
	}, successSink, failureSink
}

func TestDispatcherRunAllSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d, _, _ := newTestDispatcher(t, srv.URL, 4)

	var requests []*record.Request
	for i := 0; i < 10; i++ {
		s := "x"
		requests = append(requests, &record.Request{Input: &s, LineNumber: i + 1})
	}

	require.NoError(t, d.Run(context.Background(), requests))

	snap := d.Stats.Snapshot()
	assert.EqualValues(t, 10, snap.TotalProcessed)
	assert.EqualValues(t, 10, snap.SuccessCount)
	assert.EqualValues(t, 0, snap.FailureCount)
	for _, ep := range d.LoadBalancer.Endpoints() {
		assert.EqualValues(t, 0, ep.InFlight())
	}
}

func TestDispatcherRunMixedOutcomes(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		if n%2 == 0 {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("denied"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d, _, _ := newTestDispatcher(t, srv.URL, 4)

	var requests []*record.Request
	for i := 0; i < 20; i++ {
		s := "x"
		requests = append(requests, &record.Request{Input: &s, LineNumber: i + 1})
	}

	require.NoError(t, d.Run(context.Background(), requests))

	snap := d.Stats.Snapshot()
	assert.EqualValues(t, 20, snap.TotalProcessed)
	assert.EqualValues(t, snap.SuccessCount+snap.FailureCount, snap.TotalProcessed)
}

func TestDispatcherRunRespectsWorkerBound(t *testing.T) {
	var current, peak int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&current, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	d, _, _ := newTestDispatcher(t, srv.URL, 3)

	var requests []*record.Request
	for i := 0; i < 15; i++ {
		s := "x"
		requests = append(requests, &record.Request{Input: &s, LineNumber: i + 1})
	}

	require.NoError(t, d.Run(context.Background(), requests))
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
}
