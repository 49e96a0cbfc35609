package dispatch

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blazeapi/blaze/internal/config"
	"github.com/blazeapi/blaze/internal/endpoint"
	"github.com/blazeapi/blaze/internal/ratelimit"
	"github.com/blazeapi/blaze/internal/record"
	"github.com/blazeapi/blaze/internal/sink"
	"github.com/blazeapi/blaze/internal/stats"
)

// allUnhealthyGrace is the brief wait before a single selection retry when
// the load balancer reports every endpoint quarantined (§4.5 step 2).
const allUnhealthyGrace = 10 * time.Millisecond

// acquireRetryDelays are the escalating waits between acquire attempts
// before the dispatcher proceeds regardless, the optimistic over-commit
// variant named in §9's first open question.
var acquireRetryDelays = []time.Duration{10 * time.Millisecond, 100 * time.Millisecond}

// NewHTTPClient builds the shared client used by every sender, tuned the
// way the teacher's outbound client pools connections: keepalive,
// nodelay, and a pool sized to the worker count.
func NewHTTPClient(workers int, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		MaxIdleConns:        workers,
		MaxIdleConnsPerHost: workers,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  false,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Dispatcher pulls requests from a fixed sequence and drives each through
// rate limiting, endpoint selection, and the retrying sender, with at most
// Workers tasks in flight at any time.
type Dispatcher struct {
	LoadBalancer *endpoint.LoadBalancer
	RateLimiter  *ratelimit.Limiter
	Sender       *Sender
	Stats        *stats.Tracker
	Success      *sink.Sink
	Failure      *sink.Sink

	Workers  int
	Timeout  time.Duration
	Cooldown time.Duration

	Logger *zap.Logger
}

// Run processes every request in requests with Workers tasks concurrently
// in flight, routing each terminal outcome to the appropriate sink and
// updating Stats. Run returns once the input is exhausted and every
// in-flight task has terminated; both sinks are flushed before it returns.
func (d *Dispatcher) Run(ctx context.Context, requests []*record.Request) error {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("dispatch run starting", zap.Int("requests", len(requests)), zap.Int("workers", d.Workers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.Workers)

	for _, req := range requests {
		req := req
		g.Go(func() error {
			d.process(gctx, req)
			return nil
		})
	}

	err := g.Wait()

	d.Success.Close()
	d.Failure.Close()

	logger.Info("dispatch run complete", zap.Error(err))
	return err
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// process drives a single request through the full rate→select→acquire→
// send→route sequence (§4.5).
func (d *Dispatcher) process(ctx context.Context, req *record.Request) {
	if err := d.RateLimiter.UntilReady(ctx); err != nil {
		return
	}

	ep, err := d.selectEndpoint(ctx)
	if err != nil {
		d.routeFailure(req, "no endpoints available")
		return
	}

	if !d.acquireWithRetry(ctx, ep) {
		// Over-committed on purpose (§9): proceed anyway rather than block
		// indefinitely. Sender.Send still calls ep.Release() exactly once.
		d.logger().Debug("proceeding over capacity", zap.String("endpoint", ep.URL()))
	}
	stats.DefaultRegistry().SetEndpointInFlight(ep.URL(), ep.InFlight())

	outcome := d.Sender.Send(ctx, req, ep, d.Timeout)
	stats.DefaultRegistry().SetEndpointInFlight(ep.URL(), ep.InFlight())
	d.route(outcome)
}

// selectEndpoint retries once after a brief grace period when every
// endpoint is quarantined, before giving up.
func (d *Dispatcher) selectEndpoint(ctx context.Context) (*endpoint.Endpoint, error) {
	ep, err := d.LoadBalancer.Select()
	if err == nil {
		return ep, nil
	}

	timer := time.NewTimer(allUnhealthyGrace)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return d.LoadBalancer.Select()
}

// acquireWithRetry attempts to reserve a concurrency slot, retrying with
// escalating delays before proceeding regardless of the outcome. The
// returned bool reports whether a slot was actually reserved; the caller
// proceeds either way per the documented relaxed admission policy.
func (d *Dispatcher) acquireWithRetry(ctx context.Context, ep *endpoint.Endpoint) bool {
	if ep.Acquire() {
		return true
	}
	for _, delay := range acquireRetryDelays {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false
		}
		timer.Stop()
		if ep.Acquire() {
			return true
		}
	}
	return false
}

func (d *Dispatcher) route(outcome record.Outcome) {
	if outcome.IsSuccess() {
		d.Success.Write(outcome.Success)
		d.Stats.RecordSuccess(time.Duration(outcome.Success.Metadata.LatencyMs) * time.Millisecond)
		return
	}
	d.Failure.Write(outcome.Failure)
	d.Stats.RecordFailure()
}

func (d *Dispatcher) routeFailure(req *record.Request, msg string) {
	d.Failure.Write(&record.FailureRecord{
		Input:      req.Input,
		Body:       req.Body,
		Error:      msg,
		LineNumber: req.LineNumber,
		Attempts:   0,
	})
	d.Stats.RecordFailure()
}

// NewLoadBalancerFromConfig is a small convenience constructor tying
// config.Config's endpoint list and cooldown to a fresh LoadBalancer.
func NewLoadBalancerFromConfig(cfg config.Config, logger *zap.Logger) *endpoint.LoadBalancer {
	return endpoint.NewLoadBalancer(cfg.Endpoints, cfg.Cooldown, logger)
}
