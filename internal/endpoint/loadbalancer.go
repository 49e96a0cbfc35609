package endpoint

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/blazeapi/blaze/internal/config"
)

// ErrAllUnhealthy is returned by Select when no endpoint is eligible: each
// one is either quarantined within its cooldown or at max_concurrent.
var ErrAllUnhealthy = fmt.Errorf("all endpoints are unhealthy")

// LoadBalancer selects among a fixed set of endpoints using weighted random
// choice, preferring healthy endpoints and falling back to a recovery probe
// of cooled-down unhealthy ones.
type LoadBalancer struct {
	endpoints []*Endpoint
	cooldown  time.Duration
	logger    *zap.Logger
}

// NewLoadBalancer builds a balancer over the given endpoint configs.
func NewLoadBalancer(cfgs []config.EndpointConfig, cooldown time.Duration, logger *zap.Logger) *LoadBalancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	eps := make([]*Endpoint, len(cfgs))
	for i, c := range cfgs {
		eps[i] = New(c, logger)
	}
	return &LoadBalancer{endpoints: eps, cooldown: cooldown, logger: logger}
}

// Endpoints returns the full endpoint set, for snapshotting and admin
// surfaces.
func (lb *LoadBalancer) Endpoints() []*Endpoint { return lb.endpoints }

// Select picks one endpoint to send the next request to.
//
// Fast path: weighted-random draw among healthy endpoints with spare
// capacity. Recovery path: if there are none, weighted-random draw among
// endpoints with spare capacity that are healthy or whose cooldown has
// elapsed (ShouldRetry), treated as a cautious probe. If neither path
// yields a candidate: ErrAllUnhealthy.
func (lb *LoadBalancer) Select() (*Endpoint, error) {
	if healthy := lb.filter(func(e *Endpoint) bool { return e.IsHealthy() && e.CanAccept() }); len(healthy) > 0 {
		return lb.weightedPick(healthy), nil
	}

	if candidates := lb.filter(func(e *Endpoint) bool { return e.ShouldRetry(lb.cooldown) && e.CanAccept() }); len(candidates) > 0 {
		lb.logger.Debug("load balancer probing recovery candidates", zap.Int("count", len(candidates)))
		return lb.weightedPick(candidates), nil
	}

	return nil, ErrAllUnhealthy
}

func (lb *LoadBalancer) filter(pred func(*Endpoint) bool) []*Endpoint {
	out := make([]*Endpoint, 0, len(lb.endpoints))
	for _, e := range lb.endpoints {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// weightedPick draws one endpoint from candidates with probability
// proportional to its configured Weight. No round-robin cursor is kept:
// each call is an independent draw, matching the load balancer's
// stateless selection contract.
func (lb *LoadBalancer) weightedPick(candidates []*Endpoint) *Endpoint {
	if len(candidates) == 1 {
		return candidates[0]
	}

	total := 0
	for _, e := range candidates {
		total += e.Config.Weight
	}
	if total <= 0 {
		return candidates[randIntn(len(candidates))]
	}

	r := randIntn(total)
	for _, e := range candidates {
		if r < e.Config.Weight {
			return e
		}
		r -= e.Config.Weight
	}
	return candidates[len(candidates)-1]
}
