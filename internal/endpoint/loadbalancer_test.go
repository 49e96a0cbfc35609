package endpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blazeapi/blaze/internal/config"
)

func lbConfigs() []config.EndpointConfig {
	return []config.EndpointConfig{
		{URL: "http://a.test", Weight: 1, MaxConcurrent: 10},
		{URL: "http://b.test", Weight: 1, MaxConcurrent: 10},
	}
}

func TestSelectPrefersHealthyEndpoints(t *testing.T) {
	lb := NewLoadBalancer(lbConfigs(), 30*time.Second, nil)
	eps := lb.Endpoints()
	for i := 0; i < config.UnhealthyThreshold; i++ {
		eps[0].RecordFailure()
	}
	require.False(t, eps[0].IsHealthy())

	for i := 0; i < 20; i++ {
		picked, err := lb.Select()
		require.NoError(t, err)
		assert.Same(t, eps[1], picked)
	}
}

func TestSelectFallsBackToRecoveryPath(t *testing.T) {
	lb := NewLoadBalancer(lbConfigs(), 0, nil)
	eps := lb.Endpoints()
	for _, e := range eps {
		for i := 0; i < config.UnhealthyThreshold; i++ {
			e.RecordFailure()
		}
	}

	picked, err := lb.Select()
	require.NoError(t, err)
	assert.Contains(t, eps, picked)
}

func TestSelectReturnsAllUnhealthyWhenNoneEligible(t *testing.T) {
	lb := NewLoadBalancer(lbConfigs(), time.Hour, nil)
	eps := lb.Endpoints()
	for _, e := range eps {
		for i := 0; i < config.UnhealthyThreshold; i++ {
			e.RecordFailure()
		}
	}

	_, err := lb.Select()
	assert.ErrorIs(t, err, ErrAllUnhealthy)
}

func TestWeightedPickSingleCandidate(t *testing.T) {
	lb := NewLoadBalancer(lbConfigs()[:1], 30*time.Second, nil)
	picked, err := lb.Select()
	require.NoError(t, err)
	assert.Same(t, lb.Endpoints()[0], picked)
}
