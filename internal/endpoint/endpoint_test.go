package endpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blazeapi/blaze/internal/config"
)

func testEndpoint(maxConcurrent int) *Endpoint {
	return New(config.EndpointConfig{
		URL:           "http://example.test/v1",
		Weight:        1,
		MaxConcurrent: maxConcurrent,
	}, nil)
}

func TestAcquireRespectsMaxConcurrent(t *testing.T) {
	e := testEndpoint(2)

	require.True(t, e.Acquire())
	require.True(t, e.Acquire())
	assert.False(t, e.Acquire())
	assert.EqualValues(t, 2, e.InFlight())

	e.Release()
	assert.True(t, e.Acquire())
}

func TestRecordFailureQuarantinesAfterThreshold(t *testing.T) {
	e := testEndpoint(10)
	require.True(t, e.IsHealthy())

	for i := 0; i < config.UnhealthyThreshold-1; i++ {
		e.RecordFailure()
		assert.True(t, e.IsHealthy(), "should stay healthy before threshold")
	}
	e.RecordFailure()
	assert.False(t, e.IsHealthy())
}

func TestRecordSuccessResetsConsecutiveFailuresAndHealth(t *testing.T) {
	e := testEndpoint(10)
	for i := 0; i < config.UnhealthyThreshold; i++ {
		e.RecordFailure()
	}
	require.False(t, e.IsHealthy())

	e.RecordSuccess(10 * time.Millisecond)
	assert.EqualValues(t, 0, e.Snapshot().ConsecutiveFailures)
	assert.True(t, e.IsHealthy())
	assert.Equal(t, float64(10), e.AvgLatencyMs())
}

func TestShouldRetryHonorsCooldown(t *testing.T) {
	e := testEndpoint(10)
	for i := 0; i < config.UnhealthyThreshold; i++ {
		e.RecordFailure()
	}
	require.False(t, e.IsHealthy())

	assert.False(t, e.ShouldRetry(time.Hour))
	assert.True(t, e.ShouldRetry(0))
}

func TestAvgLatencyMsZeroWithNoSuccesses(t *testing.T) {
	e := testEndpoint(10)
	assert.Equal(t, float64(0), e.AvgLatencyMs())
}
