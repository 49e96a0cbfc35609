package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntilReadyAllowsImmediateFirstToken(t *testing.T) {
	l := New(1000)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, l.UntilReady(ctx))
}

func TestUntilReadyRespectsContextCancellation(t *testing.T) {
	l := New(1)
	require.NoError(t, l.UntilReady(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := l.UntilReady(ctx)
	assert.Error(t, err)
}

func TestNewClampsNonPositiveRate(t *testing.T) {
	l := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, l.UntilReady(ctx))
}
