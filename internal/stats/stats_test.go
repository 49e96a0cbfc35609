package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordSuccessAndFailureAccumulate(t *testing.T) {
	tr := New(0)

	tr.RecordSuccess(10 * time.Millisecond)
	tr.RecordSuccess(30 * time.Millisecond)
	tr.RecordFailure()

	snap := tr.Snapshot()
	assert.EqualValues(t, 3, snap.TotalProcessed)
	assert.EqualValues(t, 2, snap.SuccessCount)
	assert.EqualValues(t, 1, snap.FailureCount)
	assert.InDelta(t, 20, snap.AvgLatencyMs, 0.001)
}

func TestSnapshotProgressRequiresTotalLines(t *testing.T) {
	tr := New(4)
	tr.RecordSuccess(time.Millisecond)
	snap := tr.Snapshot()
	assert.InDelta(t, 0.25, snap.Progress, 0.0001)

	tr2 := New(0)
	tr2.RecordSuccess(time.Millisecond)
	assert.Zero(t, tr2.Snapshot().Progress)
}

func TestInstantaneousRPSDropsOldEntries(t *testing.T) {
	tr := New(0)
	tr.RecordSuccess(time.Millisecond)
	assert.Equal(t, 1, tr.InstantaneousRPS())

	tr.windowMu.Lock()
	tr.window[0] = time.Now().Add(-2 * time.Second)
	tr.windowMu.Unlock()

	tr.RecordSuccess(time.Millisecond)
	assert.Equal(t, 1, tr.InstantaneousRPS())
}
