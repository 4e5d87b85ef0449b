package metrics

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ToTextFormat(t *testing.T) {
	r := New()
	r.IncSubmitted()
	r.IncSucceeded()
	r.SetPending(3)
	r.IncRunning()
	r.RecordQueueWait(150)

	text := r.ToText()

	assert.Contains(t, text, `tasks_total{status="submitted"} 1`)
	assert.Contains(t, text, `tasks_total{status="succeeded"} 1`)
	assert.Contains(t, text, `tasks_total{status="failed"} 0`)
	assert.Contains(t, text, "tasks_running_current 1")
	assert.Contains(t, text, "tasks_pending_current 3")
	assert.Contains(t, text, "tasks_queue_wait_ms_total 150")
	assert.Contains(t, text, "tasks_queue_wait_count 1")
	assert.Contains(t, text, "tasks_queue_wait_ms_max 150")

	require.True(t, strings.HasPrefix(text, "# TYPE tasks_total counter\n"))
}

func TestRegistry_RecordQueueWaitTracksMax(t *testing.T) {
	r := New()
	r.RecordQueueWait(10)
	r.RecordQueueWait(500)
	r.RecordQueueWait(20)

	snap := r.Snapshot()
	assert.EqualValues(t, 500, snap.QueueWaitMax)
	assert.EqualValues(t, 530, snap.QueueWaitTotal)
	assert.EqualValues(t, 3, snap.QueueWaitCount)
}

func TestRegistry_CountersAreMonotonicUnderConcurrency(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.IncSubmitted()
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 200, r.Snapshot().Submitted)
}

func TestRegistry_PressureActiveGauge(t *testing.T) {
	r := New()
	assert.EqualValues(t, 0, r.Snapshot().PressureActive)

	r.SetPressureActive(true)
	assert.EqualValues(t, 1, r.Snapshot().PressureActive)

	r.SetPressureActive(false)
	assert.EqualValues(t, 0, r.Snapshot().PressureActive)
}
