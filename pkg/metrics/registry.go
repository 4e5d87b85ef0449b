// Package metrics implements the scheduler's lock-free counter/gauge
// registry and its text-format rendering, matching the exact schema
// consumed by the HTTP exposer's /metrics handler.
package metrics

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// Registry holds atomic counters and gauges for one kernel instance.
type Registry struct {
	submitted       atomic.Int64
	rejected        atomic.Int64
	succeeded       atomic.Int64
	failed          atomic.Int64
	timeout         atomic.Int64
	launchFailed    atomic.Int64
	pressureBlocked atomic.Int64
	queueWaitTotal  atomic.Int64
	queueWaitCount  atomic.Int64

	running        atomic.Int64
	pending        atomic.Int64
	pressureActive atomic.Int64
	queueWaitMax   atomic.Int64
}

// New returns an empty Registry.
func New() *Registry { return &Registry{} }

func (r *Registry) IncSubmitted()    { r.submitted.Add(1) }
func (r *Registry) IncRejected()     { r.rejected.Add(1) }
func (r *Registry) IncSucceeded()    { r.succeeded.Add(1) }
func (r *Registry) IncFailed()       { r.failed.Add(1) }
func (r *Registry) IncTimeout()      { r.timeout.Add(1) }
func (r *Registry) IncLaunchFailed() { r.launchFailed.Add(1) }
func (r *Registry) IncPressureBlocked() { r.pressureBlocked.Add(1) }

func (r *Registry) IncRunning() { r.running.Add(1) }
func (r *Registry) DecRunning() { r.running.Add(-1) }

// SetPending sets the pending gauge to n. Callers must invoke this after
// every mutation of the pending queue — see SPEC_FULL.md §9.1.
func (r *Registry) SetPending(n int) { r.pending.Store(int64(n)) }

func (r *Registry) SetPressureActive(active bool) {
	v := int64(0)
	if active {
		v = 1
	}
	r.pressureActive.Store(v)
}

// RecordQueueWait adds ms to the running total, increments the count, and
// monotonically raises the max via compare-and-swap.
func (r *Registry) RecordQueueWait(ms int64) {
	r.queueWaitTotal.Add(ms)
	r.queueWaitCount.Add(1)
	for {
		prev := r.queueWaitMax.Load()
		if ms <= prev {
			return
		}
		if r.queueWaitMax.CompareAndSwap(prev, ms) {
			return
		}
	}
}

// Snapshot is a point-in-time, not-necessarily-consistent read of every
// counter and gauge.
type Snapshot struct {
	Submitted       int64
	Rejected        int64
	Succeeded       int64
	Failed          int64
	Timeout         int64
	LaunchFailed    int64
	PressureBlocked int64
	QueueWaitTotal  int64
	QueueWaitCount  int64
	Running         int64
	Pending         int64
	PressureActive  int64
	QueueWaitMax    int64
}

func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		Submitted:       r.submitted.Load(),
		Rejected:        r.rejected.Load(),
		Succeeded:       r.succeeded.Load(),
		Failed:          r.failed.Load(),
		Timeout:         r.timeout.Load(),
		LaunchFailed:    r.launchFailed.Load(),
		PressureBlocked: r.pressureBlocked.Load(),
		QueueWaitTotal:  r.queueWaitTotal.Load(),
		QueueWaitCount:  r.queueWaitCount.Load(),
		Running:         r.running.Load(),
		Pending:         r.pending.Load(),
		PressureActive:  r.pressureActive.Load(),
		QueueWaitMax:    r.queueWaitMax.Load(),
	}
}

// ToText renders the registry in the exact line-oriented format specified
// for GET /metrics.
func (r *Registry) ToText() string {
	s := r.Snapshot()
	var b strings.Builder
	writeLine := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	i := strconv.FormatInt

	writeLine("# TYPE tasks_total counter")
	writeLine(`tasks_total{status="submitted"} ` + i(s.Submitted, 10))
	writeLine(`tasks_total{status="rejected"} ` + i(s.Rejected, 10))
	writeLine(`tasks_total{status="succeeded"} ` + i(s.Succeeded, 10))
	writeLine(`tasks_total{status="failed"} ` + i(s.Failed, 10))
	writeLine(`tasks_total{status="timeout"} ` + i(s.Timeout, 10))
	writeLine(`tasks_total{status="launch_failed"} ` + i(s.LaunchFailed, 10))
	writeLine("# TYPE tasks_running_current gauge")
	writeLine("tasks_running_current " + i(s.Running, 10))
	writeLine("# TYPE tasks_pending_current gauge")
	writeLine("tasks_pending_current " + i(s.Pending, 10))
	writeLine("# TYPE tasks_pressure_blocked_total counter")
	writeLine("tasks_pressure_blocked_total " + i(s.PressureBlocked, 10))
	writeLine("# TYPE tasks_pressure_active gauge")
	writeLine("tasks_pressure_active " + i(s.PressureActive, 10))
	writeLine("# TYPE tasks_queue_wait_ms_total counter")
	writeLine("tasks_queue_wait_ms_total " + i(s.QueueWaitTotal, 10))
	writeLine("# TYPE tasks_queue_wait_count counter")
	writeLine("tasks_queue_wait_count " + i(s.QueueWaitCount, 10))
	writeLine("# TYPE tasks_queue_wait_ms_max gauge")
	writeLine("tasks_queue_wait_ms_max " + i(s.QueueWaitMax, 10))

	return b.String()
}
