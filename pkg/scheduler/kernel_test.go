//go:build linux

package scheduler

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/taskscheduler/pkg/scheduler/spec"
)

func newTestOptions() spec.Options {
	o := spec.DefaultOptions()
	o.Quota = spec.ResourceQuota{TotalCPU: 2, TotalMemMB: 512}
	o.MaxQueueSize = 10
	o.KillGraceSec = 1
	o.MetricsHTTPPort = -1
	o.PromPort = -1
	return o
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

// Scenario 1: Basic.
func TestKernel_Basic(t *testing.T) {
	k := New(newTestOptions())
	require.NoError(t, k.Start())
	defer k.Stop()

	id, err := k.Submit(spec.JobSpec{Cmd: "echo test", CPUCores: 1, MemoryMB: 64, TimeoutSec: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	waitFor(t, 5*time.Second, k.Idle)

	snap := k.MetricsSnapshot()
	assert.EqualValues(t, 1, snap.Succeeded)
	assert.EqualValues(t, 0, snap.Failed)
	assert.EqualValues(t, 0, snap.Timeout)
}

// Scenario 2: Priority. Execution order must be B, C, A: B and C (priority
// 5) run before A (priority 0), and B runs before C on the id tie-break
// since both were submitted at the same priority.
func TestKernel_Priority(t *testing.T) {
	o := newTestOptions()
	o.Quota = spec.ResourceQuota{TotalCPU: 1, TotalMemMB: 256}
	o.EnablePriority = true
	k := New(o)
	require.NoError(t, k.Start())
	defer k.Stop()

	orderFile := filepath.Join(t.TempDir(), "order.log")
	appendCmd := func(label string) string {
		return fmt.Sprintf(`echo %s >> %q`, label, orderFile)
	}

	// Hold the single CPU slot so all three submissions land in pending
	// before the dispatcher can drain any of them.
	holderID, err := k.Submit(spec.JobSpec{Cmd: "sleep 0.3", CPUCores: 1, MemoryMB: 64})
	require.NoError(t, err)
	assert.Equal(t, 1, holderID)

	aID, _ := k.Submit(spec.JobSpec{Cmd: appendCmd("a"), CPUCores: 1, MemoryMB: 64, Priority: 0})
	bID, _ := k.Submit(spec.JobSpec{Cmd: appendCmd("b"), CPUCores: 1, MemoryMB: 64, Priority: 5})
	cID, _ := k.Submit(spec.JobSpec{Cmd: appendCmd("c"), CPUCores: 1, MemoryMB: 64, Priority: 5})
	require.Less(t, aID, bID)
	require.Less(t, bID, cID)

	waitFor(t, 5*time.Second, k.Idle)

	snap := k.MetricsSnapshot()
	assert.EqualValues(t, 4, snap.Succeeded)

	raw, err := os.ReadFile(orderFile)
	require.NoError(t, err)
	lines := strings.Fields(strings.TrimSpace(string(raw)))
	assert.Equal(t, []string{"b", "c", "a"}, lines)
}

// Scenario 3: Timeout.
func TestKernel_Timeout(t *testing.T) {
	o := newTestOptions()
	o.Quota = spec.ResourceQuota{TotalCPU: 1, TotalMemMB: 128}
	o.KillGraceSec = 1
	k := New(o)
	require.NoError(t, k.Start())
	defer k.Stop()

	start := time.Now()
	id, err := k.Submit(spec.JobSpec{Cmd: "sleep 10", CPUCores: 1, MemoryMB: 64, TimeoutSec: 1})
	require.NoError(t, err)
	require.Equal(t, 1, id)

	waitFor(t, 6*time.Second, k.Idle)
	elapsed := time.Since(start)

	snap := k.MetricsSnapshot()
	assert.EqualValues(t, 1, snap.Timeout)
	assert.GreaterOrEqual(t, elapsed, 1*time.Second)
	assert.LessOrEqual(t, elapsed, 4*time.Second)
}

// Scenario 4: Blacklist.
func TestKernel_Blacklist(t *testing.T) {
	o := newTestOptions()
	o.CmdBlacklist = []string{"rm"}
	k := New(o)
	require.NoError(t, k.Start())
	defer k.Stop()

	id, err := k.Submit(spec.JobSpec{Cmd: "rm -rf /tmp/x"})
	assert.Equal(t, -1, id)
	assert.ErrorIs(t, err, ErrCmdRejected)

	assert.EqualValues(t, 1, k.MetricsSnapshot().Rejected)
	assert.True(t, k.Idle())
}

// Scenario 5: Resource requeue.
func TestKernel_ResourceRequeue(t *testing.T) {
	o := newTestOptions()
	o.Quota = spec.ResourceQuota{TotalCPU: 1, TotalMemMB: 512}
	k := New(o)
	require.NoError(t, k.Start())
	defer k.Stop()

	aID, err := k.Submit(spec.JobSpec{Cmd: "sleep 1", CPUCores: 1, MemoryMB: 64})
	require.NoError(t, err)
	bID, err := k.Submit(spec.JobSpec{Cmd: "echo b", CPUCores: 1, MemoryMB: 64})
	require.NoError(t, err)
	require.Less(t, aID, bID)

	// Briefly poll to confirm at most one job is ever running at once.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !k.Idle() {
		k.mu.Lock()
		running := len(k.running)
		k.mu.Unlock()
		assert.LessOrEqual(t, running, 1)
		time.Sleep(10 * time.Millisecond)
	}

	waitFor(t, 3*time.Second, k.Idle)
	assert.EqualValues(t, 2, k.MetricsSnapshot().Succeeded)
}

// Scenario 6: HTTP metrics.
func TestKernel_HTTPMetrics(t *testing.T) {
	o := newTestOptions()
	o.MetricsHTTPPort = 18080 + (time.Now().Nanosecond() % 1000)
	k := New(o)
	require.NoError(t, k.Start())
	defer k.Stop()

	id, err := k.Submit(spec.JobSpec{Cmd: "echo test", CPUCores: 1, MemoryMB: 64})
	require.NoError(t, err)
	require.Equal(t, 1, id)

	waitFor(t, 5*time.Second, k.Idle)

	body := scrape(t, o.MetricsHTTPPort)
	assert.Contains(t, body, `tasks_total{status="succeeded"} 1`)
}

func scrape(t *testing.T, port int) string {
	t.Helper()
	var body string
	waitFor(t, 2*time.Second, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", port))
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(b)
		return true
	})
	return body
}

func TestKernel_IDMonotonicity(t *testing.T) {
	k := New(newTestOptions())
	require.NoError(t, k.Start())
	defer k.Stop()

	prev := 0
	for i := 0; i < 5; i++ {
		id, err := k.Submit(spec.JobSpec{Cmd: "echo x", CPUCores: 1, MemoryMB: 1})
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestKernel_QueueFull(t *testing.T) {
	o := newTestOptions()
	o.MaxQueueSize = 3
	k := New(o)
	// Deliberately do not Start: no dispatcher goroutine means admitted
	// jobs simply accumulate in pending.

	admitted := 0
	rejected := 0
	for i := 0; i < 4; i++ {
		_, err := k.Submit(spec.JobSpec{Cmd: "echo x"})
		if err == nil {
			admitted++
		} else {
			rejected++
		}
	}
	assert.Equal(t, 3, admitted)
	assert.Equal(t, 1, rejected)
}
