package resource

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountant_ReserveWithinQuota(t *testing.T) {
	a := New(Quota{TotalCPU: 2, TotalMemMB: 512})

	ok := a.Reserve(1, 256)
	require.True(t, ok)

	cpu, mem := a.Used()
	assert.Equal(t, 1, cpu)
	assert.Equal(t, 256, mem)
}

func TestAccountant_ReserveRejectsOverQuota(t *testing.T) {
	a := New(Quota{TotalCPU: 1, TotalMemMB: 256})

	require.True(t, a.Reserve(1, 200))
	assert.False(t, a.Reserve(1, 10), "cpu would exceed quota")

	cpu, mem := a.Used()
	assert.Equal(t, 1, cpu)
	assert.Equal(t, 200, mem)
}

func TestAccountant_ReserveIsAllOrNothing(t *testing.T) {
	a := New(Quota{TotalCPU: 2, TotalMemMB: 100})

	// cpu fits but mem doesn't: neither counter should move.
	ok := a.Reserve(1, 200)
	assert.False(t, ok)

	cpu, mem := a.Used()
	assert.Zero(t, cpu)
	assert.Zero(t, mem)
}

func TestAccountant_ReleaseSaturatesAtZero(t *testing.T) {
	a := New(Quota{TotalCPU: 1, TotalMemMB: 128})

	a.Release(5, 999)

	cpu, mem := a.Used()
	assert.Zero(t, cpu)
	assert.Zero(t, mem)
}

func TestAccountant_ConcurrentReserveNeverExceedsQuota(t *testing.T) {
	a := New(Quota{TotalCPU: 4, TotalMemMB: 4096})

	var wg sync.WaitGroup
	var admitted int32
	var mu sync.Mutex

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.Reserve(1, 1024) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	cpu, mem := a.Used()
	assert.LessOrEqual(t, cpu, 4)
	assert.LessOrEqual(t, mem, 4096)
	assert.EqualValues(t, admitted, cpu)
}
