//go:build linux

package scheduler

import "time"

const (
	pressureBackoff    = 100 * time.Millisecond
	reservationBackoff = 50 * time.Millisecond
)

// dispatcherLoop moves jobs from pending to running. It waits on k.wake
// (the channel analogue of the condition variable) until pending becomes
// non-empty or shutdown is signalled.
func (k *Kernel) dispatcherLoop() {
	defer k.wg.Done()
	for {
		select {
		case <-k.shutdown:
			return
		case <-k.wake:
		}
		for runGuarded("dispatcher", k.dispatchOnce) {
		}
	}
}

// dispatchOnce attempts to dispatch a single job. It returns true if the
// dispatcher should immediately retry (there may be more work), false if
// it should go back to waiting on wake.
func (k *Kernel) dispatchOnce() bool {
	select {
	case <-k.shutdown:
		return false
	default:
	}

	k.mu.Lock()

	if len(k.pending) == 0 {
		k.mu.Unlock()
		return false
	}

	if k.psiActive {
		k.registry.IncPressureBlocked()
		k.mu.Unlock()
		time.Sleep(pressureBackoff)
		return true
	}

	job, ok := k.popPendingLocked()
	if !ok {
		k.mu.Unlock()
		return false
	}

	waitMs := time.Since(job.EnqueueTime).Milliseconds()
	k.registry.RecordQueueWait(waitMs)

	if !k.accountant.Reserve(job.Spec.CPUCores, job.Spec.MemoryMB) {
		k.pushPendingLocked(job)
		k.mu.Unlock()
		time.Sleep(reservationBackoff)
		return true
	}

	launched := k.launchJob(job)
	k.mu.Unlock()

	if !launched {
		k.accountant.Release(job.Spec.CPUCores, job.Spec.MemoryMB)
	}
	return true
}
