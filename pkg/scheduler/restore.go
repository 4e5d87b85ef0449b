//go:build linux

package scheduler

import (
	"time"

	"github.com/ja7ad/taskscheduler/pkg/log"
	"github.com/ja7ad/taskscheduler/pkg/scheduler/spec"
)

// restoreFromStore drains every unfinished record into pending as fresh
// Pending entries and raises nextID above every restored id, preserving
// the id-monotonicity invariant across a restart.
func (k *Kernel) restoreFromStore() {
	if k.db == nil {
		return
	}
	records, err := k.db.LoadUnfinished()
	if err != nil {
		log.WithComponent("scheduler").Warn().Err(err).Msg("failed to load unfinished jobs; starting with an empty queue")
		return
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	now := time.Now()
	for _, rec := range records {
		k.pushPendingLocked(spec.Job{
			ID:          rec.ID,
			Spec:        rec.Spec,
			Status:      spec.Pending,
			EnqueueTime: now,
		})
		if rec.ID >= k.nextID {
			k.nextID = rec.ID + 1
		}
	}
	if len(records) > 0 {
		log.WithComponent("scheduler").Info().Int("count", len(records)).Msg("restored unfinished jobs")
	}
}
