//go:build linux

package scheduler

import (
	"time"

	"github.com/ja7ad/taskscheduler/pkg/scheduler/spec"
)

// cronLoop ticks the periodic trigger every CronTickMs, re-submitting due
// templates through the kernel's own Submit path. Runs only when
// EnableCron is set.
func (k *Kernel) cronLoop() {
	defer k.wg.Done()
	interval := time.Duration(k.opts.CronTickMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-k.shutdown:
			return
		case <-ticker.C:
			runGuarded("cron", func() bool {
				k.trigger.Tick(time.Now(), func(s spec.JobSpec) { _, _ = k.Submit(s) })
				return false
			})
		}
	}
}
