//go:build linux

package scheduler

import (
	"syscall"
	"time"

	"github.com/ja7ad/taskscheduler/pkg/log"
	"github.com/ja7ad/taskscheduler/pkg/scheduler/spec"
	"github.com/ja7ad/taskscheduler/pkg/store"
)

const reapInterval = 100 * time.Millisecond

// reaperLoop enforces timeouts and classifies terminated children. It runs
// entirely under k.mu for the duration of each pass: submits and dispatch
// block briefly, which is acceptable at 100ms resolution (spec.md §4.G).
func (k *Kernel) reaperLoop() {
	defer k.wg.Done()
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-k.shutdown:
			return
		case <-ticker.C:
			runGuarded("reaper", func() bool { k.reapOnce(); return false })
		}
	}
}

func (k *Kernel) reapOnce() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.drainExitedLocked()
	k.enforceTimeoutsLocked()
}

// drainExitedLocked pulls every pending exitEvent without blocking,
// classifies the job, releases its reservation, and erases it from
// running. Callers must hold k.mu.
func (k *Kernel) drainExitedLocked() {
	for {
		select {
		case ev := <-k.exited:
			k.finishJobLocked(ev)
		default:
			return
		}
	}
}

func (k *Kernel) finishJobLocked(ev exitEvent) {
	job, ok := k.running[ev.id]
	if !ok {
		return
	}
	now := time.Now()
	job.EndTime = now

	var (
		status      spec.Status
		storeStatus store.Status
		exitCode    int
	)
	switch {
	case job.SigtermSent:
		status, storeStatus = spec.Timeout, store.StatusTimeout
		k.registry.IncTimeout()
	case ev.state != nil && ev.state.ExitCode() == 0:
		status, storeStatus = spec.Succeeded, store.StatusSucceeded
		k.registry.IncSucceeded()
	default:
		status, storeStatus = spec.Failed, store.StatusFailed
		k.registry.IncFailed()
	}
	if ev.state != nil {
		exitCode = ev.state.ExitCode()
	} else if ev.err != nil {
		log.WithJobID(log.WithComponent("scheduler"), job.ID).Warn().Err(ev.err).Msg("wait failed; classifying as failed")
	}
	job.Status = status
	job.ExitCode = exitCode

	k.accountant.Release(job.Spec.CPUCores, job.Spec.MemoryMB)
	k.registry.DecRunning()

	if k.confiner != nil && job.CgroupPath != "" {
		k.confiner.Cleanup(job.CgroupPath)
	}
	if k.db != nil {
		k.db.Update(job.ID, storeStatus, exitCode, job.StartTime.UnixMilli(), now.UnixMilli())
	}

	log.WithJobID(log.WithComponent("scheduler"), job.ID).Info().Str("status", status.String()).Int("exit_code", exitCode).Msg("job finished")
	delete(k.running, ev.id)
}

// enforceTimeoutsLocked sends SIGTERM to jobs whose timeout has elapsed
// and SIGKILL to jobs already past their kill grace deadline. Callers must
// hold k.mu.
func (k *Kernel) enforceTimeoutsLocked() {
	now := time.Now()
	for _, job := range k.runningSorted() {
		if job.Spec.TimeoutSec <= 0 {
			continue
		}
		elapsed := now.Sub(job.StartTime)
		switch {
		case !job.SigtermSent && elapsed >= time.Duration(job.Spec.TimeoutSec)*time.Second:
			if err := syscall.Kill(-job.PGID, syscall.SIGTERM); err != nil {
				log.WithJobID(log.WithComponent("scheduler"), job.ID).Warn().Err(err).Msg("sigterm failed")
			}
			job.SigtermSent = true
			job.KillDeadline = now.Add(time.Duration(k.opts.KillGraceSec) * time.Second)
		case job.SigtermSent && !job.KillDeadline.IsZero() && !now.Before(job.KillDeadline):
			if err := syscall.Kill(-job.PGID, syscall.SIGKILL); err != nil {
				log.WithJobID(log.WithComponent("scheduler"), job.ID).Warn().Err(err).Msg("sigkill failed")
			}
		}
	}
}
