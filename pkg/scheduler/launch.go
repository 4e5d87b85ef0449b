//go:build linux

package scheduler

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/ja7ad/taskscheduler/pkg/log"
	"github.com/ja7ad/taskscheduler/pkg/scheduler/spec"
	"github.com/ja7ad/taskscheduler/pkg/store"
)

// exitEvent is delivered by waitForExit when a supervised child terminates.
// Go has no non-blocking waitpid; a goroutine blocked in cmd.Wait feeding a
// channel the reaper drains without blocking is the idiomatic substitute.
type exitEvent struct {
	id    int
	state *os.ProcessState
	err   error
}

// launchJob runs under k.mu. It creates the job's cgroup, forks the child
// via os/exec, and on success moves job into k.running. It returns false
// when the child could not be started at all — the caller releases the
// reservation and drops the job without requeueing, per spec.
func (k *Kernel) launchJob(job spec.Job) bool {
	if k.confiner != nil {
		job.CgroupPath = k.confiner.Create(job.ID, job.Spec.CPUCores, job.Spec.MemoryMB)
	}

	shellCmd := job.Spec.Cmd
	if k.opts.RlimitNofile >= 0 {
		shellCmd = fmt.Sprintf("ulimit -n %d; %s", k.opts.RlimitNofile, shellCmd)
	}
	if k.opts.DisableCoreDump {
		shellCmd = "ulimit -c 0; " + shellCmd
	}

	cmd := exec.Command("/bin/sh", "-c", shellCmd)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if k.opts.Workdir != "" {
		cmd.Dir = k.opts.Workdir
	}

	if err := cmd.Start(); err != nil {
		k.registry.IncLaunchFailed()
		log.WithJobID(log.WithComponent("scheduler"), job.ID).Error().Err(err).Msg("fork failed, dropping job")
		if job.CgroupPath != "" {
			k.confiner.Cleanup(job.CgroupPath)
		}
		if k.db != nil {
			k.db.Update(job.ID, store.StatusLaunchFailed, 0, 0, 0)
		}
		return false
	}

	job.PID = cmd.Process.Pid
	job.PGID = cmd.Process.Pid // Setpgid(0,0) equivalent: pgid == pid
	job.StartTime = time.Now()
	job.Status = spec.Running

	if job.CgroupPath != "" {
		if err := k.confiner.Attach(job.PID, job.CgroupPath); err != nil {
			log.WithJobID(log.WithComponent("scheduler"), job.ID).Warn().Err(err).Msg("failed to attach pid to cgroup")
		}
	}

	jp := job
	k.running[job.ID] = &jp
	k.registry.IncRunning()
	if k.db != nil {
		k.db.Update(job.ID, store.StatusRunning, 0, job.StartTime.UnixMilli(), 0)
	}

	go k.waitForExit(job.ID, cmd)

	return true
}

// waitForExit blocks in cmd.Wait and reports the result on k.exited. It
// runs outside the kernel mutex for the lifetime of the child.
func (k *Kernel) waitForExit(id int, cmd *exec.Cmd) {
	err := cmd.Wait()
	k.exited <- exitEvent{id: id, state: cmd.ProcessState, err: err}
}
