// Package spec defines the scheduler's plain data types: job
// specifications, job records, and kernel configuration. It has no
// dependency on the kernel, the store, or any other stateful component,
// so both pkg/store and pkg/scheduler can import it without a cycle.
package spec

import "time"

// JobSpec is an immutable job submission.
type JobSpec struct {
	Cmd        string
	CPUCores   int
	MemoryMB   int
	TimeoutSec int
	Priority   int
}

// Status is a job's lifecycle state.
type Status int

const (
	Pending Status = iota
	Running
	Succeeded
	Failed
	Timeout
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Job is a kernel-owned tracked instance of a JobSpec.
type Job struct {
	ID     int
	Spec   JobSpec
	Status Status

	PID, PGID int

	SigtermSent  bool
	KillDeadline time.Time // zero value means unset

	EnqueueTime time.Time
	StartTime   time.Time
	EndTime     time.Time

	ExitCode   int
	CgroupPath string
}

// ResourceQuota is the fixed cap a Kernel is constructed with.
type ResourceQuota struct {
	TotalCPU   int
	TotalMemMB int
}

// CgroupConfig controls cgroup-v2 confinement.
type CgroupConfig struct {
	Enabled     bool
	BasePath    string
	CPUPeriodUS int
}

// Options is the immutable configuration a Kernel is constructed with.
type Options struct {
	Quota  ResourceQuota
	Cgroup CgroupConfig

	MaxQueueSize int
	KillGraceSec int

	EnablePriority   bool
	EnablePSIMonitor bool

	CmdWhitelist []string
	CmdBlacklist []string

	Workdir string

	MetricsHTTPPort int
	// PromPort, if > 0, serves the second, independent Prometheus host
	// gauge endpoint described in SPEC_FULL.md §4.D.1. <= 0 disables it.
	PromPort int

	RlimitNofile    int
	DisableCoreDump bool

	EnablePersistence bool
	DBPath            string

	EnableCron  bool
	CronTickMs  int

	// LogLevel/LogJSON configure pkg/log.Init when the CLI front end
	// constructs a Kernel. The Kernel itself never calls log.Init; this
	// is plumbed through by cmd/taskscheduler only.
	LogLevel string
	LogJSON  bool

	// ShutdownGracePeriod bounds how long Stop() waits for the background
	// loops to join before returning; stopping the metrics exposer, which
	// happens first, is not covered by this bound. It does not
	// affect in-flight children, which Stop() never signals or waits on.
	ShutdownGracePeriod time.Duration
}

// DefaultOptions returns the reference defaults from the original
// scheduler's SchedulerOptions.
func DefaultOptions() Options {
	return Options{
		Quota:               ResourceQuota{TotalCPU: 4, TotalMemMB: 2048},
		Cgroup:              CgroupConfig{Enabled: false, BasePath: "/sys/fs/cgroup/scheduler", CPUPeriodUS: 100000},
		MaxQueueSize:        1000,
		KillGraceSec:        2,
		MetricsHTTPPort:     -1,
		PromPort:            -1,
		RlimitNofile:        -1,
		DisableCoreDump:     true,
		DBPath:              "state/tasks.db",
		CronTickMs:          1000,
		ShutdownGracePeriod: 5 * time.Second,
	}
}
