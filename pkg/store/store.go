// Package store implements the scheduler's durable job record, backed by
// bbolt (go.etcd.io/bbolt), the embedded single-file KV store used
// elsewhere in this codebase's lineage for exactly this "JSON blob per
// key in a bucket" persistence shape.
package store

import "github.com/ja7ad/taskscheduler/pkg/scheduler/spec"

// Status is the persisted lifecycle state of a job record. It is distinct
// from scheduler/spec.Status: the store additionally distinguishes
// LaunchFailed, which the in-memory Job never represents because a
// launch-failed job is dropped rather than kept.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusRunning      Status = "running"
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
	StatusTimeout      Status = "timeout"
	StatusLaunchFailed Status = "launch_failed"
)

// Record is one persisted job.
type Record struct {
	ID       int
	Spec     spec.JobSpec
	Status   Status
	SubmitMs int64
	StartMs  int64
	EndMs    int64
	ExitCode int
}

// Store is the durable job record interface the kernel depends on.
// Persistence failures must never abort a submit: every method reports
// failure via its return value/bool and the kernel proceeds as if
// persistence were disabled for that call.
type Store interface {
	// Init idempotently prepares persistent state at path.
	Init(path string) error

	// Insert records a new job submission under the kernel-assigned id.
	// The kernel owns id allocation (spec.Options has no durable sequence
	// of its own) so in-memory and persisted ids never diverge; ok is
	// false on failure.
	Insert(id int, s spec.JobSpec, submitMs int64) (ok bool)

	// Update records a status transition for id.
	Update(id int, status Status, exitCode int, startMs, endMs int64) bool

	// LoadUnfinished returns every record whose last recorded status is
	// queued or running.
	LoadUnfinished() ([]Record, error)

	// Close releases the underlying file handle.
	Close() error
}
