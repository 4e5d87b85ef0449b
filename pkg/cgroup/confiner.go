//go:build linux

package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ja7ad/taskscheduler/pkg/log"
	"github.com/ja7ad/taskscheduler/pkg/types"
)

// Config controls confinement for a job's cgroup-v2 directory.
type Config struct {
	Enabled     bool
	BasePath    string
	CPUPeriodUS int
}

// Confiner creates, populates, and destroys per-job cgroup-v2 directories.
//
// It is best-effort throughout: a failure to create or populate a cgroup is
// logged and the caller proceeds without (full) confinement for that job,
// mirroring create_cgroup_for_job/attach_pid_to_cgroup/cleanup_cgroup in the
// reference scheduler.
type Confiner struct {
	cfg     Config
	version Version
}

// NewConfiner returns a Confiner for the given config. A zero-value Config
// with Enabled=false is valid; Create then always returns "". When Enabled,
// it runs Detect once up front: Create writes the v2 file layout
// (cpu.max/memory.max) only when a v2 (or hybrid) hierarchy is actually
// mounted, since those files don't exist under a v1-only hierarchy.
func NewConfiner(cfg Config) *Confiner {
	c := &Confiner{cfg: cfg}
	if !cfg.Enabled {
		return c
	}
	v, detail, err := Detect()
	if err != nil {
		log.WithComponent("cgroup").Warn().Err(err).Msg("cgroup version detection failed; confinement disabled")
		v = Unsupported
	}
	c.version = v
	switch v {
	case V2, Hybrid:
		log.WithComponent("cgroup").Info().Str("version", v.String()).Str("detail", detail).Msg("cgroup hierarchy detected; confinement enabled")
	default:
		log.WithComponent("cgroup").Warn().Str("version", v.String()).Str("detail", detail).Msg("no cgroup v2 hierarchy detected; confinement disabled")
	}
	return c
}

// Create makes base_path/job_<id>/, writes cpu.max and memory.max, and
// returns the directory path. It returns "" if no v2 (or hybrid) hierarchy
// was detected, or if the directory itself could not be created; per-file
// write failures are logged and ignored.
func (c *Confiner) Create(jobID, cpuCores, memMB int) string {
	if c.version != V2 && c.version != Hybrid {
		return ""
	}
	dir := filepath.Join(c.cfg.BasePath, fmt.Sprintf("job_%d", jobID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithComponent("cgroup").Warn().Err(err).Str("dir", dir).Msg("failed to create cgroup dir")
		return ""
	}

	quota := int64(cpuCores) * int64(c.cfg.CPUPeriodUS)
	if err := writeFile(filepath.Join(dir, "cpu.max"), fmt.Sprintf("%d %d", quota, c.cfg.CPUPeriodUS)); err != nil {
		log.WithComponent("cgroup").Warn().Err(err).Msg("failed to write cpu.max")
	}

	bytes := types.ToBytes(uint64(memMB) * 1024 * 1024)
	if err := writeFile(filepath.Join(dir, "memory.max"), strconv.FormatUint(bytes.ToUin64(), 10)); err != nil {
		log.WithComponent("cgroup").Warn().Err(err).Msg("failed to write memory.max")
	}

	return dir
}

// Attach appends pid to <path>/cgroup.procs. A no-op (returning nil) when
// path is empty.
func (c *Confiner) Attach(pid int, path string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(path, "cgroup.procs"), os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = fmt.Fprintf(f, "%d\n", pid)
	return err
}

// Cleanup recursively removes path, logging but ignoring failure.
func (c *Confiner) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.RemoveAll(path); err != nil {
		log.WithComponent("cgroup").Warn().Err(err).Str("dir", path).Msg("failed to cleanup cgroup")
	}
}

func writeFile(path, value string) error {
	return os.WriteFile(path, []byte(value), 0o644)
}
