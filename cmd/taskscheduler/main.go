//go:build linux

// Command taskscheduler runs the scheduler kernel as a standalone
// process: submit one job from the command line, or run in --serve mode
// as a long-lived daemon that only accepts submissions through whatever
// front end the operator wires up (the HTTP exposer exports metrics only;
// job submission is a library call, not a documented RPC — see
// SPEC_FULL.md §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ja7ad/taskscheduler/pkg/log"
	"github.com/ja7ad/taskscheduler/pkg/scheduler"
	"github.com/ja7ad/taskscheduler/pkg/scheduler/spec"
)

type cliOpts struct {
	cmd        string
	cpu        int
	mem        int
	timeoutSec int
	priority   int

	totalCPU   int
	totalMemMB int

	cgroupEnabled bool
	cgroupBase    string
	cpuPeriodUS   int

	maxQueueSize   int
	killGraceSec   int
	enablePriority bool
	enablePSI      bool

	whitelist []string
	blacklist []string
	workdir   string

	metricsPort int
	promPort    int

	rlimitNofile    int
	disableCoreDump bool

	enablePersistence bool
	dbPath            string

	enableCron  bool
	cronTickMs  int
	cronEvery   string

	serve            bool
	logLevel         string
	logJSON          bool
	shutdownGraceSec int
}

func main() {
	var o cliOpts

	root := &cobra.Command{
		Use:   "taskscheduler",
		Short: "Single-host shell-command task scheduler",
		Long: `taskscheduler accepts shell-command jobs under a CPU/memory quota,
optionally confines them with a cgroup-v2 directory, supervises their
lifetime (timeout via SIGTERM then SIGKILL), persists state for
crash-restart recovery, and exposes a minimal metrics endpoint.

* GitHub: https://github.com/ja7ad/taskscheduler

Examples:
  taskscheduler --cmd "echo hello" --cpu 1 --mem 64 --timeout 5
  taskscheduler --serve --metrics-port 9090 --persist --db state/tasks.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o)
		},
	}

	f := root.Flags()
	f.StringVar(&o.cmd, "cmd", "", "shell command to submit (required unless --serve with no job)")
	f.IntVar(&o.cpu, "cpu", 1, "CPU cores requested by the job")
	f.IntVar(&o.mem, "mem", 64, "memory in MB requested by the job")
	f.IntVar(&o.timeoutSec, "timeout", 0, "job timeout in seconds (0 = no timeout)")
	f.IntVar(&o.priority, "priority", 0, "job priority (higher runs first when --priority-queue is set)")

	f.IntVar(&o.totalCPU, "quota-cpu", 4, "total CPU cores available to the kernel")
	f.IntVar(&o.totalMemMB, "quota-mem", 2048, "total memory in MB available to the kernel")

	f.BoolVar(&o.cgroupEnabled, "cgroup", false, "confine jobs with per-job cgroup-v2 directories")
	f.StringVar(&o.cgroupBase, "cgroup-base", "/sys/fs/cgroup/scheduler", "base path for per-job cgroup directories")
	f.IntVar(&o.cpuPeriodUS, "cgroup-cpu-period-us", 100000, "cgroup cpu.max period in microseconds")

	f.IntVar(&o.maxQueueSize, "max-queue", 1000, "maximum pending queue size")
	f.IntVar(&o.killGraceSec, "kill-grace", 2, "seconds between SIGTERM and SIGKILL on timeout")
	f.BoolVar(&o.enablePriority, "priority-queue", false, "use priority queue discipline instead of FIFO")
	f.BoolVar(&o.enablePSI, "psi-monitor", false, "enable memory pressure backpressure (reads cgroup-base/memory.pressure)")

	f.StringSliceVar(&o.whitelist, "whitelist", nil, "allowed command binaries (empty = allow all)")
	f.StringSliceVar(&o.blacklist, "blacklist", nil, "blocked command binaries")
	f.StringVar(&o.workdir, "workdir", "", "working directory for submitted jobs")

	f.IntVar(&o.metricsPort, "metrics-port", -1, "port for the GET /metrics exposer (<=0 disables it)")
	f.IntVar(&o.promPort, "prom-port", -1, "port for the independent Prometheus host-gauge endpoint (<=0 disables it)")

	f.IntVar(&o.rlimitNofile, "rlimit-nofile", -1, "RLIMIT_NOFILE applied to jobs via shell ulimit (<0 leaves it unset)")
	f.BoolVar(&o.disableCoreDump, "disable-core-dump", true, "zero RLIMIT_CORE for jobs via shell ulimit")

	f.BoolVar(&o.enablePersistence, "persist", false, "enable durable job persistence")
	f.StringVar(&o.dbPath, "db", "state/tasks.db", "durable store path")

	f.BoolVar(&o.enableCron, "cron", false, "enable the periodic trigger loop")
	f.IntVar(&o.cronTickMs, "cron-tick-ms", 1000, "periodic trigger tick interval in milliseconds")
	f.StringVar(&o.cronEvery, "cron-every", "", `register one periodic template using --cmd, e.g. "@every 30s"`)

	f.BoolVar(&o.serve, "serve", false, "keep running after the submitted job (or with no job at all) instead of exiting once idle")
	f.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.BoolVar(&o.logJSON, "log-json", false, "emit logs as JSON instead of console format")
	f.IntVar(&o.shutdownGraceSec, "shutdown-grace-sec", 5, "seconds Stop waits for background loops to join before returning")

	if err := root.Execute(); err != nil {
		log.Logger.Error().Err(err).Msg("taskscheduler exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, o cliOpts) error {
	log.Init(log.Config{Level: log.Level(o.logLevel), JSONOutput: o.logJSON})

	if o.cmd == "" && o.cronEvery == "" && !o.serve {
		return fmt.Errorf("--cmd is required unless --serve is passed")
	}

	opts := spec.DefaultOptions()
	opts.Quota = spec.ResourceQuota{TotalCPU: o.totalCPU, TotalMemMB: o.totalMemMB}
	opts.Cgroup = spec.CgroupConfig{Enabled: o.cgroupEnabled, BasePath: o.cgroupBase, CPUPeriodUS: o.cpuPeriodUS}
	opts.MaxQueueSize = o.maxQueueSize
	opts.KillGraceSec = o.killGraceSec
	opts.EnablePriority = o.enablePriority
	opts.EnablePSIMonitor = o.enablePSI
	opts.CmdWhitelist = o.whitelist
	opts.CmdBlacklist = o.blacklist
	opts.Workdir = o.workdir
	opts.MetricsHTTPPort = o.metricsPort
	opts.PromPort = o.promPort
	opts.RlimitNofile = o.rlimitNofile
	opts.DisableCoreDump = o.disableCoreDump
	opts.EnablePersistence = o.enablePersistence
	opts.DBPath = o.dbPath
	opts.EnableCron = o.enableCron || o.cronEvery != ""
	opts.CronTickMs = o.cronTickMs
	opts.ShutdownGracePeriod = time.Duration(o.shutdownGraceSec) * time.Second

	k := scheduler.New(opts)

	if o.cronEvery != "" {
		if err := k.Trigger().AddTemplate(o.cronEvery, spec.JobSpec{
			Cmd: o.cmd, CPUCores: o.cpu, MemoryMB: o.mem, TimeoutSec: o.timeoutSec, Priority: o.priority,
		}, time.Now()); err != nil {
			return fmt.Errorf("registering periodic template: %w", err)
		}
	}

	if err := k.Start(); err != nil {
		return fmt.Errorf("starting kernel: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer k.Stop()

	if o.cmd != "" && o.cronEvery == "" {
		id, err := k.Submit(spec.JobSpec{
			Cmd: o.cmd, CPUCores: o.cpu, MemoryMB: o.mem, TimeoutSec: o.timeoutSec, Priority: o.priority,
		})
		if err != nil {
			return fmt.Errorf("submit rejected: %w", err)
		}
		log.WithJobID(log.Logger, id).Info().Str("cmd", o.cmd).Msg("job submitted")
	}

	if o.serve {
		<-ctx.Done()
		log.Logger.Info().Msg("shutdown signal received")
		return nil
	}

	return waitIdleOrSignal(ctx, k)
}

// waitIdleOrSignal polls the kernel until it goes idle or ctx is
// cancelled by a signal, whichever comes first.
func waitIdleOrSignal(ctx context.Context, k *scheduler.Kernel) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Logger.Info().Msg("shutdown signal received before job completed")
			return nil
		case <-ticker.C:
			if k.Idle() {
				return nil
			}
		}
	}
}
