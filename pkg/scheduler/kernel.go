//go:build linux

// Package scheduler implements the scheduler kernel: the intake queue,
// dispatcher, reaper, and optional pressure monitor and periodic trigger
// described in SPEC_FULL.md §4.G. It owns the resource accountant, the
// durable store, the metrics registry, and the HTTP exposer, and exposes
// Submit/Start/Stop/Idle to callers.
package scheduler

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ja7ad/taskscheduler/pkg/cgroup"
	"github.com/ja7ad/taskscheduler/pkg/cron"
	"github.com/ja7ad/taskscheduler/pkg/httpexposer"
	"github.com/ja7ad/taskscheduler/pkg/log"
	"github.com/ja7ad/taskscheduler/pkg/metrics"
	"github.com/ja7ad/taskscheduler/pkg/resource"
	"github.com/ja7ad/taskscheduler/pkg/scheduler/spec"
	"github.com/ja7ad/taskscheduler/pkg/store"
)

// Kernel is the scheduler kernel. The zero value is not usable; construct
// one with New.
type Kernel struct {
	opts spec.Options

	accountant *resource.Accountant
	confiner   *cgroup.Confiner
	registry   *metrics.Registry
	host       *metrics.HostGauges
	hostServer *http.Server
	db         store.Store
	trigger    *cron.Trigger
	exposer    *httpexposer.Exposer

	// mu protects pending, running, and nextID. No nested acquisition of
	// this mutex is permitted; code that also needs the accountant's
	// mutex acquires mu first (SPEC_FULL.md §5 lock hierarchy).
	mu      sync.Mutex
	pending []spec.Job
	running map[int]*spec.Job
	nextID  int

	shuttingDown bool
	shutdown     chan struct{}
	wake         chan struct{}
	exited       chan exitEvent

	psiActive bool // guarded by mu; read by the dispatcher under mu

	wg sync.WaitGroup
}

// New constructs a Kernel from opts. Start must be called before any job
// runs.
func New(opts spec.Options) *Kernel {
	k := &Kernel{
		opts:       opts,
		accountant: resource.New(resource.Quota{TotalCPU: opts.Quota.TotalCPU, TotalMemMB: opts.Quota.TotalMemMB}),
		registry:   metrics.New(),
		running:    make(map[int]*spec.Job),
		nextID:     1,
		wake:       make(chan struct{}, 1),
		shutdown:   make(chan struct{}),
		exited:     make(chan exitEvent, 256),
	}

	if opts.Cgroup.Enabled {
		k.confiner = cgroup.NewConfiner(cgroup.Config{
			Enabled:     opts.Cgroup.Enabled,
			BasePath:    opts.Cgroup.BasePath,
			CPUPeriodUS: opts.Cgroup.CPUPeriodUS,
		})
	}
	if opts.EnablePersistence {
		k.db = store.NewBoltStore()
	}
	if opts.EnableCron {
		k.trigger = cron.New()
	}
	if opts.MetricsHTTPPort > 0 {
		k.exposer = httpexposer.New()
	}
	if opts.PromPort > 0 {
		k.host = metrics.NewHostGauges()
	}
	return k
}

// Trigger exposes the periodic-trigger table so callers can register
// templates before Start. Returns nil if enable_cron was not set.
func (k *Kernel) Trigger() *cron.Trigger { return k.trigger }

// MetricsSnapshot returns a point-in-time read of every counter/gauge.
func (k *Kernel) MetricsSnapshot() metrics.Snapshot { return k.registry.Snapshot() }

// MetricsText renders the registry in the /metrics wire format.
func (k *Kernel) MetricsText() string { return k.registry.ToText() }

// validateCmd extracts the token before the first space and applies the
// whitelist/blacklist filters.
func (k *Kernel) validateCmd(cmd string) bool {
	bin := cmd
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		bin = cmd[:i]
	}
	if len(k.opts.CmdWhitelist) > 0 {
		allowed := false
		for _, w := range k.opts.CmdWhitelist {
			if w == bin {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	for _, b := range k.opts.CmdBlacklist {
		if b == bin {
			return false
		}
	}
	return true
}

// Submit enqueues spec for execution. On admission it returns a positive
// id; on rejection it returns -1 and a descriptive error. Rejections do
// not touch the queue or persistence.
func (k *Kernel) Submit(s spec.JobSpec) (int, error) {
	if !k.validateCmd(s.Cmd) {
		k.registry.IncRejected()
		log.WithComponent("scheduler").Warn().Str("cmd", s.Cmd).Msg("command rejected by whitelist/blacklist")
		return -1, ErrCmdRejected
	}

	k.mu.Lock()
	if len(k.pending) >= k.opts.MaxQueueSize {
		k.mu.Unlock()
		k.registry.IncRejected()
		return -1, ErrQueueFull
	}

	id := k.nextID
	k.nextID++
	job := spec.Job{
		ID:          id,
		Spec:        s,
		Status:      spec.Pending,
		EnqueueTime: time.Now(),
	}
	k.pushPendingLocked(job)
	k.registry.IncSubmitted()

	if k.db != nil {
		if ok := k.db.Insert(id, s, time.Now().UnixMilli()); !ok {
			log.WithJobID(log.WithComponent("scheduler"), id).Warn().Msg("persist insert failed; continuing without durability for this job")
		}
	}
	k.mu.Unlock()

	k.notifyDispatcher()
	return id, nil
}

// pushPendingLocked appends job to the tail of pending and updates the
// pending gauge. Callers must hold mu. Per SPEC_FULL.md §9.1, every
// mutation of pending funnels through this or popPendingLocked so the
// gauge is never stale.
func (k *Kernel) pushPendingLocked(job spec.Job) {
	k.pending = append(k.pending, job)
	k.registry.SetPending(len(k.pending))
}

// popPendingLocked removes and returns the next job to dispatch according
// to the configured queue discipline. Callers must hold mu.
func (k *Kernel) popPendingLocked() (spec.Job, bool) {
	if len(k.pending) == 0 {
		return spec.Job{}, false
	}
	var idx int
	if k.opts.EnablePriority {
		idx = highestPriorityIndex(k.pending)
	} else {
		idx = 0
	}
	job := k.pending[idx]
	k.pending = append(k.pending[:idx], k.pending[idx+1:]...)
	k.registry.SetPending(len(k.pending))
	return job, true
}

// highestPriorityIndex returns the index of the pending job with the
// largest priority, ties broken by smallest id (earliest enqueued).
func highestPriorityIndex(pending []spec.Job) int {
	best := 0
	for i := 1; i < len(pending); i++ {
		if pending[i].Spec.Priority > pending[best].Spec.Priority ||
			(pending[i].Spec.Priority == pending[best].Spec.Priority && pending[i].ID < pending[best].ID) {
			best = i
		}
	}
	return best
}

// notifyDispatcher performs a non-blocking send on wake, the channel
// analogue of condition_variable::notify_all for this single-consumer
// signal.
func (k *Kernel) notifyDispatcher() {
	select {
	case k.wake <- struct{}{}:
	default:
	}
}

// Idle reports whether both pending and running are empty.
func (k *Kernel) Idle() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pending) == 0 && len(k.running) == 0
}

// Start restores unfinished jobs, launches the dispatcher and reaper (and
// any optional background loops), and starts the HTTP exposer if
// configured. Calling Start twice without an intervening Stop is
// undefined, matching spec.md §4.G.
func (k *Kernel) Start() error {
	if k.db != nil {
		if err := k.db.Init(k.opts.DBPath); err != nil {
			log.WithComponent("scheduler").Warn().Err(err).Msg("failed to open durable store; continuing without persistence")
			k.db = nil
		} else {
			k.restoreFromStore()
		}
	}

	// The exposer is started before the background loops so /metrics is
	// reachable immediately, per the resolved open question in
	// SPEC_FULL.md §9.3.
	if k.exposer != nil {
		if err := k.exposer.Start(k.opts.MetricsHTTPPort, k.MetricsText); err != nil {
			return err
		}
	}
	if k.host != nil {
		go k.serveHostGauges()
	}

	k.wg.Add(2)
	go k.dispatcherLoop()
	go k.reaperLoop()

	if k.opts.EnablePSIMonitor {
		k.wg.Add(1)
		go k.pressureMonitorLoop()
	}
	if k.trigger != nil {
		k.wg.Add(1)
		go k.cronLoop()
	}

	k.notifyDispatcher()
	return nil
}

// Stop idempotently signals shutdown, stops the exposer, and joins every
// background loop. It does not terminate in-flight children: the reaper
// completes naturally for any that exit during shutdown, and the rest are
// orphaned to the init process, matching spec.md §4.G and the Non-goals
// in SPEC_FULL.md.
func (k *Kernel) Stop() {
	k.mu.Lock()
	if k.shuttingDown {
		k.mu.Unlock()
		return
	}
	k.shuttingDown = true
	k.mu.Unlock()

	close(k.shutdown)
	if k.exposer != nil {
		k.exposer.Stop()
	}
	k.stopHostGauges()

	done := make(chan struct{})
	go func() { k.wg.Wait(); close(done) }()

	grace := k.opts.ShutdownGracePeriod
	if grace <= 0 {
		grace = shutdownTimeout
	}
	select {
	case <-done:
	case <-time.After(grace):
		log.WithComponent("scheduler").Warn().Dur("grace_period", grace).Msg("shutdown grace period elapsed before all loops joined; returning anyway")
	}
}

// shutdownTimeout bounds how long Stop waits for the host gauge server to
// drain in-flight scrapes, and is the fallback grace period when
// opts.ShutdownGracePeriod is unset.
const shutdownTimeout = 2 * time.Second

// runningSorted returns a snapshot of the running map's jobs sorted by id,
// for deterministic iteration in the reaper and in tests.
func (k *Kernel) runningSorted() []*spec.Job {
	out := make([]*spec.Job, 0, len(k.running))
	for _, j := range k.running {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
