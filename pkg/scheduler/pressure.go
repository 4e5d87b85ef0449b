//go:build linux

package scheduler

import (
	"time"

	"github.com/ja7ad/taskscheduler/pkg/cgroup"
	"github.com/ja7ad/taskscheduler/pkg/log"
)

const (
	pressureInterval  = 1 * time.Second
	pressureThreshold = 50.0
)

// pressureMonitorLoop polls the cgroup pressure file once a second and
// toggles the dispatcher's backpressure flag on avg10 exceeding the
// threshold. Runs only when EnablePSIMonitor is set.
func (k *Kernel) pressureMonitorLoop() {
	defer k.wg.Done()
	ticker := time.NewTicker(pressureInterval)
	defer ticker.Stop()
	for {
		select {
		case <-k.shutdown:
			return
		case <-ticker.C:
			runGuarded("pressure", func() bool { k.pressureTick(); return false })
		}
	}
}

func (k *Kernel) pressureTick() {
	avg10 := cgroup.ReadPressureAvg10(k.opts.Cgroup.BasePath)
	active := avg10 > pressureThreshold

	k.mu.Lock()
	changed := k.psiActive != active
	k.psiActive = active
	k.mu.Unlock()

	if changed {
		log.WithComponent("scheduler").Info().Bool("active", active).Float64("avg10", avg10).Msg("pressure state changed")
	}
	k.registry.SetPressureActive(active)

	if k.host != nil {
		cpu, mem := k.accountant.Used()
		k.host.SetReserved(cpu, mem)
		k.host.SetPressureAvg10(avg10)
	}
}
