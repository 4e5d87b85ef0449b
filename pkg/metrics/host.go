package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HostGauges publishes host/accountant-level gauges through the standard
// Prometheus client library on an independent HTTP endpoint, separate from
// the hand-rolled /metrics exposer that serves the exact tasks_* text
// contract. It gives promhttp a concrete home: scraping it does not
// require (and must not depend on) the Registry's own wire format.
type HostGauges struct {
	reg          *prometheus.Registry
	cpuReserved  prometheus.Gauge
	memReserved  prometheus.Gauge
	pressureAvg  prometheus.Gauge
}

// NewHostGauges builds a fresh, independent Prometheus registry (not the
// global DefaultRegisterer, so multiple Kernels in one process, e.g. in
// tests, never collide on metric names).
func NewHostGauges() *HostGauges {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &HostGauges{
		reg: reg,
		cpuReserved: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskscheduler_cpu_reserved",
			Help: "CPU cores currently reserved by running jobs.",
		}),
		memReserved: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskscheduler_mem_reserved_mb",
			Help: "Memory in MB currently reserved by running jobs.",
		}),
		pressureAvg: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskscheduler_pressure_avg10",
			Help: "Last observed memory.pressure avg10 value.",
		}),
	}
}

// SetReserved updates the CPU/memory reservation gauges.
func (h *HostGauges) SetReserved(cpu, memMB int) {
	h.cpuReserved.Set(float64(cpu))
	h.memReserved.Set(float64(memMB))
}

// SetPressureAvg10 updates the last observed PSI avg10 sample.
func (h *HostGauges) SetPressureAvg10(v float64) {
	h.pressureAvg.Set(v)
}

// Handler returns the promhttp handler for this registry.
func (h *HostGauges) Handler() http.Handler {
	return promhttp.HandlerFor(h.reg, promhttp.HandlerOpts{})
}
