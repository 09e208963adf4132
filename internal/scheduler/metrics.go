package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes a Controller's queue depth and worker occupancy as
// Prometheus gauges, read fresh on every scrape the same way
// status.Metrics reads the Reporter.
type Metrics struct {
	pending prometheus.GaugeFunc
	ready   prometheus.GaugeFunc
	busy    prometheus.GaugeFunc
}

// NewMetrics builds the collector set for c.
func NewMetrics(c *Controller) *Metrics {
	return &Metrics{
		pending: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "docwatch_queue_pending",
			Help: "Number of file changes currently debouncing.",
		}, func() float64 { return float64(c.PendingCount()) }),
		ready: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "docwatch_queue_ready",
			Help: "Number of file changes ready for a worker to claim.",
		}, func() float64 { return float64(c.ReadyCount()) }),
		busy: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "docwatch_workers_busy",
			Help: "Number of worker goroutines currently processing a change.",
		}, func() float64 { return float64(c.ActiveWorkers()) }),
	}
}

// Register registers all collectors against reg.
func (m *Metrics) Register(reg *prometheus.Registry) error {
	for _, coll := range []prometheus.Collector{m.pending, m.ready, m.busy} {
		if err := reg.Register(coll); err != nil {
			return err
		}
	}
	return nil
}
