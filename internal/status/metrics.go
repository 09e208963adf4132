package status

import "github.com/prometheus/client_golang/prometheus"

// Metrics registers the Reporter's derived counters as Prometheus
// collectors. The collectors read the Reporter on every scrape, so they
// never drift from Snapshot().
type Metrics struct {
	reporter *Reporter

	processed prometheus.CounterFunc
	failed    prometheus.CounterFunc
	rate      prometheus.GaugeFunc
}

// NewMetrics builds the collector set for reporter but does not register it;
// callers register it against the Prometheus registry the serve command
// creates.
func NewMetrics(reporter *Reporter) *Metrics {
	m := &Metrics{reporter: reporter}

	m.processed = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "docwatch_processed_total",
		Help: "Total number of changed files processed successfully.",
	}, func() float64 {
		return float64(reporter.Snapshot().Processed)
	})

	m.failed = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "docwatch_failed_total",
		Help: "Total number of changed files that failed processing.",
	}, func() float64 {
		return float64(reporter.Snapshot().Failed)
	})

	m.rate = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "docwatch_files_per_second",
		Help: "Processed files per second since the reporter was started or last reset.",
	}, func() float64 {
		return reporter.Snapshot().FilesPerSecond
	})

	return m
}

// Register registers all collectors against reg.
func (m *Metrics) Register(reg *prometheus.Registry) error {
	for _, c := range []prometheus.Collector{m.processed, m.failed, m.rate} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
