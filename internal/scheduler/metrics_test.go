package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsReflectQueueDepthAndWorkers(t *testing.T) {
	release := make(chan struct{})
	c := New(Config{
		Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond,
		WorkerThreads: 1, BatchSize: 1, StatusHistory: 10,
		Extractor: func(context.Context, string, []byte, string) error {
			<-release
			return nil
		},
	})
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { close(release); c.Stop() }()

	reg := prometheus.NewRegistry()
	if err := NewMetrics(c).Register(reg); err != nil {
		t.Fatal(err)
	}

	// Nothing has been enqueued, so every gauge reads zero.
	for _, name := range []string{"docwatch_queue_pending", "docwatch_queue_ready", "docwatch_workers_busy"} {
		if v := gatherGaugeValue(t, reg, name); v != 0 {
			t.Fatalf("expected %s=0 on an idle controller, got %v", name, v)
		}
	}
}

func gatherGaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		metrics := fam.GetMetric()
		if len(metrics) != 1 {
			t.Fatalf("expected exactly one metric for %s, got %d", name, len(metrics))
		}
		return metrics[0].GetGauge().GetValue()
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
