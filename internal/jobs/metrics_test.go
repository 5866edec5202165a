package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	next:
		for _, metric := range fam.GetMetric() {
			for _, label := range metric.GetLabel() {
				if want, ok := labels[label.GetName()]; ok && want != label.GetValue() {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestTrackerRecordsSuccessAndFailure(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if err := metrics.Track("rbac:cache_warmup").End(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantErr := errors.New("boom")
	if err := metrics.Track("rbac:cache_warmup").End(wantErr); !errors.Is(err, wantErr) {
		t.Fatalf("End must return the error untouched, got %v", err)
	}

	if got := counterValue(t, registry, "eatthat_jobs_total", map[string]string{"job": "rbac:cache_warmup", "status": "success"}); got != 1 {
		t.Fatalf("expected one success run, got %v", got)
	}
	if got := counterValue(t, registry, "eatthat_jobs_total", map[string]string{"job": "rbac:cache_warmup", "status": "failure"}); got != 1 {
		t.Fatalf("expected one failure run, got %v", got)
	}
	if got := counterValue(t, registry, "eatthat_jobs_failures_total", map[string]string{"job": "rbac:cache_warmup"}); got != 1 {
		t.Fatalf("expected one recorded failure, got %v", got)
	}
}

func TestNilMetricsTrackerIsInert(t *testing.T) {
	var metrics *Metrics
	if err := metrics.Track("anything").End(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
