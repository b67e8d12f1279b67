package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCronJobMetricsCountsRunsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	job := "rental-start"
	m.ObserveDuration(job, 250*time.Millisecond)
	m.IncSuccess(job)
	m.IncFailure(job)
	m.IncSkipped(job)
	m.IncSkipped(job)

	cases := map[string]float64{runSucceeded: 1, runFailed: 1, runSkipped: 2}
	for result, want := range cases {
		if got := testutil.ToFloat64(m.runs.WithLabelValues(job, result)); got != want {
			t.Fatalf("%s: expected %v, got %v", result, want, got)
		}
	}
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues(job)); got != 1_700_000_000 {
		t.Fatalf("unexpected last success %v", got)
	}
	if n := testutil.CollectAndCount(m.duration, "rentalhub_cron_job_duration_seconds"); n != 1 {
		t.Fatalf("expected one duration series, got %d", n)
	}
}

func TestCronJobMetricsEmptyJobName(t *testing.T) {
	m := NewCronJobMetrics(prometheus.NewRegistry())
	m.IncFailure("")
	if got := testutil.ToFloat64(m.runs.WithLabelValues("unknown", runFailed)); got != 1 {
		t.Fatalf("expected unnamed job counted as unknown, got %v", got)
	}
}
