package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsPrivateRegistry(t *testing.T) {
	// Two instances on separate registries must not collide
	first := NewMetrics(prometheus.NewRegistry())
	second := NewMetrics(prometheus.NewRegistry())

	first.RecordRunStarted()
	if got := testutil.ToFloat64(first.RunsStarted); got != 1 {
		t.Errorf("Expected 1 run started, got %v", got)
	}
	if got := testutil.ToFloat64(second.RunsStarted); got != 0 {
		t.Errorf("Expected second registry untouched, got %v", got)
	}
}

func TestStageMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordStageSuccess("stt", 0.2)
	m.RecordStageFailure("translate", "status", 0.1)
	m.RecordStageFailure("translate", "timeout", 5)

	if got := testutil.ToFloat64(m.StageRequests.WithLabelValues("translate")); got != 2 {
		t.Errorf("Expected 2 translate requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.StageFailures.WithLabelValues("translate", "timeout")); got != 1 {
		t.Errorf("Expected 1 translate timeout, got %v", got)
	}
	if got := testutil.ToFloat64(m.StageFailures.WithLabelValues("stt", "status")); got != 0 {
		t.Errorf("Expected no stt failures, got %v", got)
	}
}

func TestRunMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRunCompleted(3)
	m.RecordRunFailed("transcribing", 1)
	m.RecordRunFailed("transcribing", 2)

	if got := testutil.ToFloat64(m.RunsCompleted); got != 1 {
		t.Errorf("Expected 1 completed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.RunsFailed.WithLabelValues("transcribing")); got != 2 {
		t.Errorf("Expected 2 failed runs, got %v", got)
	}
}
