package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

// getMetric returns the value of a metric by its fully-qualified name from gathered families.
// For labelled families, reason selects the series with that "reason" label.
func getMetric(mfs []*dto.MetricFamily, name, reason string) float64 {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if reason != "" && !hasReason(m, reason) {
				continue
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				return m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func hasReason(m *dto.Metric, reason string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == "reason" && lp.GetValue() == reason {
			return true
		}
	}
	return false
}

func TestRegisterAndCounters(t *testing.T) {
	reg := prometheus.NewRegistry()

	// First registration should succeed
	if err := Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	// Second registration should be idempotent (ignore AlreadyRegistered)
	if err := Register(reg); err != nil {
		t.Fatalf("Register (second) failed: %v", err)
	}

	// labelled series only show up once touched
	IncRotations("truncated")
	ClientDropped("queue_full")
	ClientConnected()

	// Capture baseline values (collectors are globals; use deltas for assertions)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	baseLines := getMetric(mfs, "tailserver_lines_total", "")
	baseBytes := getMetric(mfs, "tailserver_bytes_total", "")
	baseRotations := getMetric(mfs, "tailserver_rotations_total", "truncated")
	baseUnreadable := getMetric(mfs, "tailserver_unreadable_total", "")
	baseReopen := getMetric(mfs, "tailserver_reopen_failures_total", "")
	baseConnected := getMetric(mfs, "tailserver_clients_connected", "")
	baseAccepted := getMetric(mfs, "tailserver_clients_accepted_total", "")
	baseDropped := getMetric(mfs, "tailserver_clients_dropped_total", "queue_full")
	baseDelivered := getMetric(mfs, "tailserver_lines_delivered_total", "")

	// Perform updates
	IncLines(3)
	IncLines(0) // no-op
	AddBytes(10)
	AddBytes(-5) // no-op
	IncRotations("truncated")
	IncUnreadable()
	IncReopenFailures()
	ClientConnected()
	ClientConnected()
	ClientDropped("queue_full")
	AddDelivered(4)

	mfs2, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather 2 failed: %v", err)
	}

	checks := []struct {
		name, reason string
		base, want   float64
	}{
		{"tailserver_lines_total", "", baseLines, 3},
		{"tailserver_bytes_total", "", baseBytes, 10},
		{"tailserver_rotations_total", "truncated", baseRotations, 1},
		{"tailserver_unreadable_total", "", baseUnreadable, 1},
		{"tailserver_reopen_failures_total", "", baseReopen, 1},
		{"tailserver_clients_connected", "", baseConnected, 1}, // two in, one out
		{"tailserver_clients_accepted_total", "", baseAccepted, 2},
		{"tailserver_clients_dropped_total", "queue_full", baseDropped, 1},
		{"tailserver_lines_delivered_total", "", baseDelivered, 4},
	}
	for _, c := range checks {
		if got := getMetric(mfs2, c.name, c.reason) - c.base; got != c.want {
			t.Fatalf("%s delta = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestObserveFlush(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	before := histogramCount(t, reg, "tailserver_client_flush_lines")

	ObserveFlush(3)
	ObserveFlush(0) // no-op

	if got := histogramCount(t, reg, "tailserver_client_flush_lines") - before; got != 1 {
		t.Fatalf("flush_lines sample count delta = %d, want 1", got)
	}
	if n := testutil.CollectAndCount(clientFlushLines); n != 1 {
		t.Fatalf("flush_lines series = %d, want 1", n)
	}
}

func histogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name && len(mf.Metric) > 0 {
			return mf.Metric[0].GetHistogram().GetSampleCount()
		}
	}
	return 0
}
