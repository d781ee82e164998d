package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// value returns the value of the first sample of the named family whose
// labels include want.
func value(t *testing.T, g prometheus.Gatherer, name string, want map[string]string) float64 {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if v, ok := want[lp.GetName()]; ok && v != lp.GetValue() {
					continue next
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				return g.GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return 0
}

func TestNew_RegistersOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ReconnectAttempts.Inc()
	m.Errors.WithLabelValues("room_full").Inc()
	m.Errors.WithLabelValues("room_full").Inc()

	if got := value(t, reg, "sketchduel_connection_reconnect_attempts_total", nil); got != 1 {
		t.Errorf("reconnect attempts = %v, want 1", got)
	}
	if got := value(t, reg, "sketchduel_errors_total", map[string]string{"kind": "room_full"}); got != 2 {
		t.Errorf("errors{room_full} = %v, want 2", got)
	}
}

func TestNew_NilRegistryIsolated(t *testing.T) {
	// Two instances without a registry must not collide on registration.
	a := New(nil)
	b := New(nil)
	a.BatchesFlushed.Inc()

	if got := value(t, b.Gatherer(), "sketchduel_optimizer_batches_flushed_total", nil); got != 0 {
		t.Errorf("instances share state: got %v", got)
	}
	if got := value(t, a.Gatherer(), "sketchduel_optimizer_batches_flushed_total", nil); got != 1 {
		t.Errorf("batches flushed = %v, want 1", got)
	}
}

func TestSetStatus(t *testing.T) {
	m := New(nil)
	m.SetStatus("connecting")
	m.SetStatus("connected")

	g := m.Gatherer()
	if got := value(t, g, "sketchduel_connection_status", map[string]string{"status": "connected"}); got != 1 {
		t.Errorf("connected = %v, want 1", got)
	}
	if got := value(t, g, "sketchduel_connection_status", map[string]string{"status": "connecting"}); got != 0 {
		t.Errorf("connecting = %v, want 0", got)
	}
}
