package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestObserveSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveSession("1", "general", "complete", 2*time.Second)
	m.ObserveSession("1", "general", "complete", 3*time.Second)
	m.ObserveSession("3", "security", "failed", time.Second)

	fam := gather(t, reg, "quorum_sessions_total")
	if fam == nil {
		t.Fatal("quorum_sessions_total not registered")
	}
	if len(fam.Metric) != 2 {
		t.Fatalf("label combinations = %d, want 2", len(fam.Metric))
	}
	for _, metric := range fam.Metric {
		labels := map[string]string{}
		for _, l := range metric.Label {
			labels[l.GetName()] = l.GetValue()
		}
		if labels["state"] == "complete" && metric.Counter.GetValue() != 2 {
			t.Errorf("complete counter = %v, want 2", metric.Counter.GetValue())
		}
	}

	dur := gather(t, reg, "quorum_session_duration_seconds")
	if dur == nil {
		t.Fatal("duration histogram not registered")
	}
}

func TestObserveSlotAndCost(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveSlot("succeeded", 2)
	m.ObserveSlot("failed", 5)
	m.AddCost("2", "code_review", 0.25)
	m.IncAlert()

	if fam := gather(t, reg, "quorum_slots_total"); fam == nil || len(fam.Metric) != 2 {
		t.Error("slot outcomes not recorded")
	}
	fam := gather(t, reg, "quorum_cost_usd_total")
	if fam == nil || fam.Metric[0].Counter.GetValue() != 0.25 {
		t.Error("cost not accumulated")
	}
	if fam := gather(t, reg, "quorum_alerts_total"); fam == nil || fam.Metric[0].Counter.GetValue() != 1 {
		t.Error("alert not counted")
	}
}

func TestFreshRegistryPerConstruction(t *testing.T) {
	// Two constructions must not collide when given separate registries.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
