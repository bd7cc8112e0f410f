package alert

import (
	"sync"
	"testing"
)

type capturingSink struct {
	mu     sync.Mutex
	alerts []string
}

func (s *capturingSink) Alert(modelID, reason string) {
	s.mu.Lock()
	s.alerts = append(s.alerts, modelID+": "+reason)
	s.mu.Unlock()
}

type fakeMeter struct{ n int }

func (m *fakeMeter) IncAlert() { m.n++ }

func TestMeteredSinkCountsAndDelegates(t *testing.T) {
	inner := &capturingSink{}
	meter := &fakeMeter{}
	sink := &MeteredSink{Next: inner, Meter: meter}

	sink.Alert("paid-1", "candidate likely deprecated")
	sink.Alert("paid-2", "candidate likely deprecated")

	if meter.n != 2 {
		t.Errorf("meter count = %d, want 2", meter.n)
	}
	if len(inner.alerts) != 2 {
		t.Fatalf("delegated alerts = %d, want 2", len(inner.alerts))
	}
	if inner.alerts[0] != "paid-1: candidate likely deprecated" {
		t.Errorf("alert = %q", inner.alerts[0])
	}
}
