package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/af-corp/quorum-engine/internal/config"
)

const tierPolicy = `
package quorum.policy

import rego.v1

default allow := false
default reason := "request denied by policy"

allow if {
	input.request.tier == 1
}

allow if {
	input.org.level == "executive"
	input.request.estimated_cost_usd <= 50
}
`

func testGate(t *testing.T) *Gate {
	t.Helper()
	g := NewGate(func() config.PolicyConfig {
		return config.PolicyConfig{Enabled: true, EvaluationTimeout: 100 * time.Millisecond}
	})
	if err := g.LoadFromModules(map[string]string{"tier.rego": tierPolicy}); err != nil {
		t.Fatalf("LoadFromModules: %v", err)
	}
	return g
}

func TestGateAdmit(t *testing.T) {
	g := testGate(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		level     string
		tier      int
		cost      float64
		wantAllow bool
	}{
		{"tier 1 always allowed", "junior", 1, 0.01, true},
		{"junior tier 3 denied", "junior", 3, 0.01, false},
		{"executive tier 3 allowed", "executive", 3, 5, true},
		{"executive over spend ceiling denied", "executive", 3, 500, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, reason := g.Admit(ctx, "org-1", tt.level, tt.tier, "general", tt.cost)
			if allowed != tt.wantAllow {
				t.Errorf("allowed = %v (reason %q), want %v", allowed, reason, tt.wantAllow)
			}
			if !allowed && reason == "" {
				t.Error("denial should carry a reason")
			}
		})
	}
}

func TestGateLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tier.rego"), []byte(tierPolicy), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a policy"), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}

	g := NewGate(func() config.PolicyConfig {
		return config.PolicyConfig{Enabled: true, BundlePath: dir, EvaluationTimeout: 100 * time.Millisecond}
	})
	if err := g.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	allowed, reason := g.Admit(context.Background(), "org-1", "junior", 1, "general", 0.01)
	if !allowed {
		t.Errorf("loaded policy should admit tier 1, got denial %q", reason)
	}
}

func TestGateFailsClosedWithoutPolicies(t *testing.T) {
	g := NewGate(func() config.PolicyConfig {
		return config.PolicyConfig{Enabled: true, EvaluationTimeout: 100 * time.Millisecond}
	})

	allowed, reason, err := g.Evaluate(context.Background(), Input{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if allowed {
		t.Error("gate must fail closed when no policies are loaded")
	}
	if reason != "no policies loaded" {
		t.Errorf("reason = %q", reason)
	}
}

func TestGateInvalidModule(t *testing.T) {
	g := NewGate(func() config.PolicyConfig { return config.PolicyConfig{} })
	if err := g.LoadFromModules(map[string]string{"bad.rego": "this is not rego"}); err == nil {
		t.Error("invalid module should fail to compile")
	}
}
