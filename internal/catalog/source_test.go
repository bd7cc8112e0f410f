package catalog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewSnapshotRejectsBadIDs(t *testing.T) {
	ok := ModelRecord{ID: "a", ContextWindow: 1, BenchmarkScores: map[string]float64{"s": 1}}

	if _, err := NewSnapshot(1, []ModelRecord{ok, {ID: "a"}}); err == nil {
		t.Error("duplicate id accepted")
	}
	if _, err := NewSnapshot(1, []ModelRecord{{ID: ""}}); err == nil {
		t.Error("empty id accepted")
	}
}

func TestSnapshotIterationIsIDOrdered(t *testing.T) {
	snap, err := NewSnapshot(1, []ModelRecord{{ID: "zeta"}, {ID: "alpha"}, {ID: "mid"}})
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	var ids []string
	for _, r := range snap.All() {
		ids = append(ids, r.ID)
	}
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("iteration order %v, want %v", ids, want)
		}
	}
}

const catalogYAML = `
version: 7
models:
  - id: openai/gpt-4o
    provider: openai
    input_cost_per_million: 2.5
    output_cost_per_million: 10
    context_window: 128000
    benchmark_scores:
      reasoning: 82
    status: active
    specialization_tags: [reasoning]
  - id: broken/unknown-status
    provider: broken
    context_window: 100
    status: bogus
`

func TestSourceLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(catalogYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewSource(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := src.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap := src.Snapshot()
	if snap.Version != 7 {
		t.Errorf("version = %d, want 7", snap.Version)
	}
	// The unknown-status record is dropped, not fatal.
	if snap.Len() != 1 {
		t.Fatalf("records = %d, want 1", snap.Len())
	}
	rec, ok := snap.Get("openai/gpt-4o")
	if !ok {
		t.Fatal("expected record missing")
	}
	if rec.InputCostPerMillion != 2.5 || !rec.HasTag("reasoning") {
		t.Errorf("record fields wrong: %+v", rec)
	}
}

func TestSourceLoadKeepsSnapshotOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(catalogYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	src := NewSource(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := src.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := os.WriteFile(path, []byte("models: [not, a, map]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := src.Load(); err == nil {
		t.Fatal("expected reload failure")
	}
	if src.Snapshot() == nil || src.Snapshot().Len() != 1 {
		t.Error("previous snapshot not retained after failed reload")
	}
}

func TestCostPerCall(t *testing.T) {
	rec := ModelRecord{InputCostPerMillion: 2, OutputCostPerMillion: 10}
	got := rec.CostPerCall(1_000_000, 500_000)
	if got != 7 {
		t.Errorf("CostPerCall = %v, want 7", got)
	}
}
