package consensus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/af-corp/quorum-engine/internal/availability"
	"github.com/af-corp/quorum-engine/internal/band"
	"github.com/af-corp/quorum-engine/internal/catalog"
	"github.com/af-corp/quorum-engine/internal/failover"
	"github.com/af-corp/quorum-engine/internal/modelclient"
	"github.com/af-corp/quorum-engine/internal/telemetry"
	"github.com/af-corp/quorum-engine/internal/tier"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freeRecord(id string, score float64) catalog.ModelRecord {
	return catalog.ModelRecord{
		ID:              id,
		Provider:        "test",
		ContextWindow:   8192,
		BenchmarkScores: map[string]float64{"bench": score},
		Status:          catalog.StatusActive,
	}
}

func paidRecord(id string, inCost, score float64) catalog.ModelRecord {
	rec := freeRecord(id, score)
	rec.InputCostPerMillion = inCost
	rec.OutputCostPerMillion = inCost * 4
	return rec
}

func snapshotOf(t *testing.T, records ...catalog.ModelRecord) *catalog.Snapshot {
	t.Helper()
	snap, err := catalog.NewSnapshot(1, records)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return snap
}

func testOptions() Options {
	return Options{
		MaxAttempts:         5,
		MaxSlotConcurrency:  8,
		DefaultDeadline:     5 * time.Second,
		EstOutputTokens:     1024,
		SimilarityThreshold: 0.5,
		TargetCounts:        tier.TargetCounts{band.CostFree: 5, band.CostEconomy: 2, band.CostPremium: 2},
	}
}

func newTestOrchestrator(snap *catalog.Snapshot, invoker Invoker) *Orchestrator {
	return NewOrchestrator(
		func() *catalog.Snapshot { return snap },
		band.DefaultCriteria,
		invoker,
		telemetry.NewMetrics(prometheus.NewRegistry()),
		nil,
		testOptions(),
		discardLogger(),
	)
}

// healthClient answers through the real failover engine: models listed in
// down always fail with a transient error.
type healthClient struct {
	mu   sync.Mutex
	down map[string]bool
}

func (c *healthClient) Probe(ctx context.Context, modelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down[modelID] {
		return &modelclient.APIError{Provider: "test", StatusCode: 503, Message: "down"}
	}
	return nil
}

func (c *healthClient) Invoke(ctx context.Context, modelID, prompt, roleContext string) (*modelclient.Result, error) {
	if err := c.Probe(ctx, modelID); err != nil {
		return nil, err
	}
	return &modelclient.Result{Text: "Shared assessment from the panel. Details follow.", CostUSD: 0.001}, nil
}

func engineOver(snap *catalog.Snapshot, client modelclient.ModelClient) *failover.Engine {
	cache := availability.NewMemoryCache(300 * time.Second)
	lookup := func(id string) (catalog.ModelRecord, bool) { return snap.Get(id) }
	return failover.New(cache, client, &noopSink{}, lookup, failover.Policy{
		PaidRetryLimit:    1,
		BackoffBase:       time.Millisecond,
		PaidRetryThenSkip: true,
	}, discardLogger())
}

type noopSink struct{}

func (noopSink) Alert(string, string) {}

func TestStartConsensusRoundTrip(t *testing.T) {
	// Five free models, two of them down: every slot should fail over to a
	// healthy candidate and the session completes without failed slots.
	snap := snapshotOf(t,
		freeRecord("down-1", 90),
		freeRecord("down-2", 85),
		freeRecord("healthy-1", 80),
		freeRecord("healthy-2", 75),
		freeRecord("healthy-3", 70),
	)
	client := &healthClient{down: map[string]bool{"down-1": true, "down-2": true}}
	orch := newTestOrchestrator(snap, engineOver(snap, client))

	report, err := orch.StartConsensus(context.Background(), Request{
		Prompt: "Assess the proposed rollout plan.",
		Tier:   1,
		Domain: "general",
	})
	if err != nil {
		t.Fatalf("StartConsensus: %v", err)
	}
	if report.State != StateComplete {
		t.Errorf("state = %s, want complete", report.State)
	}
	if len(report.SlotsFailed) != 0 {
		t.Errorf("slots failed = %+v, want none", report.SlotsFailed)
	}
	if report.Degraded {
		t.Error("session should not be degraded when every slot succeeded via failover")
	}
	if report.SlotsUsed != 3 {
		t.Errorf("slots used = %d, want 3 (tier 1 general has three roles)", report.SlotsUsed)
	}
	for _, p := range report.Perspectives {
		if client.down[p.ModelID] {
			t.Errorf("perspective used a down model: %s", p.ModelID)
		}
	}
	if report.CostActualUSD <= 0 {
		t.Error("actual cost not accumulated")
	}
}

func TestStartConsensusAllCandidatesFail(t *testing.T) {
	snap := snapshotOf(t,
		freeRecord("down-1", 90),
		freeRecord("down-2", 85),
		freeRecord("down-3", 80),
	)
	client := &healthClient{down: map[string]bool{"down-1": true, "down-2": true, "down-3": true}}
	orch := newTestOrchestrator(snap, engineOver(snap, client))

	_, err := orch.StartConsensus(context.Background(), Request{
		Prompt: "Assess the proposed rollout plan.",
		Tier:   1,
		Domain: "general",
	})
	if !errors.Is(err, ErrConsensusFailed) {
		t.Errorf("got %v, want ErrConsensusFailed", err)
	}
}

type countingInvoker struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvoker) Invoke(ctx context.Context, candidates []string, prompt, roleContext string, maxAttempts int) (*failover.Invocation, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return &failover.Invocation{Text: "ok", ModelID: candidates[0], CostUSD: 1}, nil
}

func TestStartConsensusCostGate(t *testing.T) {
	snap := snapshotOf(t,
		paidRecord("prem-1", 10, 90),
		paidRecord("prem-2", 15, 88),
	)
	invoker := &countingInvoker{}
	orch := newTestOrchestrator(snap, invoker)

	limit := 0.0000001
	_, err := orch.StartConsensus(context.Background(), Request{
		Prompt:     "Evaluate the migration design in depth.",
		Tier:       3,
		Domain:     "general",
		MaxCostUSD: &limit,
	})
	if !errors.Is(err, ErrCostLimitExceeded) {
		t.Fatalf("got %v, want ErrCostLimitExceeded", err)
	}
	if invoker.calls != 0 {
		t.Errorf("cost gate must fire before any invocation, got %d calls", invoker.calls)
	}
}

type blockingInvoker struct{}

func (blockingInvoker) Invoke(ctx context.Context, candidates []string, prompt, roleContext string, maxAttempts int) (*failover.Invocation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStartConsensusDeadline(t *testing.T) {
	snap := snapshotOf(t, freeRecord("slow-1", 90))
	orch := newTestOrchestrator(snap, blockingInvoker{})

	_, err := orch.StartConsensus(context.Background(), Request{
		Prompt:   "Assess the plan.",
		Tier:     1,
		Domain:   "general",
		Deadline: 20 * time.Millisecond,
	})
	if !errors.Is(err, ErrConsensusFailed) {
		t.Errorf("got %v, want ErrConsensusFailed after deadline", err)
	}
}

func TestStartConsensusConfigurationErrors(t *testing.T) {
	snap := snapshotOf(t, freeRecord("m", 90))
	orch := newTestOrchestrator(snap, &countingInvoker{})

	if _, err := orch.StartConsensus(context.Background(), Request{Prompt: "p", Tier: 9, Domain: "general"}); !errors.Is(err, tier.ErrInvalidTier) {
		t.Errorf("tier 9: got %v, want ErrInvalidTier", err)
	}
	if _, err := orch.StartConsensus(context.Background(), Request{Prompt: "p", Tier: 1, Domain: "palmistry"}); !errors.Is(err, tier.ErrUnknownDomain) {
		t.Errorf("unknown domain: got %v, want ErrUnknownDomain", err)
	}

	// No model carries the security tag, so selection is empty.
	if _, err := orch.StartConsensus(context.Background(), Request{Prompt: "p", Tier: 1, Domain: "security"}); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("empty selection: got %v, want ErrNoCandidates", err)
	}
}

func TestRotatedPreservesSequence(t *testing.T) {
	candidates := []string{"a", "b", "c"}
	tests := []struct {
		slot int
		want []string
	}{
		{0, []string{"a", "b", "c"}},
		{1, []string{"b", "c", "a"}},
		{2, []string{"c", "a", "b"}},
		{3, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		got := rotated(candidates, tt.slot)
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("slot %d: got %v, want %v", tt.slot, got, tt.want)
				break
			}
		}
	}
}
