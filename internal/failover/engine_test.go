package failover

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/af-corp/quorum-engine/internal/availability"
	"github.com/af-corp/quorum-engine/internal/catalog"
	"github.com/af-corp/quorum-engine/internal/modelclient"
)

type scriptedClient struct {
	mu     sync.Mutex
	calls  map[string]int
	script map[string][]error // error per invoke, last entry repeats
	order  []string
}

func newScriptedClient(script map[string][]error) *scriptedClient {
	return &scriptedClient{calls: make(map[string]int), script: script}
}

func (c *scriptedClient) Probe(ctx context.Context, modelID string) error { return nil }

func (c *scriptedClient) Invoke(ctx context.Context, modelID, prompt, roleContext string) (*modelclient.Result, error) {
	c.mu.Lock()
	n := c.calls[modelID]
	c.calls[modelID]++
	c.order = append(c.order, modelID)
	c.mu.Unlock()

	seq := c.script[modelID]
	if len(seq) == 0 {
		return &modelclient.Result{Text: "response from " + modelID, CostUSD: 0.01}, nil
	}
	var err error
	if n < len(seq) {
		err = seq[n]
	} else {
		err = seq[len(seq)-1]
	}
	if err != nil {
		return nil, err
	}
	return &modelclient.Result{Text: "response from " + modelID, CostUSD: 0.01}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []string
}

func (s *recordingSink) Alert(modelID, reason string) {
	s.mu.Lock()
	s.alerts = append(s.alerts, modelID)
	s.mu.Unlock()
}

func lookupFor(free map[string]bool) Lookup {
	return func(modelID string) (catalog.ModelRecord, bool) {
		isFree, known := free[modelID]
		if !known {
			return catalog.ModelRecord{}, false
		}
		rec := catalog.ModelRecord{ID: modelID, ContextWindow: 8192, BenchmarkScores: map[string]float64{"a": 50}}
		if !isFree {
			rec.InputCostPerMillion = 2
			rec.OutputCostPerMillion = 10
		}
		return rec, true
	}
}

func newTestEngine(client modelclient.ModelClient, sink *recordingSink, free map[string]bool) (*Engine, *availability.MemoryCache) {
	cache := availability.NewMemoryCache(300 * time.Second)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(cache, client, sink, lookupFor(free), Policy{
		PaidRetryLimit:    2,
		BackoffBase:       time.Millisecond,
		PaidRetryThenSkip: true,
	}, logger)
	e.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return e, cache
}

func TestInvokeFirstCandidateSucceeds(t *testing.T) {
	client := newScriptedClient(nil)
	engine, cache := newTestEngine(client, &recordingSink{}, map[string]bool{"m1": true})

	inv, err := engine.Invoke(context.Background(), []string{"m1", "m2"}, "p", "rc", 5)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if inv.ModelID != "m1" {
		t.Errorf("used %s, want m1", inv.ModelID)
	}
	if len(inv.Attempts) != 1 || inv.Attempts[0].Outcome != OutcomeSuccess {
		t.Errorf("attempts = %+v", inv.Attempts)
	}
	if avail, ok := cache.Get(context.Background(), "m1"); !ok || !avail {
		t.Error("success not cached as available")
	}
}

func TestFreeCandidateFailsOverWithoutRetry(t *testing.T) {
	transient := &modelclient.APIError{Provider: "p", StatusCode: 503, Message: "overloaded"}
	client := newScriptedClient(map[string][]error{"free1": {transient}})
	engine, cache := newTestEngine(client, &recordingSink{}, map[string]bool{"free1": true, "free2": true})

	inv, err := engine.Invoke(context.Background(), []string{"free1", "free2"}, "p", "rc", 5)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if inv.ModelID != "free2" {
		t.Errorf("used %s, want free2", inv.ModelID)
	}
	if client.calls["free1"] != 1 {
		t.Errorf("free candidate invoked %d times, want 1 (no same-candidate retry)", client.calls["free1"])
	}
	if avail, ok := cache.Get(context.Background(), "free1"); !ok || avail {
		t.Error("failing free candidate not cached unavailable")
	}
}

func TestPaidCandidateRetriesSameCandidate(t *testing.T) {
	transient := &modelclient.APIError{Provider: "p", StatusCode: 429, Message: "rate limited"}
	client := newScriptedClient(map[string][]error{"paid1": {transient, nil}})
	engine, _ := newTestEngine(client, &recordingSink{}, map[string]bool{"paid1": false, "paid2": false})

	inv, err := engine.Invoke(context.Background(), []string{"paid1", "paid2"}, "p", "rc", 5)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if inv.ModelID != "paid1" {
		t.Errorf("used %s, want paid1 (retry should stay on the same candidate)", inv.ModelID)
	}
	if client.calls["paid1"] != 2 {
		t.Errorf("paid candidate invoked %d times, want 2", client.calls["paid1"])
	}
	if len(inv.Attempts) != 1 || inv.Attempts[0].Retries != 1 {
		t.Errorf("attempts = %+v, want one attempt with Retries=1", inv.Attempts)
	}
}

func TestPaidRetryExhaustionCachesAndMovesOn(t *testing.T) {
	transient := &modelclient.APIError{Provider: "p", StatusCode: 503, Message: "down"}
	client := newScriptedClient(map[string][]error{"paid1": {transient}})
	engine, cache := newTestEngine(client, &recordingSink{}, map[string]bool{"paid1": false, "paid2": false})

	inv, err := engine.Invoke(context.Background(), []string{"paid1", "paid2"}, "p", "rc", 5)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if inv.ModelID != "paid2" {
		t.Errorf("used %s, want paid2", inv.ModelID)
	}
	// Initial try plus PaidRetryLimit retries.
	if client.calls["paid1"] != 3 {
		t.Errorf("paid candidate invoked %d times, want 3", client.calls["paid1"])
	}
	if inv.Attempts[0].Outcome != OutcomeRetryExhausted {
		t.Errorf("first attempt outcome = %s", inv.Attempts[0].Outcome)
	}
	if avail, ok := cache.Get(context.Background(), "paid1"); !ok || avail {
		t.Error("retry-exhausted paid candidate not cached unavailable")
	}
}

func TestPaidPermanentFailureAlertsWithoutCaching(t *testing.T) {
	gone := &modelclient.APIError{Provider: "p", StatusCode: 404, Message: "model not found"}
	client := newScriptedClient(map[string][]error{"paid1": {gone}})
	sink := &recordingSink{}
	engine, cache := newTestEngine(client, sink, map[string]bool{"paid1": false, "free1": true})

	inv, err := engine.Invoke(context.Background(), []string{"paid1", "free1"}, "p", "rc", 5)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if inv.ModelID != "free1" {
		t.Errorf("used %s, want free1", inv.ModelID)
	}
	if len(sink.alerts) != 1 || sink.alerts[0] != "paid1" {
		t.Errorf("alerts = %v, want one alert for paid1", sink.alerts)
	}
	// Permanent failure is a catalog defect, not a health event.
	if _, ok := cache.Get(context.Background(), "paid1"); ok {
		t.Error("permanent failure must not be written to the availability cache")
	}
	if client.calls["paid1"] != 1 {
		t.Errorf("permanent failure retried: %d calls", client.calls["paid1"])
	}
}

func TestCachedUnavailableSkipConsumesAttempt(t *testing.T) {
	client := newScriptedClient(nil)
	engine, cache := newTestEngine(client, &recordingSink{}, map[string]bool{"m1": true, "m2": true, "m3": true})
	ctx := context.Background()
	cache.Set(ctx, "m1", false)
	cache.Set(ctx, "m2", false)

	_, err := engine.Invoke(ctx, []string{"m1", "m2", "m3"}, "p", "rc", 2)
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("got %v, want ExhaustedError", err)
	}
	if len(exhausted.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2 (skips count against the budget)", len(exhausted.Attempts))
	}
	for _, a := range exhausted.Attempts {
		if a.Outcome != OutcomeSkippedCached {
			t.Errorf("attempt %+v, want skipped_cached_unavailable", a)
		}
	}
	if len(client.order) != 0 {
		t.Errorf("cached-unavailable candidates were invoked: %v", client.order)
	}
}

func TestExhaustionAttemptLogLength(t *testing.T) {
	transient := &modelclient.APIError{Provider: "p", StatusCode: 503, Message: "down"}
	script := map[string][]error{}
	free := map[string]bool{}
	candidates := []string{"c1", "c2", "c3", "c4", "c5"}
	for _, id := range candidates {
		script[id] = []error{transient}
		free[id] = true
	}
	client := newScriptedClient(script)
	engine, _ := newTestEngine(client, &recordingSink{}, free)

	_, err := engine.Invoke(context.Background(), candidates, "p", "rc", 3)
	if !errors.Is(err, ErrAllCandidatesExhausted) {
		t.Fatalf("got %v, want ErrAllCandidatesExhausted", err)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatal("error does not carry attempts log")
	}
	if len(exhausted.Attempts) != 3 {
		t.Errorf("attempts = %d, want min(candidates, maxAttempts) = 3", len(exhausted.Attempts))
	}
}

// hangingClient blocks every invocation until the context ends.
type hangingClient struct{}

func (hangingClient) Probe(ctx context.Context, modelID string) error { return nil }

func (hangingClient) Invoke(ctx context.Context, modelID, prompt, roleContext string) (*modelclient.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSessionDeadlineDoesNotCacheFreeCandidate(t *testing.T) {
	engine, cache := newTestEngine(hangingClient{}, &recordingSink{}, map[string]bool{"free1": true})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := engine.Invoke(ctx, []string{"free1"}, "p", "rc", 5)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
	if _, ok := cache.Get(context.Background(), "free1"); ok {
		t.Error("deadline expiry must not mark a healthy free candidate unavailable")
	}
}

func TestInvokeHonorsContextCancellation(t *testing.T) {
	client := newScriptedClient(nil)
	engine, _ := newTestEngine(client, &recordingSink{}, map[string]bool{"m1": true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Invoke(ctx, []string{"m1"}, "p", "rc", 5)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
