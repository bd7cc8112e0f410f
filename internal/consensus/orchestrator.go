package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/af-corp/quorum-engine/internal/band"
	"github.com/af-corp/quorum-engine/internal/catalog"
	"github.com/af-corp/quorum-engine/internal/config"
	"github.com/af-corp/quorum-engine/internal/failover"
	"github.com/af-corp/quorum-engine/internal/telemetry"
	"github.com/af-corp/quorum-engine/internal/tier"
)

// Invoker runs one slot's candidate sequence. Satisfied by the failover
// engine; tests substitute doubles.
type Invoker interface {
	Invoke(ctx context.Context, candidates []string, prompt, roleContext string, maxAttempts int) (*failover.Invocation, error)
}

// SessionRecord is the durable trace of one session, successful or not.
type SessionRecord struct {
	ID              string
	Tier            int
	Domain          string
	State           State
	SlotsUsed       int
	SlotsFailed     int
	CostEstimateUSD float64
	CostActualUSD   float64
	StartedAt       time.Time
	ElapsedMS       int64
}

// SessionSink receives session records. Delivery is best effort and must
// not block the caller.
type SessionSink interface {
	RecordSession(ctx context.Context, rec SessionRecord)
}

// Options are the per-session tunables.
type Options struct {
	MaxAttempts         int
	MaxSlotConcurrency  int
	DefaultDeadline     time.Duration
	EstOutputTokens     int
	SimilarityThreshold float64
	TargetCounts        tier.TargetCounts
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxAttempts:         cfg.Failover.MaxAttempts,
		MaxSlotConcurrency:  cfg.Consensus.MaxSlotConcurrency,
		DefaultDeadline:     cfg.Consensus.DefaultDeadline,
		EstOutputTokens:     cfg.Consensus.EstOutputTokens,
		SimilarityThreshold: cfg.Consensus.SimilarityThreshold,
		TargetCounts:        tier.CountsFromConfig(cfg.Consensus.TargetCounts),
	}
}

// Request starts one consensus session. MaxCostUSD is advisory: when set,
// the session fails fast if the cost estimate exceeds it. A zero Deadline
// uses the configured default.
type Request struct {
	Prompt     string
	Tier       int
	Domain     string
	MaxCostUSD *float64
	Deadline   time.Duration
}

// Orchestrator runs consensus sessions. The catalog snapshot and criteria
// are captured once per session at configuration time, so a hot reload
// mid-session never changes that session's candidate list.
type Orchestrator struct {
	snapshot func() *catalog.Snapshot
	criteria func() *band.Criteria
	invoker  Invoker
	metrics  *telemetry.Metrics
	sink     SessionSink
	opts     Options
	logger   *slog.Logger
}

func NewOrchestrator(
	snapshot func() *catalog.Snapshot,
	criteria func() *band.Criteria,
	invoker Invoker,
	metrics *telemetry.Metrics,
	sink SessionSink,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		snapshot: snapshot,
		criteria: criteria,
		invoker:  invoker,
		metrics:  metrics,
		sink:     sink,
		opts:     opts,
		logger:   logger,
	}
}

// StartConsensus runs one full session and returns its report. Errors from
// the configuring phase (invalid tier, unknown domain, no candidates, cost
// limit) occur before any model invocation.
func (o *Orchestrator) StartConsensus(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	sess := &Session{
		ID:        newSessionID(),
		Prompt:    req.Prompt,
		Tier:      req.Tier,
		Domain:    req.Domain,
		State:     StateConfiguring,
		StartedAt: start,
	}
	log := o.logger.With("session", sess.ID, "tier", req.Tier, "domain", req.Domain)

	snap := o.snapshot()
	crit := o.criteria()
	sel := band.NewSelector(snap, crit, log)
	mgr := tier.NewManager(sel, log)

	candidates, err := mgr.CandidatesForTier(req.Tier, req.Domain, o.opts.TargetCounts)
	if err != nil {
		return nil, o.abort(sess, log, start, err)
	}
	if len(candidates) == 0 {
		return nil, o.abort(sess, log, start,
			fmt.Errorf("%w: tier %d, domain %q", ErrNoCandidates, req.Tier, req.Domain))
	}
	roles, err := tier.RolesForTier(req.Tier, req.Domain)
	if err != nil {
		return nil, o.abort(sess, log, start, err)
	}
	sess.Slots = tier.AssignModelsToRoles(roles, candidates, req.Domain, log)

	promptTokens := estimateTokens(req.Prompt)
	for _, slot := range sess.Slots {
		if rec, ok := snap.Get(slot.ModelID); ok {
			sess.CostEstimate += rec.CostPerCall(promptTokens, o.opts.EstOutputTokens)
		}
	}
	if req.MaxCostUSD != nil && sess.CostEstimate > *req.MaxCostUSD {
		return nil, o.abort(sess, log, start,
			fmt.Errorf("%w: estimated $%.4f, limit $%.4f", ErrCostLimitExceeded, sess.CostEstimate, *req.MaxCostUSD))
	}

	sess.State = StateConsulting
	deadline := req.Deadline
	if deadline <= 0 {
		deadline = o.opts.DefaultDeadline
	}
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	perspectives, failures := o.consult(cctx, sess, candidates, req.Prompt)
	for _, p := range perspectives {
		sess.CostActual += p.CostUSD
	}
	elapsed := time.Since(start)
	tierLabel := strconv.Itoa(req.Tier)

	if len(perspectives) == 0 {
		sess.State = StateFailed
		o.metrics.ObserveSession(tierLabel, req.Domain, string(StateFailed), elapsed)
		o.record(sess, 0, len(failures), elapsed)
		log.Error("consensus failed, zero successful slots", "slots", len(sess.Slots))
		return nil, fmt.Errorf("%w: session %s", ErrConsensusFailed, sess.ID)
	}

	degraded := len(failures) > 0
	if degraded {
		sess.State = StateDegraded
		log.Warn("proceeding degraded", "succeeded", len(perspectives), "failed", len(failures))
	} else {
		sess.State = StateSynthesizing
	}

	summary, agreements, disagreements := Synthesize(perspectives, o.opts.SimilarityThreshold)
	sess.State = StateComplete

	o.metrics.AddCost(tierLabel, req.Domain, sess.CostActual)
	o.metrics.ObserveSession(tierLabel, req.Domain, string(StateComplete), elapsed)
	o.record(sess, len(perspectives), len(failures), elapsed)
	log.Info("session complete",
		"slots_used", len(perspectives), "slots_failed", len(failures),
		"cost_usd", sess.CostActual, "elapsed", elapsed)

	if agreements == nil {
		agreements = []string{}
	}
	if disagreements == nil {
		disagreements = []Disagreement{}
	}
	return &Report{
		SessionID:        sess.ID,
		Tier:             req.Tier,
		Domain:           req.Domain,
		State:            StateComplete,
		Degraded:         degraded,
		ExecutiveSummary: summary,
		Agreements:       agreements,
		Disagreements:    disagreements,
		Perspectives:     perspectives,
		SlotsUsed:        len(perspectives),
		SlotsFailed:      failures,
		CostEstimateUSD:  sess.CostEstimate,
		CostActualUSD:    sess.CostActual,
		ElapsedMS:        elapsed.Milliseconds(),
	}, nil
}

// consult dispatches all slots concurrently against a bounded pool. Each
// slot's candidate order is rotated by its index so parallel slots lead
// with different models while keeping the full sequence for failover.
func (o *Orchestrator) consult(ctx context.Context, sess *Session, candidates []string, prompt string) ([]Perspective, []SlotFailure) {
	limit := o.opts.MaxSlotConcurrency
	if len(sess.Slots) < limit {
		limit = len(sess.Slots)
	}
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	type slotResult struct {
		perspective *Perspective
		failure     *SlotFailure
	}
	results := make([]slotResult, len(sess.Slots))

	var wg sync.WaitGroup
	for i, slot := range sess.Slots {
		wg.Add(1)
		go func(i int, slot tier.RoleSlot) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			inv, err := o.invoker.Invoke(ctx, rotated(candidates, i), prompt, roleContext(slot), o.opts.MaxAttempts)
			if err != nil {
				reason := err.Error()
				if errors.Is(err, context.DeadlineExceeded) {
					reason = ErrSessionTimeout.Error()
				}
				var exhausted *failover.ExhaustedError
				var attempts []failover.Attempt
				if errors.As(err, &exhausted) {
					attempts = exhausted.Attempts
				}
				results[i].failure = &SlotFailure{Role: slot.Role, ModelID: slot.ModelID, Reason: reason, Attempts: attempts}
				o.metrics.ObserveSlot("failed", len(attempts))
				return
			}
			results[i].perspective = &Perspective{
				Role:             slot.Role,
				ModelID:          inv.ModelID,
				Text:             inv.Text,
				CostUSD:          inv.CostUSD,
				FailoverAttempts: len(inv.Attempts),
			}
			o.metrics.ObserveSlot("succeeded", len(inv.Attempts))
		}(i, slot)
	}
	wg.Wait()

	perspectives := []Perspective{}
	failures := []SlotFailure{}
	for _, r := range results {
		switch {
		case r.perspective != nil:
			perspectives = append(perspectives, *r.perspective)
		case r.failure != nil:
			failures = append(failures, *r.failure)
		}
	}
	return perspectives, failures
}

func (o *Orchestrator) abort(sess *Session, log *slog.Logger, start time.Time, err error) error {
	sess.State = StateFailed
	elapsed := time.Since(start)
	o.metrics.ObserveSession(strconv.Itoa(sess.Tier), sess.Domain, string(StateFailed), elapsed)
	o.record(sess, 0, 0, elapsed)
	log.Warn("session aborted during configuration", "error", err)
	return err
}

// record hands the session to the sink without blocking the caller.
func (o *Orchestrator) record(sess *Session, used, failed int, elapsed time.Duration) {
	if o.sink == nil {
		return
	}
	rec := SessionRecord{
		ID:              sess.ID,
		Tier:            sess.Tier,
		Domain:          sess.Domain,
		State:           sess.State,
		SlotsUsed:       used,
		SlotsFailed:     failed,
		CostEstimateUSD: sess.CostEstimate,
		CostActualUSD:   sess.CostActual,
		StartedAt:       sess.StartedAt,
		ElapsedMS:       elapsed.Milliseconds(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.sink.RecordSession(ctx, rec)
	}()
}

// rotated shifts the candidate list left by i positions so slot i leads
// with a different candidate while preserving the failover sequence.
func rotated(candidates []string, i int) []string {
	n := len(candidates)
	off := i % n
	if off == 0 {
		return candidates
	}
	out := make([]string, 0, n)
	out = append(out, candidates[off:]...)
	return append(out, candidates[:off]...)
}

// estimateTokens approximates the token count of a prompt at four bytes per
// token, matching the coarse pricing granularity of the catalog.
func estimateTokens(prompt string) int {
	n := len(prompt) / 4
	if n < 1 {
		n = 1
	}
	return n
}

func roleContext(slot tier.RoleSlot) string {
	return fmt.Sprintf("You are acting as the %s in a %s consultation. Give your independent assessment; state your main claim in the first sentence.",
		slot.Role, slot.Domain)
}
