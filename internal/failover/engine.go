package failover

import (
	"context"
	"log/slog"
	"time"

	"github.com/af-corp/quorum-engine/internal/alert"
	"github.com/af-corp/quorum-engine/internal/availability"
	"github.com/af-corp/quorum-engine/internal/catalog"
	"github.com/af-corp/quorum-engine/internal/config"
	"github.com/af-corp/quorum-engine/internal/modelclient"
)

// Lookup resolves a candidate id against the session's catalog snapshot.
// The free/paid split below depends on it.
type Lookup func(modelID string) (catalog.ModelRecord, bool)

// Policy tunes candidate handling. The free/paid distinction is the core
// rule: free capacity is expected to be volatile, so a failing free
// candidate is cached unavailable and skipped; paid capacity is expected to
// be stable, so a transient paid failure retries the same candidate with
// exponential backoff before moving on, and a permanent-looking paid
// failure raises an operator alert instead of polluting the health cache.
type Policy struct {
	PaidRetryLimit    int
	BackoffBase       time.Duration
	PaidRetryThenSkip bool
}

func PolicyFromConfig(cfg config.FailoverConfig) Policy {
	return Policy{
		PaidRetryLimit:    cfg.PaidRetryLimit,
		BackoffBase:       cfg.BackoffBase,
		PaidRetryThenSkip: cfg.PaidRetryThenSkip,
	}
}

// Invocation is the outcome of a successful failover run, including the
// full attempts log (the used model may not be the first candidate).
type Invocation struct {
	Text     string
	ModelID  string
	CostUSD  float64
	Attempts []Attempt
}

// Engine tries candidates in order with availability caching, probing, and
// the two-class failure model.
type Engine struct {
	cache  availability.Cache
	client modelclient.ModelClient
	alerts alert.Sink
	lookup Lookup
	policy Policy
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cache availability.Cache, client modelclient.ModelClient, alerts alert.Sink, lookup Lookup, policy Policy, logger *slog.Logger) *Engine {
	return &Engine{
		cache:  cache,
		client: client,
		alerts: alerts,
		lookup: lookup,
		policy: policy,
		logger: logger,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Invoke tries candidates in order, capped at maxAttempts. A candidate the
// cache marks unavailable is skipped without probing but still consumes one
// attempt. Context cancellation aborts immediately with the context error.
func (e *Engine) Invoke(ctx context.Context, candidates []string, prompt, roleContext string, maxAttempts int) (*Invocation, error) {
	var attempts []Attempt
	for _, id := range candidates {
		if len(attempts) >= maxAttempts {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if avail, ok := e.cache.Get(ctx, id); ok && !avail {
			e.logger.Debug("skipping cached-unavailable candidate", "model", id)
			attempts = append(attempts, Attempt{ModelID: id, Outcome: OutcomeSkippedCached, Reason: "cached unavailable"})
			continue
		}

		result, attempt, err := e.tryCandidate(ctx, id, prompt, roleContext)
		attempts = append(attempts, attempt)
		if err == nil {
			return &Invocation{Text: result.Text, ModelID: id, CostUSD: result.CostUSD, Attempts: attempts}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("candidate failed",
			"model", id, "outcome", string(attempt.Outcome), "retries", attempt.Retries, "error", err)
	}
	return nil, &ExhaustedError{Attempts: attempts}
}

func (e *Engine) tryCandidate(ctx context.Context, id, prompt, roleContext string) (*modelclient.Result, Attempt, error) {
	rec, known := e.lookup(id)
	paid := known && !rec.IsFree()

	result, err := e.attemptOnce(ctx, id, prompt, roleContext)
	if err == nil {
		e.cache.Set(ctx, id, true)
		return result, Attempt{ModelID: id, Outcome: OutcomeSuccess}, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		// The session ended, not the model; leave the cache untouched.
		return nil, Attempt{ModelID: id, Outcome: OutcomeTransient, Reason: ctxErr.Error()}, ctxErr
	}

	if !paid {
		// Free capacity is volatile; remember the outage and move on.
		e.cache.Set(ctx, id, false)
		return nil, Attempt{ModelID: id, Outcome: OutcomeTransient, Reason: err.Error()}, err
	}

	if Classify(err) == ClassPermanent {
		// A stale paid entry is a catalog defect, not a health event.
		e.alerts.Alert(id, "candidate likely deprecated, requires catalog update: "+err.Error())
		return nil, Attempt{ModelID: id, Outcome: OutcomePermanent, Reason: err.Error()}, err
	}

	if !e.policy.PaidRetryThenSkip {
		e.alerts.Alert(id, "paid candidate failing, skipped without retry: "+err.Error())
		e.cache.Set(ctx, id, false)
		return nil, Attempt{ModelID: id, Outcome: OutcomeTransient, Reason: err.Error()}, err
	}

	// Paid capacity is expected to recover quickly; retry the same
	// candidate with exponential backoff before failing it over.
	retries := 0
	for retries < e.policy.PaidRetryLimit {
		backoff := e.policy.BackoffBase << retries
		if serr := e.sleep(ctx, backoff); serr != nil {
			return nil, Attempt{ModelID: id, Outcome: OutcomeTransient, Reason: serr.Error(), Retries: retries}, serr
		}
		retries++

		result, err = e.attemptOnce(ctx, id, prompt, roleContext)
		if err == nil {
			e.cache.Set(ctx, id, true)
			return result, Attempt{ModelID: id, Outcome: OutcomeSuccess, Retries: retries}, nil
		}
		if Classify(err) == ClassPermanent {
			e.alerts.Alert(id, "candidate likely deprecated, requires catalog update: "+err.Error())
			return nil, Attempt{ModelID: id, Outcome: OutcomePermanent, Reason: err.Error(), Retries: retries}, err
		}
	}

	e.cache.Set(ctx, id, false)
	return nil, Attempt{ModelID: id, Outcome: OutcomeRetryExhausted, Reason: err.Error(), Retries: retries}, err
}

// attemptOnce runs the cheap probe, then the real call.
func (e *Engine) attemptOnce(ctx context.Context, id, prompt, roleContext string) (*modelclient.Result, error) {
	if err := e.client.Probe(ctx, id); err != nil {
		return nil, err
	}
	return e.client.Invoke(ctx, id, prompt, roleContext)
}
