package failover

import (
	"errors"
	"fmt"
)

// ErrAllCandidatesExhausted is returned when every candidate failed or was
// skipped. Match with errors.Is; the concrete *ExhaustedError carries the
// per-candidate attempts log so callers can present degraded output.
var ErrAllCandidatesExhausted = errors.New("all candidates exhausted")

// Outcome labels what happened to one candidate attempt.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeSkippedCached  Outcome = "skipped_cached_unavailable"
	OutcomeTransient      Outcome = "transient_failure"
	OutcomeRetryExhausted Outcome = "retry_exhausted"
	OutcomePermanent      Outcome = "permanent_failure"
	OutcomeUnroutable     Outcome = "unroutable"
)

// Attempt records one entry of the failover log. Retries against the same
// paid candidate are folded into a single attempt with Retries > 0.
type Attempt struct {
	ModelID string  `json:"model_id"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
	Retries int     `json:"retries,omitempty"`
}

// ExhaustedError wraps ErrAllCandidatesExhausted with the attempts log.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all candidates exhausted after %d attempts", len(e.Attempts))
}

func (e *ExhaustedError) Unwrap() error {
	return ErrAllCandidatesExhausted
}
