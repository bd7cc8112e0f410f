package modelclient

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable is the explicit "backend down" signal, distinct from
// transport errors carrying an HTTP status.
var ErrUnavailable = errors.New("model backend unavailable")

// Result is the outcome of one successful model invocation.
type Result struct {
	Text             string
	CostUSD          float64
	PromptTokens     int
	CompletionTokens int
}

// ModelClient invokes a model backend. Probe is a cheap health check (a
// minimal-token call); Invoke runs the real consultation. Both honor
// context cancellation.
type ModelClient interface {
	Probe(ctx context.Context, modelID string) error
	Invoke(ctx context.Context, modelID, prompt, roleContext string) (*Result, error)
}

// APIError carries the provider's HTTP status so failure classification can
// distinguish transient capacity errors from permanent-looking ones.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// PriceLookup resolves per-million-token costs for a model id, normally
// bound to a catalog snapshot.
type PriceLookup func(modelID string) (inputPerMillion, outputPerMillion float64, ok bool)
