package consensus

import "errors"

var (
	// ErrCostLimitExceeded aborts a session whose cost estimate exceeds the
	// caller's limit, before any model is invoked.
	ErrCostLimitExceeded = errors.New("estimated cost exceeds limit")

	// ErrConsensusFailed is returned when zero slots produced a perspective.
	ErrConsensusFailed = errors.New("consensus failed: no successful slots")

	// ErrSessionTimeout marks slots cut off by the session deadline.
	ErrSessionTimeout = errors.New("session deadline exceeded")

	// ErrNoCandidates is returned when the tier and domain select nothing.
	ErrNoCandidates = errors.New("no candidates for tier")
)
