package failover

import (
	"errors"
	"net/http"

	"github.com/af-corp/quorum-engine/internal/modelclient"
)

// Class is the failure class of a candidate error.
type Class int

const (
	// ClassTransient errors are expected to clear on retry or with a
	// different candidate: rate limits, temporary capacity, overload.
	ClassTransient Class = iota
	// ClassPermanent errors (not-found, policy block) suggest the catalog
	// entry itself is stale. On a paid candidate they raise an operator
	// alert instead of being cached as a health problem.
	ClassPermanent
	// ClassUnknown covers everything else; treated like transient so an
	// unrecognized error never masks a working later candidate.
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Classify maps a model-client error to its failure class.
func Classify(err error) Class {
	if errors.Is(err, modelclient.ErrUnavailable) {
		return ClassTransient
	}
	var apiErr *modelclient.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable,
			http.StatusGatewayTimeout, 529:
			return ClassTransient
		case http.StatusNotFound, http.StatusForbidden, http.StatusUnauthorized:
			return ClassPermanent
		}
	}
	return ClassUnknown
}
