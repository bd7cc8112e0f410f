package tier

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/af-corp/quorum-engine/internal/band"
)

var (
	// ErrInvalidTier is returned for a tier outside 1..3.
	ErrInvalidTier = errors.New("invalid tier")
	// ErrUnknownDomain is returned for a domain outside the fixed role table.
	ErrUnknownDomain = errors.New("unknown domain")
)

// MinTier and MaxTier bound the additive service levels.
const (
	MinTier = 1
	MaxTier = 3
)

// TargetCounts caps how many candidates each cost band contributes to a
// tier's candidate list.
type TargetCounts map[band.CostTier]int

// CountsFromConfig converts the string-keyed config map, ignoring keys that
// are not cost tiers.
func CountsFromConfig(raw map[string]int) TargetCounts {
	counts := make(TargetCounts, len(raw))
	for k, v := range raw {
		if ct, ok := band.ParseCostTier(k); ok {
			counts[ct] = v
		}
	}
	return counts
}

// SpecializationForDomain maps a consultation domain to the catalog tag its
// candidates should carry. The general domain accepts any model.
func SpecializationForDomain(domain string) (string, bool) {
	switch domain {
	case "code_review":
		return "coding", true
	case "security":
		return "security", true
	case "architecture":
		return "reasoning", true
	case "general":
		return "", true
	default:
		return "", false
	}
}

// Manager builds candidate lists over one selector. Tiers compose
// additively: tier N is the tier N-1 list followed by the next cost band's
// selection, so the tier-1 sublist is positionally identical inside every
// higher tier.
type Manager struct {
	sel    *band.Selector
	logger *slog.Logger
}

func NewManager(sel *band.Selector, logger *slog.Logger) *Manager {
	return &Manager{sel: sel, logger: logger}
}

// CandidatesForTier returns the ordered candidate list for a tier and
// domain. Each cost band contributes at most counts[band] ids; bands with
// no count configured contribute nothing. Partial bands are not an error.
func (m *Manager) CandidatesForTier(tierLevel int, domain string, counts TargetCounts) ([]string, error) {
	if tierLevel < MinTier || tierLevel > MaxTier {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTier, tierLevel)
	}
	tag, ok := SpecializationForDomain(domain)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}

	var candidates []string
	for _, costTier := range band.Ladder()[:tierLevel] {
		limit := counts[costTier]
		if limit <= 0 {
			continue
		}
		ids := m.sel.Select(band.Filter{CostTier: costTier, Tag: tag}, limit)
		if len(ids) < limit {
			m.logger.Debug("cost band under target",
				"cost_tier", string(costTier), "domain", domain, "want", limit, "got", len(ids))
		}
		candidates = append(candidates, ids...)
	}
	return candidates, nil
}
