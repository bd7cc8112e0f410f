package band

import (
	"log/slog"
	"sort"

	"github.com/af-corp/quorum-engine/internal/catalog"
)

// Filter is a conjunction of band constraints. Zero values mean "any".
type Filter struct {
	CostTier       CostTier
	OrgLevel       OrgLevel // minimum required eligibility
	Tag            string   // required specialization tag
	MinPerformance string   // minimum performance label per the criteria ladder
}

// Selector answers band queries against one catalog snapshot and one
// criteria table. It is side-effect-free and safe for concurrent use; each
// consensus session builds its own over the snapshots it captured.
type Selector struct {
	snap   *catalog.Snapshot
	crit   *Criteria
	logger *slog.Logger
}

func NewSelector(snap *catalog.Snapshot, crit *Criteria, logger *slog.Logger) *Selector {
	return &Selector{snap: snap, crit: crit, logger: logger}
}

// Criteria returns the criteria table this selector classifies against.
func (s *Selector) Criteria() *Criteria {
	return s.crit
}

// Snapshot returns the catalog snapshot this selector reads from.
func (s *Selector) Snapshot() *catalog.Snapshot {
	return s.snap
}

// Select returns up to limit active model ids matching the filter, ordered
// by composite benchmark score descending, then input cost ascending, then
// id. Fewer than limit matches is not an error; callers handle partial
// results. limit <= 0 means unlimited.
func (s *Selector) Select(f Filter, limit int) []string {
	type scored struct {
		id    string
		score float64
		cost  float64
	}

	var matches []scored
	for _, rec := range s.snap.All() {
		if rec.Status != catalog.StatusActive {
			continue
		}
		labels, err := Classify(rec, s.crit)
		if err != nil {
			s.logger.Warn("excluding unclassifiable record", "model", rec.ID, "error", err)
			continue
		}
		if f.CostTier != "" && labels.CostTier != f.CostTier {
			continue
		}
		if f.OrgLevel != "" && !labels.OrgEligibility.Covers(f.OrgLevel) {
			continue
		}
		if f.Tag != "" && !rec.HasTag(f.Tag) {
			continue
		}
		if f.MinPerformance != "" {
			want, ok := s.crit.PerformanceRank(f.MinPerformance)
			if !ok {
				continue
			}
			got, _ := s.crit.PerformanceRank(labels.PerformanceTier)
			if got < want {
				continue
			}
		}
		matches = append(matches, scored{id: rec.ID, score: rec.CompositeScore(), cost: rec.InputCostPerMillion})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		if matches[i].cost != matches[j].cost {
			return matches[i].cost < matches[j].cost
		}
		return matches[i].id < matches[j].id
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.id
	}
	return ids
}
