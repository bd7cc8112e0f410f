package band

import (
	"errors"
	"fmt"

	"github.com/af-corp/quorum-engine/internal/catalog"
)

// ErrMalformedRecord marks a catalog record that cannot be classified.
// Such records are excluded from selection, never silently defaulted.
var ErrMalformedRecord = errors.New("malformed catalog record")

// checkRecord verifies the numeric fields classification depends on.
func checkRecord(rec catalog.ModelRecord) error {
	if rec.InputCostPerMillion < 0 || rec.OutputCostPerMillion < 0 {
		return fmt.Errorf("%w: %s has negative cost", ErrMalformedRecord, rec.ID)
	}
	if rec.ContextWindow <= 0 {
		return fmt.Errorf("%w: %s has non-positive context window", ErrMalformedRecord, rec.ID)
	}
	if len(rec.BenchmarkScores) == 0 {
		return fmt.Errorf("%w: %s has no benchmark scores", ErrMalformedRecord, rec.ID)
	}
	return nil
}

// ClassifyCostTier maps a record to its pricing band. Free means both
// directions cost zero; economy is bounded by the criteria threshold on
// input cost; everything above is premium.
func ClassifyCostTier(rec catalog.ModelRecord, crit *Criteria) (CostTier, error) {
	if err := checkRecord(rec); err != nil {
		return "", err
	}
	switch {
	case rec.IsFree():
		return CostFree, nil
	case rec.InputCostPerMillion <= crit.EconomyMaxInputCost:
		return CostEconomy, nil
	default:
		return CostPremium, nil
	}
}

// ClassifyPerformanceTier maps a record's composite benchmark score to the
// highest performance band it reaches.
func ClassifyPerformanceTier(rec catalog.ModelRecord, crit *Criteria) (string, error) {
	if err := checkRecord(rec); err != nil {
		return "", err
	}
	score := rec.CompositeScore()
	for _, b := range crit.ladder() {
		if score >= b.MinScore {
			return b.Label, nil
		}
	}
	// Validate guarantees a zero-floor band, so this is unreachable for
	// well-formed criteria.
	return "", fmt.Errorf("%w: %s matches no performance band", ErrMalformedRecord, rec.ID)
}

// ClassifyOrgEligibility returns the highest org level the record qualifies
// for. Eligibility is cumulative via OrgLevel.Covers.
func ClassifyOrgEligibility(rec catalog.ModelRecord, crit *Criteria) (OrgLevel, error) {
	if err := checkRecord(rec); err != nil {
		return "", err
	}
	score := rec.CompositeScore()
	switch {
	case score >= crit.Org.ExecutiveMinScore:
		return OrgExecutive, nil
	case score >= crit.Org.SeniorMinScore:
		return OrgSenior, nil
	default:
		return OrgJunior, nil
	}
}

// Labels bundles the three band dimensions for one record.
type Labels struct {
	CostTier        CostTier
	PerformanceTier string
	OrgEligibility  OrgLevel
}

// Classify computes all band dimensions for a record in one pass.
func Classify(rec catalog.ModelRecord, crit *Criteria) (Labels, error) {
	cost, err := ClassifyCostTier(rec, crit)
	if err != nil {
		return Labels{}, err
	}
	perf, err := ClassifyPerformanceTier(rec, crit)
	if err != nil {
		return Labels{}, err
	}
	org, err := ClassifyOrgEligibility(rec, crit)
	if err != nil {
		return Labels{}, err
	}
	return Labels{CostTier: cost, PerformanceTier: perf, OrgEligibility: org}, nil
}
