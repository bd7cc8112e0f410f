package band

// CostTier is the pricing band of a model.
type CostTier string

const (
	CostFree    CostTier = "free"
	CostEconomy CostTier = "economy"
	CostPremium CostTier = "premium"
)

// Ladder returns the cost tiers in ascending price order. Service tiers
// compose additively along this ladder.
func Ladder() []CostTier {
	return []CostTier{CostFree, CostEconomy, CostPremium}
}

func ParseCostTier(s string) (CostTier, bool) {
	switch CostTier(s) {
	case CostFree, CostEconomy, CostPremium:
		return CostTier(s), true
	default:
		return "", false
	}
}

// OrgLevel is the organizational eligibility band. Eligibility is cumulative:
// a model eligible at executive level is implicitly eligible at senior and
// junior level.
type OrgLevel string

const (
	OrgJunior    OrgLevel = "junior"
	OrgSenior    OrgLevel = "senior"
	OrgExecutive OrgLevel = "executive"
)

// Level returns a numeric rank for comparison. Higher means more demanding.
func (o OrgLevel) Level() int {
	switch o {
	case OrgJunior:
		return 0
	case OrgSenior:
		return 1
	case OrgExecutive:
		return 2
	default:
		return -1
	}
}

// Covers reports whether a model classified at this level may serve requests
// at the required level.
func (o OrgLevel) Covers(required OrgLevel) bool {
	return o.Level() >= required.Level()
}

func ParseOrgLevel(s string) (OrgLevel, bool) {
	switch OrgLevel(s) {
	case OrgJunior, OrgSenior, OrgExecutive:
		return OrgLevel(s), true
	default:
		return "", false
	}
}
