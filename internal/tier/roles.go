package tier

import (
	"fmt"
	"log/slog"
)

// domainRoles holds the fixed role ladder per domain. Index t-1 is the
// increment tier t adds on top of tier t-1, so the role list composes the
// same additive way candidate lists do.
var domainRoles = map[string][MaxTier][]string{
	"general": {
		{"generalist", "skeptic", "pragmatist"},
		{"researcher", "editor"},
		{"strategist", "arbiter"},
	},
	"code_review": {
		{"correctness_reviewer", "readability_reviewer", "test_reviewer"},
		{"performance_reviewer", "api_design_reviewer"},
		{"security_reviewer", "maintainability_arbiter"},
	},
	"security": {
		{"threat_modeler", "vulnerability_analyst", "compliance_checker"},
		{"crypto_reviewer", "supply_chain_analyst"},
		{"red_teamer", "risk_arbiter"},
	},
	"architecture": {
		{"systems_designer", "scalability_analyst", "simplicity_advocate"},
		{"reliability_engineer", "cost_analyst"},
		{"domain_modeler", "tradeoff_arbiter"},
	},
}

// RolesForTier returns the ordered role list for a tier and domain. The
// tier-1 sublist is positionally identical inside every higher tier.
func RolesForTier(tierLevel int, domain string) ([]string, error) {
	if tierLevel < MinTier || tierLevel > MaxTier {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTier, tierLevel)
	}
	ladder, ok := domainRoles[domain]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
	var roles []string
	for _, increment := range ladder[:tierLevel] {
		roles = append(roles, increment...)
	}
	return roles, nil
}

// Domains lists the closed set of supported consultation domains.
func Domains() []string {
	return []string{"code_review", "security", "architecture", "general"}
}

// RoleSlot is one (role, model) pairing within a consensus session.
type RoleSlot struct {
	Role    string `json:"role"`
	ModelID string `json:"model_id"`
	Domain  string `json:"domain"`
}

// AssignModelsToRoles pairs roles to candidates positionally. When roles
// outnumber candidates, assignment wraps around and a degraded-assignment
// warning is logged. An empty candidate list yields no slots.
func AssignModelsToRoles(roles, candidates []string, domain string, logger *slog.Logger) []RoleSlot {
	if len(candidates) == 0 {
		return nil
	}
	if len(roles) > len(candidates) {
		logger.Warn("degraded role assignment, candidates fewer than roles",
			"domain", domain, "roles", len(roles), "candidates", len(candidates))
	}
	slots := make([]RoleSlot, len(roles))
	for i, role := range roles {
		slots[i] = RoleSlot{Role: role, ModelID: candidates[i%len(candidates)], Domain: domain}
	}
	return slots
}
