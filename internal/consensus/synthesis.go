package consensus

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopwords are excluded from claim keyword sets so clustering keys on
// content words.
var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "also": {}, "because": {}, "been": {},
	"before": {}, "being": {}, "between": {}, "both": {}, "could": {},
	"does": {}, "each": {}, "from": {}, "have": {}, "here": {},
	"however": {}, "into": {}, "more": {}, "most": {}, "other": {},
	"over": {}, "should": {}, "since": {}, "some": {}, "such": {},
	"than": {}, "that": {}, "their": {}, "them": {}, "then": {},
	"there": {}, "these": {}, "they": {}, "this": {}, "those": {},
	"through": {}, "under": {}, "very": {}, "were": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "while": {}, "will": {},
	"with": {}, "would": {}, "your": {},
}

// keywordSet normalizes a perspective text into its content-word set:
// lowercase, split on non-alphanumerics, short words and stopwords dropped.
func keywordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len(w) <= 3 {
			continue
		}
		if _, skip := stopwords[w]; skip {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

// jaccard is |a ∩ b| / |a ∪ b|; zero when both sets are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

const maxClaimLen = 160

// claimOf extracts a cluster's representative claim: the first sentence of
// its first member, capped for report readability.
func claimOf(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			text = text[:i+1]
			break
		}
	}
	if len(text) > maxClaimLen {
		cut := maxClaimLen - 3
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = strings.TrimSpace(text[:cut]) + "..."
	}
	return text
}

type cluster struct {
	keywords map[string]struct{} // first member's set, the comparison anchor
	members  []Perspective
}

// Synthesize merges perspectives into agreements and disagreements. Input
// order does not matter: perspectives are sorted by role before clustering,
// so a fixed input set always yields an identical report shape. A cluster
// backed by a strict majority of responding slots becomes an agreement;
// every other cluster becomes a disagreement naming its dissenting roles.
func Synthesize(perspectives []Perspective, threshold float64) (summary string, agreements []string, disagreements []Disagreement) {
	ordered := make([]Perspective, len(perspectives))
	copy(ordered, perspectives)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Role < ordered[j].Role })

	var clusters []*cluster
	for _, p := range ordered {
		kw := keywordSet(p.Text)
		joined := false
		for _, c := range clusters {
			if jaccard(kw, c.keywords) >= threshold {
				c.members = append(c.members, p)
				joined = true
				break
			}
		}
		if !joined {
			clusters = append(clusters, &cluster{keywords: kw, members: []Perspective{p}})
		}
	}

	n := len(ordered)
	for _, c := range clusters {
		claim := claimOf(c.members[0].Text)
		if len(c.members)*2 > n {
			agreements = append(agreements, claim)
			continue
		}
		roles := make([]string, len(c.members))
		for i, m := range c.members {
			roles[i] = m.Role
		}
		sort.Strings(roles)
		disagreements = append(disagreements, Disagreement{Claim: claim, DissentingRoles: roles})
	}

	return executiveSummary(n, agreements, disagreements), agreements, disagreements
}

func executiveSummary(n int, agreements []string, disagreements []Disagreement) string {
	switch {
	case n == 0:
		return "No perspectives were collected."
	case len(agreements) > 0 && len(disagreements) > 0:
		return fmt.Sprintf("%d perspectives converged on %d majority position(s) with %d dissenting position(s). Majority view: %s",
			n, len(agreements), len(disagreements), agreements[0])
	case len(agreements) > 0:
		return fmt.Sprintf("All %d perspectives converged on %d majority position(s). Majority view: %s",
			n, len(agreements), agreements[0])
	default:
		return fmt.Sprintf("No majority position emerged across %d perspectives; %d distinct positions were recorded.",
			n, len(disagreements))
	}
}
