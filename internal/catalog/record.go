package catalog

// Status is the lifecycle state of a catalog entry.
type Status string

const (
	StatusActive      Status = "active"
	StatusDeprecated  Status = "deprecated"
	StatusUnavailable Status = "unavailable"
)

// ParseStatus validates a status string from the catalog file.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusActive, StatusDeprecated, StatusUnavailable:
		return Status(s), true
	default:
		return "", false
	}
}

// ModelRecord is one immutable row of the model catalog. Records are never
// mutated after load; status changes arrive via a full catalog reload.
type ModelRecord struct {
	ID                   string             `yaml:"id"`
	Provider             string             `yaml:"provider"`
	InputCostPerMillion  float64            `yaml:"input_cost_per_million"`
	OutputCostPerMillion float64            `yaml:"output_cost_per_million"`
	ContextWindow        int                `yaml:"context_window"`
	BenchmarkScores      map[string]float64 `yaml:"benchmark_scores"`
	Status               Status             `yaml:"status"`
	SpecializationTags   []string           `yaml:"specialization_tags"`
}

// IsFree reports whether the model costs nothing on both directions.
func (r ModelRecord) IsFree() bool {
	return r.InputCostPerMillion == 0 && r.OutputCostPerMillion == 0
}

// CompositeScore is the mean of all benchmark scores. It is the primary
// ordering key for candidate selection; zero when no scores are present.
func (r ModelRecord) CompositeScore() float64 {
	if len(r.BenchmarkScores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range r.BenchmarkScores {
		sum += s
	}
	return sum / float64(len(r.BenchmarkScores))
}

// HasTag reports whether the record carries the given specialization tag.
func (r ModelRecord) HasTag(tag string) bool {
	for _, t := range r.SpecializationTags {
		if t == tag {
			return true
		}
	}
	return false
}

// CostPerCall estimates the dollar cost of a single call with the given
// token counts.
func (r ModelRecord) CostPerCall(promptTokens, completionTokens int) float64 {
	return r.InputCostPerMillion*float64(promptTokens)/1e6 +
		r.OutputCostPerMillion*float64(completionTokens)/1e6
}
