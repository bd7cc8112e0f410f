package consensus

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/af-corp/quorum-engine/internal/failover"
	"github.com/af-corp/quorum-engine/internal/tier"
)

// State is the lifecycle phase of a consensus session.
type State string

const (
	StateConfiguring  State = "configuring"
	StateConsulting   State = "consulting"
	StateSynthesizing State = "synthesizing"
	StateDegraded     State = "degraded"
	StateComplete     State = "complete"
	StateFailed       State = "failed"
)

// Perspective is one slot's successful consultation. ModelID may differ
// from the slot's assigned model when failover substituted a later
// candidate.
type Perspective struct {
	Role             string  `json:"role"`
	ModelID          string  `json:"model_id"`
	Text             string  `json:"text"`
	CostUSD          float64 `json:"cost_usd"`
	FailoverAttempts int     `json:"failover_attempts"`
}

// SlotFailure records one slot whose entire candidate sequence failed.
type SlotFailure struct {
	Role     string             `json:"role"`
	ModelID  string             `json:"model_id"`
	Reason   string             `json:"reason"`
	Attempts []failover.Attempt `json:"attempts,omitempty"`
}

// Session is the orchestrator's working state for one consensus run. It is
// owned by a single StartConsensus call and discarded after the report is
// built; durable history goes through the session sink.
type Session struct {
	ID           string
	Prompt       string
	Tier         int
	Domain       string
	Slots        []tier.RoleSlot
	State        State
	CostEstimate float64
	CostActual   float64
	StartedAt    time.Time
}

func newSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "sess-" + hex.EncodeToString([]byte(time.Now().Format("150405.000")))
	}
	return "sess-" + hex.EncodeToString(b)
}

// Disagreement is a minority position in the synthesized report.
type Disagreement struct {
	Claim           string   `json:"claim"`
	DissentingRoles []string `json:"dissenting_roles"`
}

// Report is the structured outcome of a consensus session.
type Report struct {
	SessionID        string         `json:"session_id"`
	Tier             int            `json:"tier"`
	Domain           string         `json:"domain"`
	State            State          `json:"state"`
	Degraded         bool           `json:"degraded"`
	ExecutiveSummary string         `json:"executive_summary"`
	Agreements       []string       `json:"agreements"`
	Disagreements    []Disagreement `json:"disagreements"`
	Perspectives     []Perspective  `json:"perspectives"`
	SlotsUsed        int            `json:"slots_used"`
	SlotsFailed      []SlotFailure  `json:"slots_failed"`
	CostEstimateUSD  float64        `json:"cost_estimate_usd"`
	CostActualUSD    float64        `json:"cost_actual_usd"`
	ElapsedMS        int64          `json:"elapsed_ms"`
}
