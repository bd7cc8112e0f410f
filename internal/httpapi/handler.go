package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/af-corp/quorum-engine/internal/auth"
	"github.com/af-corp/quorum-engine/internal/band"
	"github.com/af-corp/quorum-engine/internal/catalog"
	"github.com/af-corp/quorum-engine/internal/consensus"
	"github.com/af-corp/quorum-engine/internal/httputil"
	"github.com/af-corp/quorum-engine/internal/policy"
	"github.com/af-corp/quorum-engine/internal/tier"
)

// Handler serves the consensus and catalog endpoints.
type Handler struct {
	orch     *consensus.Orchestrator
	gate     *policy.Gate
	snapshot func() *catalog.Snapshot
	criteria func() *band.Criteria
	logger   *slog.Logger
}

func NewHandler(
	orch *consensus.Orchestrator,
	gate *policy.Gate,
	snapshot func() *catalog.Snapshot,
	criteria func() *band.Criteria,
	logger *slog.Logger,
) *Handler {
	return &Handler{orch: orch, gate: gate, snapshot: snapshot, criteria: criteria, logger: logger}
}

type consensusRequest struct {
	Prompt          string   `json:"prompt"`
	Tier            int      `json:"tier"`
	Domain          string   `json:"domain"`
	MaxCostUSD      *float64 `json:"max_cost_usd,omitempty"`
	DeadlineSeconds int      `json:"deadline_seconds,omitempty"`
}

// HandleConsensus runs one consensus session per request.
func (h *Handler) HandleConsensus(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var req consensusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON body: "+err.Error())
		return
	}
	if req.Prompt == "" {
		httputil.WriteBadRequestError(w, reqID, "prompt is required")
		return
	}
	if req.Tier < tier.MinTier || req.Tier > tier.MaxTier {
		httputil.WriteBadRequestError(w, reqID, "tier must be 1, 2 or 3")
		return
	}
	if _, ok := tier.SpecializationForDomain(req.Domain); !ok {
		httputil.WriteBadRequestError(w, reqID, "unknown domain: "+req.Domain)
		return
	}

	info, authed := auth.AuthFromContext(r.Context())
	if authed && info.MaxTier > 0 && req.Tier > info.MaxTier {
		httputil.WritePolicyDeniedError(w, reqID, "requested tier exceeds this key's maximum tier")
		return
	}

	if h.gate != nil && h.gate.Enabled() {
		var declaredCost float64
		if req.MaxCostUSD != nil {
			declaredCost = *req.MaxCostUSD
		}
		var orgID, orgLevel string
		if authed {
			orgID = info.OrganizationID
			orgLevel = string(info.OrgLevel)
		}
		if allowed, reason := h.gate.Admit(r.Context(), orgID, orgLevel, req.Tier, req.Domain, declaredCost); !allowed {
			httputil.WritePolicyDeniedError(w, reqID, "Request denied by policy: "+reason)
			return
		}
	}

	report, err := h.orch.StartConsensus(r.Context(), consensus.Request{
		Prompt:     req.Prompt,
		Tier:       req.Tier,
		Domain:     req.Domain,
		MaxCostUSD: req.MaxCostUSD,
		Deadline:   time.Duration(req.DeadlineSeconds) * time.Second,
	})
	if err != nil {
		switch {
		case errors.Is(err, tier.ErrInvalidTier), errors.Is(err, tier.ErrUnknownDomain):
			httputil.WriteBadRequestError(w, reqID, err.Error())
		case errors.Is(err, consensus.ErrCostLimitExceeded):
			httputil.WriteCostLimitError(w, reqID, err.Error())
		case errors.Is(err, consensus.ErrNoCandidates), errors.Is(err, consensus.ErrConsensusFailed):
			httputil.WriteConsensusFailedError(w, reqID, err.Error())
		default:
			h.logger.Error("consensus request failed", "error", err)
			httputil.WriteInternalError(w, reqID, "Internal error running consensus")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

type modelEntry struct {
	ID              string         `json:"id"`
	Provider        string         `json:"provider"`
	Status          catalog.Status `json:"status"`
	CostTier        band.CostTier  `json:"cost_tier,omitempty"`
	PerformanceTier string         `json:"performance_tier,omitempty"`
	OrgEligibility  band.OrgLevel  `json:"org_eligibility,omitempty"`
	CompositeScore  float64        `json:"composite_score"`
}

// HandleModels lists the catalog with its current band labels. Records that
// fail classification are listed without labels rather than hidden.
func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshot()
	crit := h.criteria()

	entries := make([]modelEntry, 0, snap.Len())
	for _, rec := range snap.All() {
		entry := modelEntry{
			ID:             rec.ID,
			Provider:       rec.Provider,
			Status:         rec.Status,
			CompositeScore: rec.CompositeScore(),
		}
		if labels, err := band.Classify(rec, crit); err == nil {
			entry.CostTier = labels.CostTier
			entry.PerformanceTier = labels.PerformanceTier
			entry.OrgEligibility = labels.OrgEligibility
		}
		entries = append(entries, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"catalog_version": snap.Version,
		"models":          entries,
	})
}
