// Package ledger persists consensus session traces to PostgreSQL for audit
// and spend reporting.
package ledger

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/af-corp/quorum-engine/internal/consensus"
)

// Store writes session records. A nil pool disables persistence, so the
// engine runs without a database in development.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewStore(db *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) RecordSession(ctx context.Context, rec consensus.SessionRecord) {
	if s.db == nil {
		return
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO consensus_sessions
			(id, tier, domain, state, slots_used, slots_failed,
			 cost_estimate_usd, cost_actual_usd, started_at, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.Tier, rec.Domain, string(rec.State), rec.SlotsUsed, rec.SlotsFailed,
		rec.CostEstimateUSD, rec.CostActualUSD, rec.StartedAt, rec.ElapsedMS)
	if err != nil {
		s.logger.Warn("session ledger insert failed", "session", rec.ID, "error", err)
	}
}
