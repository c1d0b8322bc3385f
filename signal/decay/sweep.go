// Package decay ages evidence out of the active set. Confidence halves on
// a configured per-day schedule; once a signal's effective confidence
// falls below the floor it stops contributing to fusion. The ledger row
// itself is never rewritten, only its active flag.
package decay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhq/meridian/signal"
	"github.com/meridianhq/meridian/signal/fusion"
)

// Stats summarizes one sweep.
type Stats struct {
	EntitiesVisited int
	Deactivated     int
	StartedAt       time.Time
	Duration        time.Duration
}

// Sweeper walks every entity with active signals, retires the ones whose
// decayed confidence has dropped below the floor, and re-fuses the
// affected entities. Running a sweep twice back to back is a no-op the
// second time: decay depends only on signal age, not on sweep count.
type Sweeper struct {
	ledger     *signal.Ledger
	fuser      *fusion.Engine
	logger     *zap.SugaredLogger
	ratePerDay float64
	floor      float64
}

func NewSweeper(ledger *signal.Ledger, fuser *fusion.Engine, ratePerDay, floor float64, logger *zap.SugaredLogger) *Sweeper {
	return &Sweeper{
		ledger:     ledger,
		fuser:      fuser,
		logger:     logger,
		ratePerDay: ratePerDay,
		floor:      floor,
	}
}

// Run performs one sweep over all entities with active signals.
func (s *Sweeper) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartedAt: time.Now().UTC()}
	now := stats.StartedAt

	entities, err := s.ledger.ActiveEntities(ctx)
	if err != nil {
		return stats, err
	}

	for _, entityID := range entities {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.EntitiesVisited++

		active, err := s.ledger.ActiveByEntity(ctx, entityID)
		if err != nil {
			return stats, err
		}

		var expired []string
		for _, sig := range active {
			if sig.EffectiveConfidence(now, s.ratePerDay) < s.floor {
				expired = append(expired, sig.ID)
			}
		}
		if len(expired) == 0 {
			continue
		}

		if err := s.ledger.MarkInactive(ctx, expired); err != nil {
			return stats, err
		}
		stats.Deactivated += len(expired)

		if err := s.fuser.RecomputeEntity(ctx, entityID); err != nil {
			return stats, err
		}

		if s.logger != nil {
			s.logger.Debugw("decayed signals below floor",
				"entity_id", entityID, "count", len(expired))
		}
	}

	stats.Duration = time.Since(stats.StartedAt)
	if s.logger != nil && stats.Deactivated > 0 {
		s.logger.Infow("decay sweep complete",
			"entities", stats.EntitiesVisited,
			"deactivated", stats.Deactivated,
			"duration", stats.Duration)
	}
	return stats, nil
}
