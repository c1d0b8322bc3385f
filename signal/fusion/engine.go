package fusion

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhq/meridian/errors"
	"github.com/meridianhq/meridian/signal"
)

// Engine recomputes fused confidences from the ledger. It reads only
// active signals, applies read-time decay, and overwrites the stored
// result for the pair. Results below minRelevance are removed rather than
// stored, so the fusion table only carries claims worth surfacing.
type Engine struct {
	ledger  *signal.Ledger
	results *ResultStore
	logger  *zap.SugaredLogger

	mu              sync.RWMutex
	weights         Weights
	decayRatePerDay float64
	minRelevance    float64
}

func NewEngine(ledger *signal.Ledger, results *ResultStore, weights Weights, decayRatePerDay, minRelevance float64, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		ledger:          ledger,
		results:         results,
		logger:          logger,
		weights:         weights,
		decayRatePerDay: decayRatePerDay,
		minRelevance:    minRelevance,
	}
}

// SetWeights swaps the weight tables. Called by the rules file watcher;
// recomputes already in flight finish with the old weights.
func (e *Engine) SetWeights(w Weights) {
	e.mu.Lock()
	e.weights = w
	e.mu.Unlock()
}

func (e *Engine) snapshot() (Weights, float64, float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.weights, e.decayRatePerDay, e.minRelevance
}

// DecayRate returns the per-day decay rate the engine fuses with.
func (e *Engine) DecayRate() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.decayRatePerDay
}

// Recompute fuses the active signals for (entity, claim) and persists the
// result. It returns the combined confidence. When no active signals
// remain, or the combined value falls below the relevance floor, the
// stored result is deleted and 0 is returned.
func (e *Engine) Recompute(ctx context.Context, entityID, claimType string) (float64, error) {
	weights, decayRate, minRelevance := e.snapshot()

	signals, err := e.ledger.ActiveByClaim(ctx, entityID, claimType)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to load active signals for %s/%s", entityID, claimType)
	}

	if len(signals) == 0 {
		if err := e.results.Delete(ctx, entityID, claimType); err != nil {
			return 0, err
		}
		return 0, nil
	}

	now := time.Now().UTC()
	combined := Combine(signals, weights, now, decayRate)

	if combined < minRelevance {
		if err := e.results.Delete(ctx, entityID, claimType); err != nil {
			return 0, err
		}
		if e.logger != nil {
			e.logger.Debugw("fusion result below relevance floor, dropped",
				"entity_id", entityID, "claim_type", claimType, "combined", combined)
		}
		return 0, nil
	}

	ids := make([]string, 0, len(signals))
	for _, sig := range signals {
		ids = append(ids, sig.ID)
	}

	err = e.results.Upsert(ctx, &Result{
		EntityID:              entityID,
		ClaimType:             claimType,
		Combined:              combined,
		ContributingSignalIDs: ids,
		ComputedAt:            now,
	})
	if err != nil {
		return 0, err
	}

	if e.logger != nil {
		e.logger.Debugw("fused claim",
			"entity_id", entityID, "claim_type", claimType,
			"combined", combined, "count", len(signals))
	}
	return combined, nil
}

// RecomputeEntity re-fuses every claim type with active signals on the
// entity. Used after a decay sweep deactivates signals.
func (e *Engine) RecomputeEntity(ctx context.Context, entityID string) error {
	claims, err := e.ledger.ClaimsForEntity(ctx, entityID)
	if err != nil {
		return err
	}

	// Claims whose last active signal was just deactivated no longer show
	// up above; clear their stale stored results too.
	stored, err := e.results.ListForEntity(ctx, entityID)
	if err != nil {
		return err
	}
	live := make(map[string]bool, len(claims))
	for _, c := range claims {
		live[c] = true
	}
	for _, r := range stored {
		if !live[r.ClaimType] {
			if err := e.results.Delete(ctx, entityID, r.ClaimType); err != nil {
				return err
			}
		}
	}

	for _, claim := range claims {
		if _, err := e.Recompute(ctx, entityID, claim); err != nil {
			return err
		}
	}
	return nil
}

// Rebuild drops every stored result and replays the ledger. The signals
// table is the only source of truth; this recovers from a corrupted or
// lost fusion_results table.
func (e *Engine) Rebuild(ctx context.Context) error {
	entities, err := e.ledger.ActiveEntities(ctx)
	if err != nil {
		return err
	}
	for _, entityID := range entities {
		if err := e.results.DeleteForEntity(ctx, entityID); err != nil {
			return err
		}
		if err := e.RecomputeEntity(ctx, entityID); err != nil {
			return err
		}
	}
	if e.logger != nil {
		e.logger.Infow("rebuilt fusion results from ledger", "entities", len(entities))
	}
	return nil
}
