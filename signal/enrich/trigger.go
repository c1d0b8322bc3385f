package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meridianhq/meridian/errors"
	"github.com/meridianhq/meridian/signal"
	"github.com/meridianhq/meridian/signal/fusion"
)

// Synthesizer receives an entity worth a deeper look. Implementations
// perform the expensive summarization elsewhere; the trigger only decides
// who and when. Return ErrSynthesisUnavailable to signal a transient
// outage; the cursor stays put and the entity retries next pass.
type Synthesizer interface {
	Synthesize(ctx context.Context, entityID string) error
}

// Trigger evaluates entities against the enrichment heuristics and hands
// qualifying ones to the synthesizer, at most burst-one limited requests
// per interval.
type Trigger struct {
	ledger      *signal.Ledger
	results     *fusion.ResultStore
	cursors     *CursorStore
	synthesizer Synthesizer
	limiter     *rate.Limiter
	logger      *zap.SugaredLogger

	countThreshold      int
	confidenceThreshold float64
}

func NewTrigger(
	ledger *signal.Ledger,
	results *fusion.ResultStore,
	cursors *CursorStore,
	synthesizer Synthesizer,
	countThreshold int,
	confidenceThreshold float64,
	perMinute float64,
	logger *zap.SugaredLogger,
) *Trigger {
	return &Trigger{
		ledger:              ledger,
		results:             results,
		cursors:             cursors,
		synthesizer:         synthesizer,
		limiter:             rate.NewLimiter(rate.Limit(perMinute/60.0), 1),
		logger:              logger,
		countThreshold:      countThreshold,
		confidenceThreshold: confidenceThreshold,
	}
}

// ShouldEnrich reports whether an entity currently qualifies: enough new
// signals since its cursor, or any fused confidence computed since then
// that clears the confidence threshold.
func (t *Trigger) ShouldEnrich(ctx context.Context, entityID string) (bool, error) {
	cursor, err := t.cursors.Get(ctx, entityID)
	if err != nil {
		return false, err
	}

	count, err := t.ledger.ActiveCountSince(ctx, entityID, cursor.LastEnrichedAt)
	if err != nil {
		return false, err
	}
	if count > t.countThreshold {
		return true, nil
	}

	max, err := t.results.MaxSince(ctx, entityID, cursor.LastEnrichedAt)
	if err != nil {
		return false, err
	}
	return max >= t.confidenceThreshold, nil
}

// Enrich hands one entity to the synthesizer and advances its cursor on
// success. The rate limiter blocks until a slot is available or the
// context is canceled.
func (t *Trigger) Enrich(ctx context.Context, entityID string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "enrichment rate limit wait interrupted")
	}

	if err := t.synthesizer.Synthesize(ctx, entityID); err != nil {
		if errors.IsSynthesisUnavailable(err) && t.logger != nil {
			t.logger.Warnw("synthesizer unavailable, keeping cursor for retry",
				"entity_id", entityID)
		}
		return err
	}

	count, err := t.ledger.ActiveCountSince(ctx, entityID, time.Time{})
	if err != nil {
		return err
	}
	if err := t.cursors.Advance(ctx, entityID, time.Now().UTC(), count); err != nil {
		return err
	}

	if t.logger != nil {
		t.logger.Infow("enriched entity", "entity_id", entityID, "count", count)
	}
	return nil
}

// RunOnce scans every entity with active signals and enriches the ones
// that qualify. Transient synthesizer outages stop the pass; everything
// already handed off keeps its advanced cursor.
func (t *Trigger) RunOnce(ctx context.Context) (int, error) {
	entities, err := t.ledger.ActiveEntities(ctx)
	if err != nil {
		return 0, err
	}

	enriched := 0
	for _, entityID := range entities {
		if err := ctx.Err(); err != nil {
			return enriched, err
		}

		ok, err := t.ShouldEnrich(ctx, entityID)
		if err != nil {
			return enriched, err
		}
		if !ok {
			continue
		}

		if err := t.Enrich(ctx, entityID); err != nil {
			if errors.IsSynthesisUnavailable(err) {
				return enriched, err
			}
			return enriched, errors.Wrapf(err, "failed to enrich %s", entityID)
		}
		enriched++
	}
	return enriched, nil
}
