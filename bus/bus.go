package bus

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhq/meridian/config"
	"github.com/meridianhq/meridian/entity"
	"github.com/meridianhq/meridian/errors"
	"github.com/meridianhq/meridian/signal"
	"github.com/meridianhq/meridian/signal/decay"
	"github.com/meridianhq/meridian/signal/enrich"
	"github.com/meridianhq/meridian/signal/fusion"
	"github.com/meridianhq/meridian/signal/propagate"
)

// Bus is the single front door: emits land in the ledger and enqueue a
// recompute in one transaction, workers fuse and cascade afterward, and
// the read surface serves fused state back out.
type Bus struct {
	db         *sql.DB
	entities   *entity.Store
	ledger     *signal.Ledger
	results    *fusion.ResultStore
	fuser      *fusion.Engine
	propagator *propagate.Engine
	sweeper    *decay.Sweeper
	trigger    *enrich.Trigger
	jobs       *JobStore
	locks      *entityLocks
	pool       *WorkerPool
	logger     *zap.SugaredLogger
}

// unavailableSynthesizer stands in when no synthesizer is wired; the
// trigger's retry semantics then leave every cursor untouched.
type unavailableSynthesizer struct{}

func (unavailableSynthesizer) Synthesize(context.Context, string) error {
	return errors.ErrSynthesisUnavailable
}

// New wires the bus from configuration. synthesizer may be nil; enrichment
// then reports candidates but every handoff fails as unavailable.
func New(ctx context.Context, db *sql.DB, cfg *config.Config, rules *config.RulesFile, synthesizer enrich.Synthesizer, logger *zap.SugaredLogger) *Bus {
	entities := entity.NewStore(db, logger)
	ledger := signal.NewLedger(db, logger)
	results := fusion.NewResultStore(db, logger)

	fuser := fusion.NewEngine(ledger, results,
		fusion.WeightsFromConfig(rules),
		cfg.Decay.RatePerDay, cfg.Fusion.MinRelevance, logger)

	b := &Bus{
		db:       db,
		entities: entities,
		ledger:   ledger,
		results:  results,
		fuser:    fuser,
		jobs:     NewJobStore(db),
		locks:    newEntityLocks(),
		logger:   logger,
	}

	// Cascade targets recompute under the same per-entity locks as jobs.
	b.propagator = propagate.NewEngine(entities, ledger, lockedRecomputer{b}, propagate.RulesFromConfig(rules), logger)
	b.sweeper = decay.NewSweeper(ledger, fuser, cfg.Decay.RatePerDay, cfg.Decay.Floor, logger)

	if synthesizer == nil {
		synthesizer = unavailableSynthesizer{}
	}
	b.trigger = enrich.NewTrigger(ledger, results, enrich.NewCursorStore(db), synthesizer,
		cfg.Enrich.SignalCountThreshold, cfg.Enrich.ConfidenceThreshold,
		cfg.Enrich.SynthesisPerMinute, logger)

	b.pool = NewWorkerPool(ctx, b.jobs, b, WorkerPoolConfig{
		Workers:      cfg.Bus.Workers,
		PollInterval: time.Duration(cfg.Bus.PollIntervalSeconds) * time.Second,
		StopTimeout:  time.Duration(cfg.Bus.StopTimeoutSeconds) * time.Second,
	}, logger)

	return b
}

// Entities exposes the entity store for CLI glue.
func (b *Bus) Entities() *entity.Store { return b.entities }

// Ledger exposes the signal ledger for CLI glue.
func (b *Bus) Ledger() *signal.Ledger { return b.ledger }

// Pool exposes the worker pool for lifecycle control.
func (b *Bus) Pool() *WorkerPool { return b.pool }

// Sweeper exposes the decay sweeper for the daemon ticker.
func (b *Bus) Sweeper() *decay.Sweeper { return b.sweeper }

// Enrichment exposes the enrichment trigger for the daemon ticker.
func (b *Bus) Enrichment() *enrich.Trigger { return b.trigger }

// Emit durably appends a signal and enqueues its recompute in one
// transaction. A successful return means the evidence cannot be lost;
// fusion and propagation follow on the worker pool.
func (b *Bus) Emit(ctx context.Context, req signal.EmitRequest) (*signal.Signal, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin emit transaction")
	}
	defer tx.Rollback()

	sig, err := b.ledger.AppendIn(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	job := NewRecomputeJob(sig.EntityID, sig.ClaimType, sig.ID)
	if err := b.jobs.CreateIn(ctx, tx, job); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit emit")
	}

	if b.logger != nil {
		b.logger.Infow("emit",
			"signal_id", sig.ID, "entity_id", sig.EntityID,
			"claim_type", sig.ClaimType, "confidence", sig.Confidence,
			"job_id", job.ID)
	}
	return sig, nil
}

// RecordFeedback appends a manual retraction against an earlier signal.
// strength scales the discount: 1.0 fully retracts the claim's evidence,
// 0.5 halves it. The original row is never touched.
func (b *Bus) RecordFeedback(ctx context.Context, signalID string, strength float64) (*signal.Signal, error) {
	original, err := b.ledger.Get(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if original.Retraction {
		return nil, errors.NewInvalidRequestError("cannot retract a retraction")
	}

	return b.Emit(ctx, signal.EmitRequest{
		EntityID:       original.EntityID,
		ClaimType:      original.ClaimType,
		Confidence:     strength,
		Source:         signal.SourceManual,
		Retraction:     true,
		OriginSignalID: signalID,
	})
}

// Process runs one recompute job: fuse the pair under the entity's lock,
// then cascade the fresh confidence through the hierarchy.
func (b *Bus) Process(ctx context.Context, job *RecomputeJob) error {
	combined, err := b.recomputeLocked(ctx, job.EntityID, job.ClaimType)
	if err != nil {
		return err
	}

	if combined <= 0 {
		return nil
	}

	_, err = b.propagator.Cascade(ctx, job.EntityID, job.ClaimType, combined, job.OriginSignalID)
	return err
}

// recomputeLocked serializes fusion per entity. The lock covers only the
// single-entity recompute; cascades lock each target separately.
func (b *Bus) recomputeLocked(ctx context.Context, entityID, claimType string) (float64, error) {
	l := b.locks.forEntity(entityID)
	l.Lock()
	defer l.Unlock()
	return b.fuser.Recompute(ctx, entityID, claimType)
}

// lockedRecomputer adapts the bus's lock discipline to the propagation
// engine's Recomputer interface.
type lockedRecomputer struct {
	bus *Bus
}

func (r lockedRecomputer) Recompute(ctx context.Context, entityID, claimType string) (float64, error) {
	return r.bus.recomputeLocked(ctx, entityID, claimType)
}

// Drain synchronously processes queued jobs until the queue is empty.
// Used by tests and by `emit --wait`; the daemon path uses the pool.
func (b *Bus) Drain(ctx context.Context) error {
	for {
		job, err := b.jobs.NextQueued(ctx)
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}
		if err := b.Process(ctx, job); err != nil {
			if failErr := b.jobs.Fail(ctx, job.ID, err); failErr != nil {
				return failErr
			}
			continue
		}
		if err := b.jobs.Complete(ctx, job.ID); err != nil {
			return err
		}
	}
}

// ReloadRules swaps fusion weights and propagation rules. Wired to the
// rules file watcher.
func (b *Bus) ReloadRules(rules *config.RulesFile) {
	b.fuser.SetWeights(fusion.WeightsFromConfig(rules))
	b.propagator.SetRules(propagate.RulesFromConfig(rules))
	if b.logger != nil {
		b.logger.Infow("rules reloaded")
	}
}

// GetForEntity pages through an entity's ledger in insertion order.
func (b *Bus) GetForEntity(ctx context.Context, entityID string, opts signal.ListOptions) ([]*signal.Signal, string, error) {
	return b.ledger.List(ctx, entityID, opts)
}

// GetFusion returns every fused claim for an entity, strongest first.
func (b *Bus) GetFusion(ctx context.Context, entityID string) ([]*fusion.Result, error) {
	return b.results.ListForEntity(ctx, entityID)
}

// GetFusionResult returns the fused confidence for one claim.
func (b *Bus) GetFusionResult(ctx context.Context, entityID, claimType string) (*fusion.Result, error) {
	return b.results.Get(ctx, entityID, claimType)
}

// GetCallouts returns the entity's strongest current evidence.
func (b *Bus) GetCallouts(ctx context.Context, entityID string, limit int) ([]signal.Callout, error) {
	return b.ledger.Callouts(ctx, entityID, limit, b.fuser.DecayRate())
}

// ShouldEnrich reports whether the entity currently qualifies for an
// enrichment pass.
func (b *Bus) ShouldEnrich(ctx context.Context, entityID string) (bool, error) {
	return b.trigger.ShouldEnrich(ctx, entityID)
}
