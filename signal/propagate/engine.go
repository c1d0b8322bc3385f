package propagate

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/meridianhq/meridian/errors"
	"github.com/meridianhq/meridian/signal"
)

// Below this confidence a derived signal is not worth recording and the
// branch stops walking.
const minDerivedConfidence = 0.01

// EntityResolver walks the hierarchy. Parent returns "" at a root.
type EntityResolver interface {
	Parent(ctx context.Context, id string) (string, error)
	Children(ctx context.Context, id string) ([]string, error)
}

// Appender records derived signals in the ledger.
type Appender interface {
	Append(ctx context.Context, req signal.EmitRequest) (*signal.Signal, error)
}

// Recomputer re-fuses a claim after a derived signal lands on it.
type Recomputer interface {
	Recompute(ctx context.Context, entityID, claimType string) (float64, error)
}

// Result summarizes one cascade.
type Result struct {
	Derived        int // derived signals appended
	CyclesDetected int // branches aborted on a hierarchy cycle
	Skipped        int // targets skipped because the entity no longer exists
}

// Engine performs one cascade per fused claim: upward through the parent
// chain with per-hop decay, and downward to children when the confidence
// clears the gate. Each cascade carries its own visited set, so two
// signals arriving in the same batch each propagate in full, but no
// single cascade touches an entity twice.
type Engine struct {
	entities EntityResolver
	ledger   Appender
	fuser    Recomputer
	logger   *zap.SugaredLogger

	mu    sync.RWMutex
	rules *RuleSet
}

func NewEngine(entities EntityResolver, ledger Appender, fuser Recomputer, rules *RuleSet, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		entities: entities,
		ledger:   ledger,
		fuser:    fuser,
		logger:   logger,
		rules:    rules,
	}
}

// SetRules swaps the rule set. Called by the rules file watcher.
func (e *Engine) SetRules(rules *RuleSet) {
	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()
}

func (e *Engine) currentRules() *RuleSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules
}

// Cascade propagates a freshly fused confidence from origin through the
// hierarchy. originSignalID is the signal whose arrival triggered the
// recompute; every derived signal references it for provenance.
func (e *Engine) Cascade(ctx context.Context, origin, claimType string, combined float64, originSignalID string) (*Result, error) {
	up, down := e.currentRules().ForClaim(claimType)
	res := &Result{}

	visited := map[string]bool{origin: true}

	if err := e.cascadeUp(ctx, origin, claimType, combined, originSignalID, up, visited, res); err != nil {
		return res, err
	}
	if combined >= down.Threshold {
		if err := e.cascadeDown(ctx, origin, claimType, combined, originSignalID, down, 1, visited, res); err != nil {
			return res, err
		}
	}

	if e.logger != nil && res.Derived > 0 {
		e.logger.Debugw("cascade complete",
			"entity_id", origin, "claim_type", claimType,
			"derived", res.Derived, "cycles", res.CyclesDetected)
	}
	return res, nil
}

// cascadeUp walks the parent chain. Confidence decays per hop; the walk
// stops at a root, at max depth, when the confidence becomes negligible,
// or when the chain loops back on itself.
func (e *Engine) cascadeUp(ctx context.Context, origin, claimType string, combined float64, originSignalID string, rule Rule, visited map[string]bool, res *Result) error {
	current := origin
	confidence := combined * rule.DecayFactor

	for depth := 1; rule.MaxDepth == 0 || depth <= rule.MaxDepth; depth++ {
		if confidence < minDerivedConfidence {
			return nil
		}

		parent, err := e.entities.Parent(ctx, current)
		if err != nil {
			if errors.IsUnknownEntity(err) {
				res.Skipped++
				return nil
			}
			return err
		}
		if parent == "" {
			return nil
		}
		if visited[parent] {
			res.CyclesDetected++
			if e.logger != nil {
				e.logger.Warnw("cycle in parent chain, aborting upward cascade",
					"entity_id", parent, "claim_type", claimType, "error", errors.ErrCycleDetected)
			}
			return nil
		}
		visited[parent] = true

		if err := e.derive(ctx, parent, claimType, confidence, originSignalID, res); err != nil {
			return err
		}

		current = parent
		confidence *= rule.DecayFactor
	}
	return nil
}

// cascadeDown fans out to children breadth-first, decaying per level.
// A cycle aborts only the branch that looped; siblings keep going.
func (e *Engine) cascadeDown(ctx context.Context, from, claimType string, combined float64, originSignalID string, rule Rule, depth int, visited map[string]bool, res *Result) error {
	if rule.MaxDepth != 0 && depth > rule.MaxDepth {
		return nil
	}
	confidence := combined * rule.DecayFactor
	if confidence < minDerivedConfidence {
		return nil
	}

	children, err := e.entities.Children(ctx, from)
	if err != nil {
		if errors.IsUnknownEntity(err) {
			res.Skipped++
			return nil
		}
		return err
	}

	for _, child := range children {
		if visited[child] {
			res.CyclesDetected++
			if e.logger != nil {
				e.logger.Warnw("cycle among children, aborting branch",
					"entity_id", child, "claim_type", claimType, "error", errors.ErrCycleDetected)
			}
			continue
		}
		visited[child] = true

		if err := e.derive(ctx, child, claimType, confidence, originSignalID, res); err != nil {
			return err
		}
		if err := e.cascadeDown(ctx, child, claimType, confidence, originSignalID, rule, depth+1, visited, res); err != nil {
			return err
		}
	}
	return nil
}

// derive appends one derived signal and re-fuses its claim inline.
// Cascades do not enqueue further recompute jobs; the visited set already
// bounds how far one piece of evidence travels.
func (e *Engine) derive(ctx context.Context, entityID, claimType string, confidence float64, originSignalID string, res *Result) error {
	_, err := e.ledger.Append(ctx, signal.EmitRequest{
		EntityID:       entityID,
		ClaimType:      claimType,
		Confidence:     confidence,
		Source:         signal.SourceDerived,
		OriginSignalID: originSignalID,
	})
	if err != nil {
		// The target was deleted between hierarchy walk and append.
		if errors.IsUnknownEntity(err) {
			res.Skipped++
			return nil
		}
		return err
	}

	if _, err := e.fuser.Recompute(ctx, entityID, claimType); err != nil {
		return err
	}
	res.Derived++
	return nil
}
