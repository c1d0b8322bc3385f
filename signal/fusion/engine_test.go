package fusion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/config"
	"github.com/meridianhq/meridian/entity"
	"github.com/meridianhq/meridian/errors"
	meridiantest "github.com/meridianhq/meridian/internal/testing"
	"github.com/meridianhq/meridian/signal"
)

func newTestEngine(t *testing.T) (*Engine, *signal.Ledger, *ResultStore) {
	t.Helper()
	db := meridiantest.CreateTestDB(t)

	entities := entity.NewStore(db, nil)
	require.NoError(t, entities.Create(context.Background(), &entity.Entity{
		ID:   "acct_1",
		Type: entity.TypeAccount,
		Name: "Acme",
	}))

	ledger := signal.NewLedger(db, nil)
	results := NewResultStore(db, nil)
	weights := WeightsFromConfig(config.DefaultRules())
	engine := NewEngine(ledger, results, weights, 1.0, 0.05, nil)
	return engine, ledger, results
}

func emit(t *testing.T, ledger *signal.Ledger, claim string, confidence float64, source signal.Source) *signal.Signal {
	t.Helper()
	sig, err := ledger.Append(context.Background(), signal.EmitRequest{
		EntityID:   "acct_1",
		ClaimType:  claim,
		Confidence: confidence,
		Source:     source,
	})
	require.NoError(t, err)
	return sig
}

func TestRecomputePersistsResult(t *testing.T) {
	engine, ledger, results := newTestEngine(t)
	ctx := context.Background()

	a := emit(t, ledger, "renewal_risk", 0.9, signal.SourceMeeting)
	b := emit(t, ledger, "renewal_risk", 0.5, signal.SourceManual)

	combined, err := engine.Recompute(ctx, "acct_1", "renewal_risk")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, combined, 1e-9)

	stored, err := results.Get(ctx, "acct_1", "renewal_risk")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, stored.Combined, 1e-9)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, stored.ContributingSignalIDs)
}

func TestRecomputeOverwritesOnNewEvidence(t *testing.T) {
	engine, ledger, results := newTestEngine(t)
	ctx := context.Background()

	emit(t, ledger, "renewal_risk", 0.5, signal.SourceManual)
	_, err := engine.Recompute(ctx, "acct_1", "renewal_risk")
	require.NoError(t, err)

	emit(t, ledger, "renewal_risk", 0.9, signal.SourceMeeting)
	combined, err := engine.Recompute(ctx, "acct_1", "renewal_risk")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, combined, 1e-9)

	stored, err := results.Get(ctx, "acct_1", "renewal_risk")
	require.NoError(t, err)
	assert.Len(t, stored.ContributingSignalIDs, 2)
}

func TestRecomputeFullRetractionClearsResult(t *testing.T) {
	engine, ledger, results := newTestEngine(t)
	ctx := context.Background()

	orig := emit(t, ledger, "renewal_risk", 0.9, signal.SourceMeeting)
	_, err := engine.Recompute(ctx, "acct_1", "renewal_risk")
	require.NoError(t, err)

	_, err = ledger.Append(ctx, signal.EmitRequest{
		EntityID:       "acct_1",
		ClaimType:      "renewal_risk",
		Confidence:     1.0,
		Source:         signal.SourceManual,
		Retraction:     true,
		OriginSignalID: orig.ID,
	})
	require.NoError(t, err)

	combined, err := engine.Recompute(ctx, "acct_1", "renewal_risk")
	require.NoError(t, err)
	assert.Zero(t, combined)

	// Below the relevance floor the stored row is removed, not zeroed
	_, err = results.Get(ctx, "acct_1", "renewal_risk")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestRecomputeNoActiveSignalsDeletesResult(t *testing.T) {
	engine, ledger, results := newTestEngine(t)
	ctx := context.Background()

	sig := emit(t, ledger, "renewal_risk", 0.9, signal.SourceMeeting)
	_, err := engine.Recompute(ctx, "acct_1", "renewal_risk")
	require.NoError(t, err)

	require.NoError(t, ledger.MarkInactive(ctx, []string{sig.ID}))

	combined, err := engine.Recompute(ctx, "acct_1", "renewal_risk")
	require.NoError(t, err)
	assert.Zero(t, combined)

	_, err = results.Get(ctx, "acct_1", "renewal_risk")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestRebuildReplaysLedger(t *testing.T) {
	engine, ledger, results := newTestEngine(t)
	ctx := context.Background()

	emit(t, ledger, "renewal_risk", 0.9, signal.SourceMeeting)
	emit(t, ledger, "budget_freeze", 0.6, signal.SourceManual)

	// Simulate a lost derived table by never recomputing, then rebuilding
	require.NoError(t, engine.Rebuild(ctx))

	risk, err := results.Get(ctx, "acct_1", "renewal_risk")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, risk.Combined, 1e-9)

	freeze, err := results.Get(ctx, "acct_1", "budget_freeze")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, freeze.Combined, 1e-9)
}

func TestSetWeightsTakesEffect(t *testing.T) {
	engine, ledger, _ := newTestEngine(t)
	ctx := context.Background()

	emit(t, ledger, "renewal_risk", 0.8, signal.SourceMeeting)

	combined, err := engine.Recompute(ctx, "acct_1", "renewal_risk")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, combined, 1e-9)

	w := noWeights()
	w.Sources[string(signal.SourceMeeting)] = 0.5
	engine.SetWeights(w)

	combined, err = engine.Recompute(ctx, "acct_1", "renewal_risk")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, combined, 1e-9)
}
