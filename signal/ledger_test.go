package signal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/entity"
	"github.com/meridianhq/meridian/errors"
	meridiantest "github.com/meridianhq/meridian/internal/testing"
)

func newLedgerWithEntity(t *testing.T, entityID string) *Ledger {
	t.Helper()
	db := meridiantest.CreateTestDB(t)
	entities := entity.NewStore(db, nil)
	require.NoError(t, entities.Create(context.Background(), &entity.Entity{
		ID:   entityID,
		Type: entity.TypeAccount,
		Name: "Test Account",
	}))
	return NewLedger(db, nil)
}

func TestAppendAssignsIDAndSequence(t *testing.T) {
	ledger := newLedgerWithEntity(t, "acct_1")
	ctx := context.Background()

	sig, err := ledger.Append(ctx, EmitRequest{
		EntityID:   "acct_1",
		ClaimType:  "champion_departure",
		Confidence: 0.9,
		Source:     SourceMeeting,
		Payload:    "Dana mentioned she is interviewing elsewhere",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sig.ID)
	assert.True(t, sig.Active)
	assert.Greater(t, sig.Seq, int64(0))

	got, err := ledger.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, sig.ID, got.ID)
	assert.Equal(t, 0.9, got.Confidence)
	assert.Equal(t, SourceMeeting, got.Source)
}

func TestAppendRejectsInvalidConfidence(t *testing.T) {
	ledger := newLedgerWithEntity(t, "acct_1")
	ctx := context.Background()

	for _, confidence := range []float64{-0.1, 1.1, 2.0} {
		_, err := ledger.Append(ctx, EmitRequest{
			EntityID:   "acct_1",
			ClaimType:  "budget_freeze",
			Confidence: confidence,
			Source:     SourceEmail,
		})
		assert.True(t, errors.IsInvalidConfidence(err), "confidence %v should be rejected", confidence)
	}
}

func TestAppendRejectsUnknownEntity(t *testing.T) {
	ledger := newLedgerWithEntity(t, "acct_1")

	_, err := ledger.Append(context.Background(), EmitRequest{
		EntityID:   "acct_missing",
		ClaimType:  "budget_freeze",
		Confidence: 0.5,
		Source:     SourceEmail,
	})
	assert.True(t, errors.IsUnknownEntity(err))
}

func TestAppendRejectsUnknownSource(t *testing.T) {
	ledger := newLedgerWithEntity(t, "acct_1")

	_, err := ledger.Append(context.Background(), EmitRequest{
		EntityID:   "acct_1",
		ClaimType:  "budget_freeze",
		Confidence: 0.5,
		Source:     Source("carrier_pigeon"),
	})
	require.Error(t, err)
}

func TestListInsertionOrderWithCursor(t *testing.T) {
	ledger := newLedgerWithEntity(t, "acct_1")
	ctx := context.Background()

	var emitted []string
	for i := 0; i < 5; i++ {
		sig, err := ledger.Append(ctx, EmitRequest{
			EntityID:   "acct_1",
			ClaimType:  "budget_freeze",
			Confidence: 0.3,
			Source:     SourceEmail,
		})
		require.NoError(t, err)
		emitted = append(emitted, sig.ID)
	}

	// First page
	page1, cursor, err := ledger.List(ctx, "acct_1", ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotEmpty(t, cursor)
	assert.Equal(t, emitted[0], page1[0].ID)
	assert.Equal(t, emitted[1], page1[1].ID)

	// Restarted from the cursor
	page2, cursor, err := ledger.List(ctx, "acct_1", ListOptions{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, emitted[2], page2[0].ID)
	assert.Equal(t, emitted[3], page2[1].ID)

	// Final page drains the ledger
	page3, cursor, err := ledger.List(ctx, "acct_1", ListOptions{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, emitted[4], page3[0].ID)
	assert.Empty(t, cursor)
}

func TestListClaimTypeFilter(t *testing.T) {
	ledger := newLedgerWithEntity(t, "acct_1")
	ctx := context.Background()

	for _, claim := range []string{"budget_freeze", "champion_departure", "budget_freeze"} {
		_, err := ledger.Append(ctx, EmitRequest{
			EntityID:   "acct_1",
			ClaimType:  claim,
			Confidence: 0.4,
			Source:     SourceEmail,
		})
		require.NoError(t, err)
	}

	got, _, err := ledger.List(ctx, "acct_1", ListOptions{ClaimType: "budget_freeze"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	for _, sig := range got {
		assert.Equal(t, "budget_freeze", sig.ClaimType)
	}
}

func TestMarkInactiveExcludesFromActiveQueries(t *testing.T) {
	ledger := newLedgerWithEntity(t, "acct_1")
	ctx := context.Background()

	sig, err := ledger.Append(ctx, EmitRequest{
		EntityID:   "acct_1",
		ClaimType:  "budget_freeze",
		Confidence: 0.4,
		Source:     SourceEmail,
	})
	require.NoError(t, err)

	require.NoError(t, ledger.MarkInactive(ctx, []string{sig.ID}))

	active, err := ledger.ActiveByClaim(ctx, "acct_1", "budget_freeze")
	require.NoError(t, err)
	assert.Empty(t, active)

	// The row itself survives for audit
	got, err := ledger.Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestEffectiveConfidenceDecay(t *testing.T) {
	sig := &Signal{
		Confidence: 0.8,
		CreatedAt:  time.Now().UTC().Add(-48 * time.Hour),
	}

	// Two days at 0.9/day: 0.8 * 0.81 = 0.648
	got := sig.EffectiveConfidence(time.Now().UTC(), 0.9)
	assert.InDelta(t, 0.648, got, 0.01)

	// Zero age means no decay
	fresh := &Signal{Confidence: 0.8, CreatedAt: time.Now().UTC()}
	assert.InDelta(t, 0.8, fresh.EffectiveConfidence(time.Now().UTC(), 0.9), 1e-9)
}

func TestCalloutsOrderAndLimit(t *testing.T) {
	ledger := newLedgerWithEntity(t, "acct_1")
	ctx := context.Background()

	weak, err := ledger.Append(ctx, EmitRequest{
		EntityID: "acct_1", ClaimType: "renewal_risk", Confidence: 0.3,
		Source: SourceEmail, Payload: "tone shift in last thread",
	})
	require.NoError(t, err)
	strong, err := ledger.Append(ctx, EmitRequest{
		EntityID: "acct_1", ClaimType: "champion_departure", Confidence: 0.9,
		Source: SourceMeeting, Payload: "Dana announced her notice period",
	})
	require.NoError(t, err)

	callouts, err := ledger.Callouts(ctx, "acct_1", 10, 0.95)
	require.NoError(t, err)
	require.Len(t, callouts, 2)
	assert.Equal(t, strong.ID, callouts[0].SignalID)
	assert.Equal(t, weak.ID, callouts[1].SignalID)
	assert.Contains(t, callouts[0].Summary, "champion departure")

	limited, err := ledger.Callouts(ctx, "acct_1", 1, 0.95)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, strong.ID, limited[0].SignalID)
}
