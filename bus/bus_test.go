package bus

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/config"
	"github.com/meridianhq/meridian/entity"
	"github.com/meridianhq/meridian/errors"
	meridiantest "github.com/meridianhq/meridian/internal/testing"
	"github.com/meridianhq/meridian/signal"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Bus.PollIntervalSeconds = 1
	return cfg
}

func newTestBus(t *testing.T) (*Bus, *sql.DB) {
	t.Helper()
	db := meridiantest.CreateTestDB(t)
	b := New(context.Background(), db, testConfig(), config.DefaultRules(), nil, nil)

	ctx := context.Background()
	require.NoError(t, b.Entities().Create(ctx, &entity.Entity{ID: "acct_1", Type: entity.TypeAccount, Name: "Acme"}))
	require.NoError(t, b.Entities().Create(ctx, &entity.Entity{ID: "proj_1", Type: entity.TypeProject, Name: "Rollout", ParentID: "acct_1"}))
	return b, db
}

func TestEmitAppendsAndEnqueuesAtomically(t *testing.T) {
	b, db := newTestBus(t)
	ctx := context.Background()

	sig, err := b.Emit(ctx, signal.EmitRequest{
		EntityID:   "proj_1",
		ClaimType:  "slipping_deadline",
		Confidence: 0.7,
		Source:     signal.SourceMeeting,
	})
	require.NoError(t, err)

	// The ack means both rows are durable
	var signalCount, jobCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM signals WHERE id = ?`, sig.ID).Scan(&signalCount))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM recompute_jobs WHERE origin_signal_id = ?`, sig.ID).Scan(&jobCount))
	assert.Equal(t, 1, signalCount)
	assert.Equal(t, 1, jobCount)

	// Fusion has not run yet: the ack only covers the append
	_, err = b.GetFusionResult(ctx, "proj_1", "slipping_deadline")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestEmitInvalidRequestLeavesNoJob(t *testing.T) {
	b, db := newTestBus(t)

	_, err := b.Emit(context.Background(), signal.EmitRequest{
		EntityID:   "proj_1",
		ClaimType:  "slipping_deadline",
		Confidence: 1.5,
		Source:     signal.SourceMeeting,
	})
	require.Error(t, err)

	var jobCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM recompute_jobs`).Scan(&jobCount))
	assert.Zero(t, jobCount)
}

func TestDrainFusesAndCascades(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, signal.EmitRequest{
		EntityID:   "proj_1",
		ClaimType:  "slipping_deadline",
		Confidence: 0.9,
		Source:     signal.SourceMeeting,
	})
	require.NoError(t, err)
	require.NoError(t, b.Drain(ctx))

	proj, err := b.GetFusionResult(ctx, "proj_1", "slipping_deadline")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, proj.Combined, 1e-9)

	// Cascaded one level up at the 0.6 factor
	acct, err := b.GetFusionResult(ctx, "acct_1", "slipping_deadline")
	require.NoError(t, err)
	assert.InDelta(t, 0.54, acct.Combined, 1e-9)
}

func TestRecordFeedbackFullRetractionZeroesClaim(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	sig, err := b.Emit(ctx, signal.EmitRequest{
		EntityID:   "acct_1",
		ClaimType:  "budget_freeze",
		Confidence: 0.6,
		Source:     signal.SourceEmail,
	})
	require.NoError(t, err)
	require.NoError(t, b.Drain(ctx))

	combined, err := b.GetFusionResult(ctx, "acct_1", "budget_freeze")
	require.NoError(t, err)
	assert.Greater(t, combined.Combined, 0.0)

	// Full-strength feedback against the sole contributor
	retr, err := b.RecordFeedback(ctx, sig.ID, 1.0)
	require.NoError(t, err)
	assert.True(t, retr.Retraction)
	assert.Equal(t, sig.ID, retr.OriginSignalID)
	require.NoError(t, b.Drain(ctx))

	_, err = b.GetFusionResult(ctx, "acct_1", "budget_freeze")
	assert.True(t, errors.IsNotFoundError(err))

	// The original row is untouched; history is append-only
	original, err := b.Ledger().Get(ctx, sig.ID)
	require.NoError(t, err)
	assert.True(t, original.Active)
	assert.InDelta(t, 0.6, original.Confidence, 1e-9)
}

func TestRecordFeedbackRejectsRetractingARetraction(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	sig, err := b.Emit(ctx, signal.EmitRequest{
		EntityID:   "acct_1",
		ClaimType:  "budget_freeze",
		Confidence: 0.6,
		Source:     signal.SourceEmail,
	})
	require.NoError(t, err)

	retr, err := b.RecordFeedback(ctx, sig.ID, 0.5)
	require.NoError(t, err)

	_, err = b.RecordFeedback(ctx, retr.ID, 1.0)
	require.Error(t, err)
}

func TestWorkerPoolProcessesEmits(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	pool := NewWorkerPool(ctx, b.jobs, b, WorkerPoolConfig{
		Workers:      2,
		PollInterval: 10 * time.Millisecond,
		StopTimeout:  5 * time.Second,
	}, nil)

	_, err := b.Emit(ctx, signal.EmitRequest{
		EntityID:   "acct_1",
		ClaimType:  "renewal_risk",
		Confidence: 0.8,
		Source:     signal.SourceMeeting,
	})
	require.NoError(t, err)

	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		_, err := b.GetFusionResult(ctx, "acct_1", "renewal_risk")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestOrphanedJobsRequeuedOnStart(t *testing.T) {
	b, db := newTestBus(t)
	ctx := context.Background()

	_, err := b.Emit(ctx, signal.EmitRequest{
		EntityID:   "acct_1",
		ClaimType:  "renewal_risk",
		Confidence: 0.8,
		Source:     signal.SourceMeeting,
	})
	require.NoError(t, err)

	// Simulate a crash mid-job: claimed but never completed
	job, err := b.jobs.NextQueued(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, JobStatusRunning, job.Status)

	requeued, err := b.jobs.RequeueRunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)

	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM recompute_jobs WHERE id = ?`, job.ID).Scan(&status))
	assert.Equal(t, string(JobStatusQueued), status)

	// A drain after "restart" finishes the recovered work
	require.NoError(t, b.Drain(ctx))
	_, err = b.GetFusionResult(ctx, "acct_1", "renewal_risk")
	require.NoError(t, err)
}

func TestJobFailRetriesThenFailsTerminally(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	job := NewRecomputeJob("acct_1", "renewal_risk", "sig_x")
	tx, err := b.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, b.jobs.CreateIn(ctx, tx, job))
	require.NoError(t, tx.Commit())

	boom := errors.New("recompute exploded")
	for i := 0; i < MaxJobRetries; i++ {
		claimed, err := b.jobs.NextQueued(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		require.NoError(t, b.jobs.Fail(ctx, claimed.ID, boom))

		got, err := b.jobs.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, JobStatusQueued, got.Status)
	}

	// Retry budget exhausted: the next failure is terminal
	claimed, err := b.jobs.NextQueued(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, b.jobs.Fail(ctx, claimed.ID, boom))

	got, err := b.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "recompute exploded")
}

func TestTickerRunsAndStops(t *testing.T) {
	ticks := make(chan struct{}, 16)
	ticker := NewTicker(context.Background(), "test", 10*time.Millisecond, func(context.Context) error {
		select {
		case ticks <- struct{}{}:
		default:
		}
		return nil
	}, nil)

	ticker.Start()
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("ticker never fired")
	}
	ticker.Stop()
}
