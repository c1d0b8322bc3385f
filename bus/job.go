// Package bus ties the ledger, fusion, propagation, decay and enrichment
// together behind one front door. Emit acknowledges as soon as the signal
// and its recompute job are durably written in one transaction; fusion and
// the cascade happen afterward on the worker pool.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus tracks a recompute job through the queue.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// MaxJobRetries is how many times a failed recompute is re-queued before
// it is marked failed for good.
const MaxJobRetries = 2

// RecomputeJob asks the worker pool to re-fuse one (entity, claim) pair
// and cascade the result. Jobs survive restarts: anything still marked
// running at startup was orphaned by a crash and is re-queued.
type RecomputeJob struct {
	ID             string    `json:"id"`
	EntityID       string    `json:"entity_id"`
	ClaimType      string    `json:"claim_type"`
	OriginSignalID string    `json:"origin_signal_id"`
	Status         JobStatus `json:"status"`
	Error          string    `json:"error,omitempty"`
	RetryCount     int       `json:"retry_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewRecomputeJob builds a queued job for one emitted signal.
func NewRecomputeJob(entityID, claimType, originSignalID string) *RecomputeJob {
	now := time.Now().UTC()
	return &RecomputeJob{
		ID:             "rj_" + uuid.NewString(),
		EntityID:       entityID,
		ClaimType:      claimType,
		OriginSignalID: originSignalID,
		Status:         JobStatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
