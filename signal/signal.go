// Package signal implements the Signal Bus ledger: an append-only record of
// confidence-weighted evidence events about entities. Signals are never
// mutated or deleted; corrections are new events, and the decay pass may
// retire a signal from fusion by clearing its active flag while the row
// stays for audit.
package signal

import (
	"math"
	"time"

	"github.com/meridianhq/meridian/errors"
)

// Source identifies where a signal came from
type Source string

const (
	SourceMeeting Source = "meeting"
	SourceEmail   Source = "email"
	SourceManual  Source = "manual"
	SourceDerived Source = "derived"
)

// IsValidSource returns true if the string names a known signal source
func IsValidSource(s string) bool {
	switch Source(s) {
	case SourceMeeting, SourceEmail, SourceManual, SourceDerived:
		return true
	default:
		return false
	}
}

// Signal is an immutable evidence event in the ledger
type Signal struct {
	Seq            int64     `json:"-"` // ledger insertion order, assigned by the store
	ID             string    `json:"id"`
	EntityID       string    `json:"entity_id"`
	ClaimType      string    `json:"claim_type"`
	Confidence     float64   `json:"confidence"`
	Source         Source    `json:"source"`
	OriginSignalID string    `json:"origin_signal_id,omitempty"` // set for derived signals and retractions
	Retraction     bool      `json:"retraction,omitempty"`       // feedback event discounting its origin's claim
	Payload        string    `json:"payload,omitempty"`          // free-form evidence text
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// EffectiveConfidence returns the confidence aged by time: uncorroborated
// evidence loses weight at ratePerDay per day since it was recorded.
func (s *Signal) EffectiveConfidence(now time.Time, ratePerDay float64) float64 {
	if ratePerDay >= 1 || ratePerDay <= 0 {
		return s.Confidence
	}
	ageDays := now.Sub(s.CreatedAt).Hours() / 24
	if ageDays <= 0 {
		return s.Confidence
	}
	return s.Confidence * math.Pow(ratePerDay, ageDays)
}

// EmitRequest carries the fields of a new ledger event
type EmitRequest struct {
	EntityID       string
	ClaimType      string
	Confidence     float64
	Source         Source
	OriginSignalID string
	Retraction     bool
	Payload        string
}

// Validate rejects requests the ledger must never accept
func (r *EmitRequest) Validate() error {
	if r.EntityID == "" {
		return errors.NewInvalidRequestError("entity_id cannot be empty")
	}
	if r.ClaimType == "" {
		return errors.NewInvalidRequestError("claim_type cannot be empty")
	}
	if r.Confidence < 0 || r.Confidence > 1 || math.IsNaN(r.Confidence) {
		return errors.Wrapf(errors.ErrInvalidConfidence, "got %v", r.Confidence)
	}
	if !IsValidSource(string(r.Source)) {
		return errors.NewInvalidRequestError("invalid source %q", r.Source)
	}
	if r.Retraction && r.OriginSignalID == "" {
		return errors.NewInvalidRequestError("retraction requires origin_signal_id")
	}
	return nil
}
