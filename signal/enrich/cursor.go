// Package enrich decides when an entity has accumulated enough fresh
// evidence to justify an expensive synthesis pass, and hands the entity
// off to the synthesizer under a rate limit.
package enrich

import (
	"context"
	"database/sql"
	"time"

	"github.com/meridianhq/meridian/errors"
)

// Cursor records where the last synthesis pass left off for one entity.
type Cursor struct {
	EntityID        string
	LastEnrichedAt  time.Time
	SignalCountAtLE int
}

// CursorStore persists enrichment cursors. An entity with no cursor row
// has never been enriched; its cursor reads as the zero time.
type CursorStore struct {
	db *sql.DB
}

func NewCursorStore(db *sql.DB) *CursorStore {
	return &CursorStore{db: db}
}

// Get returns the cursor for an entity. A never-enriched entity gets a
// zero-valued cursor, not an error.
func (s *CursorStore) Get(ctx context.Context, entityID string) (*Cursor, error) {
	c := &Cursor{EntityID: entityID}
	err := s.db.QueryRowContext(ctx, `
		SELECT last_enriched_at, signal_count_at_last_enrichment
		FROM enrichment_cursors WHERE entity_id = ?
	`, entityID).Scan(&c.LastEnrichedAt, &c.SignalCountAtLE)
	if err == sql.ErrNoRows {
		return c, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load enrichment cursor for %s", entityID)
	}
	return c, nil
}

// Advance moves the cursor to now. Only called after the synthesizer
// accepted the handoff; a failed handoff leaves the cursor where it was
// so the entity triggers again next pass.
func (s *CursorStore) Advance(ctx context.Context, entityID string, at time.Time, signalCount int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrichment_cursors (entity_id, last_enriched_at, signal_count_at_last_enrichment)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			last_enriched_at = excluded.last_enriched_at,
			signal_count_at_last_enrichment = excluded.signal_count_at_last_enrichment
	`, entityID, at.UTC(), signalCount)
	if err != nil {
		return errors.Wrapf(err, "failed to advance enrichment cursor for %s", entityID)
	}
	return nil
}
