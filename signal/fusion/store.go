package fusion

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhq/meridian/errors"
)

// Result is the fused confidence for one (entity, claim) pair, along with
// the signals that contributed to it.
type Result struct {
	EntityID              string
	ClaimType             string
	Combined              float64
	ContributingSignalIDs []string
	ComputedAt            time.Time
}

// ResultStore persists fusion results. Unlike the signal ledger this table
// is mutable: each recompute overwrites the previous row for the pair.
type ResultStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

func NewResultStore(db *sql.DB, logger *zap.SugaredLogger) *ResultStore {
	return &ResultStore{db: db, logger: logger}
}

// Upsert writes the result for (entity, claim), replacing any prior row.
func (s *ResultStore) Upsert(ctx context.Context, r *Result) error {
	ids, err := json.Marshal(r.ContributingSignalIDs)
	if err != nil {
		return errors.Wrap(err, "failed to encode contributing signal ids")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fusion_results (entity_id, claim_type, combined_confidence, contributing_signal_ids, last_computed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, claim_type) DO UPDATE SET
			combined_confidence = excluded.combined_confidence,
			contributing_signal_ids = excluded.contributing_signal_ids,
			last_computed_at = excluded.last_computed_at
	`, r.EntityID, r.ClaimType, r.Combined, string(ids), r.ComputedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "failed to upsert fusion result")
	}
	return nil
}

// Get returns the stored result for (entity, claim), or ErrNotFound.
func (s *ResultStore) Get(ctx context.Context, entityID, claimType string) (*Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entity_id, claim_type, combined_confidence, contributing_signal_ids, last_computed_at
		FROM fusion_results
		WHERE entity_id = ? AND claim_type = ?
	`, entityID, claimType)
	return scanResult(row)
}

// ListForEntity returns every stored result for an entity, strongest first.
func (s *ResultStore) ListForEntity(ctx context.Context, entityID string) ([]*Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, claim_type, combined_confidence, contributing_signal_ids, last_computed_at
		FROM fusion_results
		WHERE entity_id = ?
		ORDER BY combined_confidence DESC
	`, entityID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list fusion results")
	}
	defer rows.Close()

	var results []*Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Delete removes the stored result for (entity, claim). Removing a row that
// does not exist is not an error.
func (s *ResultStore) Delete(ctx context.Context, entityID, claimType string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM fusion_results WHERE entity_id = ? AND claim_type = ?
	`, entityID, claimType)
	if err != nil {
		return errors.Wrap(err, "failed to delete fusion result")
	}
	return nil
}

// DeleteForEntity removes every stored result for an entity.
func (s *ResultStore) DeleteForEntity(ctx context.Context, entityID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM fusion_results WHERE entity_id = ?
	`, entityID)
	if err != nil {
		return errors.Wrap(err, "failed to delete fusion results for entity")
	}
	return nil
}

// MaxSince returns the highest combined confidence computed for the entity
// after the given time. Used by the enrichment trigger.
func (s *ResultStore) MaxSince(ctx context.Context, entityID string, since time.Time) (float64, error) {
	var max sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(combined_confidence) FROM fusion_results
		WHERE entity_id = ? AND last_computed_at > ?
	`, entityID, since.UTC()).Scan(&max)
	if err != nil {
		return 0, errors.Wrap(err, "failed to query max fusion result")
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Float64, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*Result, error) {
	var r Result
	var ids string
	err := row.Scan(&r.EntityID, &r.ClaimType, &r.Combined, &ids, &r.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan fusion result")
	}
	if err := json.Unmarshal([]byte(ids), &r.ContributingSignalIDs); err != nil {
		return nil, errors.Wrap(err, "failed to decode contributing signal ids")
	}
	return &r, nil
}
