package signal

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianhq/meridian/errors"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// The bus appends the signal and enqueues its recompute job in one
// transaction, so the ledger has to be able to write through either.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Ledger is the durable, append-only signal store
type Ledger struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewLedger creates a ledger over the given database
func NewLedger(db *sql.DB, logger *zap.SugaredLogger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// Append validates and durably records a new signal event. The returned
// signal carries the assigned id; fusion happens asynchronously.
func (l *Ledger) Append(ctx context.Context, req EmitRequest) (*Signal, error) {
	return l.AppendIn(ctx, l.db, req)
}

// AppendIn is Append running through the caller's Querier, letting the bus
// make the append and the recompute-job enqueue a single transaction.
func (l *Ledger) AppendIn(ctx context.Context, q Querier, req EmitRequest) (*Signal, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var exists bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM entities WHERE id = ?)`, req.EntityID,
	).Scan(&exists); err != nil {
		return nil, errors.Wrap(err, "resolve entity")
	}
	if !exists {
		return nil, errors.Wrapf(errors.ErrUnknownEntity, "entity %s", req.EntityID)
	}

	sig := &Signal{
		ID:             "sig_" + uuid.NewString(),
		EntityID:       req.EntityID,
		ClaimType:      req.ClaimType,
		Confidence:     req.Confidence,
		Source:         req.Source,
		OriginSignalID: req.OriginSignalID,
		Retraction:     req.Retraction,
		Payload:        req.Payload,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}

	origin := sql.NullString{String: sig.OriginSignalID, Valid: sig.OriginSignalID != ""}
	res, err := q.ExecContext(ctx,
		`INSERT INTO signals (id, entity_id, claim_type, confidence, source, origin_signal_id, retraction, payload, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		sig.ID, sig.EntityID, sig.ClaimType, sig.Confidence, sig.Source, origin, sig.Retraction, sig.Payload, sig.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "append signal")
	}
	if seq, err := res.LastInsertId(); err == nil {
		sig.Seq = seq
	}

	if l.logger != nil {
		l.logger.Debugw("Signal appended",
			"signal_id", sig.ID,
			"entity_id", sig.EntityID,
			"claim_type", sig.ClaimType,
			"confidence", sig.Confidence,
			"source", string(sig.Source),
		)
	}
	return sig, nil
}

// Get returns the signal with the given id
func (l *Ledger) Get(ctx context.Context, id string) (*Signal, error) {
	row := l.db.QueryRowContext(ctx, selectSignal+` WHERE id = ?`, id)
	sig, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("signal %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get signal %s", id)
	}
	return sig, nil
}

// ListOptions controls List pagination and filtering
type ListOptions struct {
	ClaimType string // empty = all claim types
	Limit     int    // 0 = DefaultListLimit
	Cursor    string // opaque restart token from a previous call
}

// DefaultListLimit caps unpaginated List calls
const DefaultListLimit = 100

// List returns an entity's signals in insertion order with a restartable
// cursor. The returned cursor is empty once the ledger is exhausted.
func (l *Ledger) List(ctx context.Context, entityID string, opts ListOptions) ([]*Signal, string, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	afterSeq := int64(0)
	if opts.Cursor != "" {
		var err error
		afterSeq, err = strconv.ParseInt(opts.Cursor, 10, 64)
		if err != nil {
			return nil, "", errors.NewInvalidRequestError("malformed cursor %q", opts.Cursor)
		}
	}

	query := selectSignal + ` WHERE entity_id = ? AND seq > ?`
	args := []interface{}{entityID, afterSeq}
	if opts.ClaimType != "" {
		query += ` AND claim_type = ?`
		args = append(args, opts.ClaimType)
	}
	query += ` ORDER BY seq LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", errors.Wrapf(err, "list signals for %s", entityID)
	}
	defer rows.Close()

	signals, err := scanSignals(rows)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(signals) == limit {
		next = strconv.FormatInt(signals[len(signals)-1].Seq, 10)
	}
	return signals, next, nil
}

// ActiveByClaim returns the active signals contributing to one claim on one
// entity, in insertion order.
func (l *Ledger) ActiveByClaim(ctx context.Context, entityID, claimType string) ([]*Signal, error) {
	rows, err := l.db.QueryContext(ctx,
		selectSignal+` WHERE entity_id = ? AND claim_type = ? AND active = 1 ORDER BY seq`,
		entityID, claimType,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "active signals for %s/%s", entityID, claimType)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// ActiveByEntity returns all active signals for an entity, in insertion order
func (l *Ledger) ActiveByEntity(ctx context.Context, entityID string) ([]*Signal, error) {
	rows, err := l.db.QueryContext(ctx,
		selectSignal+` WHERE entity_id = ? AND active = 1 ORDER BY seq`, entityID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "active signals for %s", entityID)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// ActiveCountSince counts active signals recorded for an entity after t
func (l *Ledger) ActiveCountSince(ctx context.Context, entityID string, t time.Time) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signals WHERE entity_id = ? AND active = 1 AND created_at > ?`,
		entityID, t,
	).Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(err, "count active signals for %s", entityID)
	}
	return count, nil
}

// ActiveEntities returns the distinct entity ids that currently have active
// signals. The decay pass iterates this set one entity at a time.
func (l *Ledger) ActiveEntities(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT DISTINCT entity_id FROM signals WHERE active = 1 ORDER BY entity_id`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list active entities")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan entity id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimsForEntity returns the distinct claim types recorded for an entity.
// Used to rebuild derived fusion results by replaying the ledger.
func (l *Ledger) ClaimsForEntity(ctx context.Context, entityID string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT DISTINCT claim_type FROM signals WHERE entity_id = ? ORDER BY claim_type`, entityID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "claims for %s", entityID)
	}
	defer rows.Close()

	var claims []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errors.Wrap(err, "scan claim type")
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// MarkInactive retires signals from fusion. The rows stay in the ledger;
// this is the one mutation the append-only table permits.
func (l *Ledger) MarkInactive(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if _, err := l.db.ExecContext(ctx,
			`UPDATE signals SET active = 0 WHERE id = ?`, id,
		); err != nil {
			return errors.Wrapf(err, "mark signal %s inactive", id)
		}
	}
	if l.logger != nil {
		l.logger.Debugw("Signals retired from fusion", "deactivated", len(ids))
	}
	return nil
}

const selectSignal = `SELECT seq, id, entity_id, claim_type, confidence, source, origin_signal_id, retraction, payload, active, created_at FROM signals`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(row rowScanner) (*Signal, error) {
	var s Signal
	var origin sql.NullString
	if err := row.Scan(&s.Seq, &s.ID, &s.EntityID, &s.ClaimType, &s.Confidence, &s.Source,
		&origin, &s.Retraction, &s.Payload, &s.Active, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.OriginSignalID = origin.String
	return &s, nil
}

func scanSignals(rows *sql.Rows) ([]*Signal, error) {
	var out []*Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan signal")
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
