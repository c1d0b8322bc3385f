package entity

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/meridianhq/meridian/errors"
)

// Store persists entity nodes and answers the parent/children lookups the
// propagation engine depends on.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewStore creates an entity store
func NewStore(db *sql.DB, logger *zap.SugaredLogger) *Store {
	return &Store{db: db, logger: logger}
}

// Create inserts a new entity after validating its type, its parent, and
// that attaching it keeps the hierarchy acyclic and within depth bounds.
func (s *Store) Create(ctx context.Context, e *Entity) error {
	if e.ID == "" {
		return errors.NewInvalidRequestError("entity id cannot be empty")
	}
	if !IsValidType(string(e.Type)) {
		return errors.NewInvalidRequestError("invalid entity type %q", e.Type)
	}

	if e.ParentID != "" {
		depth, err := s.chainDepth(ctx, e.ParentID, e.ID)
		if err != nil {
			return err
		}
		if depth+1 > MaxHierarchyDepth {
			return errors.NewInvalidRequestError("hierarchy depth limit %d exceeded", MaxHierarchyDepth)
		}
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	parentID := sql.NullString{String: e.ParentID, Valid: e.ParentID != ""}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (id, type, name, parent_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.Name, parentID, e.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "insert entity %s", e.ID)
	}

	if s.logger != nil {
		s.logger.Debugw("Entity created", "entity_id", e.ID, "type", e.Type, "parent", e.ParentID)
	}
	return nil
}

// chainDepth walks the parent chain from startID, rejecting unknown parents
// and chains that pass through newID (which would close a cycle).
func (s *Store) chainDepth(ctx context.Context, startID, newID string) (int, error) {
	depth := 0
	current := startID
	for current != "" {
		if current == newID {
			return 0, errors.Wrapf(errors.ErrCycleDetected, "entity %s in its own parent chain", newID)
		}
		depth++
		if depth > MaxHierarchyDepth {
			return 0, errors.NewInvalidRequestError("parent chain longer than %d", MaxHierarchyDepth)
		}

		parent, err := s.Parent(ctx, current)
		if err != nil {
			return 0, err
		}
		current = parent
	}
	return depth, nil
}

// Get returns the entity with the given id
func (s *Store) Get(ctx context.Context, id string) (*Entity, error) {
	var e Entity
	var parentID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, name, parent_id, created_at FROM entities WHERE id = ?`, id,
	).Scan(&e.ID, &e.Type, &e.Name, &parentID, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrUnknownEntity, "entity %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get entity %s", id)
	}
	e.ParentID = parentID.String
	return &e, nil
}

// Exists reports whether an entity id resolves
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM entities WHERE id = ?)`, id,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "check entity %s", id)
	}
	return exists, nil
}

// Parent returns the parent id of an entity, or "" for a root.
// Unknown entities yield ErrUnknownEntity.
func (s *Store) Parent(ctx context.Context, id string) (string, error) {
	var parentID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT parent_id FROM entities WHERE id = ?`, id,
	).Scan(&parentID)
	if err == sql.ErrNoRows {
		return "", errors.Wrapf(errors.ErrUnknownEntity, "entity %s", id)
	}
	if err != nil {
		return "", errors.Wrapf(err, "parent of %s", id)
	}
	return parentID.String, nil
}

// Children returns the direct children of an entity (derived view over parent_id)
func (s *Store) Children(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM entities WHERE parent_id = ? ORDER BY created_at, id`, id,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "children of %s", id)
	}
	defer rows.Close()

	var children []string
	for rows.Next() {
		var childID string
		if err := rows.Scan(&childID); err != nil {
			return nil, errors.Wrap(err, "scan child id")
		}
		children = append(children, childID)
	}
	return children, rows.Err()
}

// List returns all entities ordered by creation
func (s *Store) List(ctx context.Context) ([]*Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, name, parent_id, created_at FROM entities ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list entities")
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		var e Entity
		var parentID sql.NullString
		if err := rows.Scan(&e.ID, &e.Type, &e.Name, &parentID, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan entity")
		}
		e.ParentID = parentID.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Delete removes an entity. In-flight propagation targeting it observes
// ErrUnknownEntity on write and skips the target.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete entity %s", id)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return errors.Wrapf(errors.ErrUnknownEntity, "entity %s", id)
	}
	return nil
}
