package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpdateID identifies one row in the updates table: a successful remote
// round-trip whose timestamp stamps everything ingested from it.
type UpdateID int64

// CreateUpdate records a round-trip at the given wall-clock time and returns
// its id. Every call yields a distinct id, even for duplicate timestamps.
// The caller obtains one id per remote round-trip and reuses it for all
// ingestion derived from that round-trip.
func (m *Mirror) CreateUpdate(ctx context.Context, t time.Time) (UpdateID, error) {
	res, err := m.db.ExecContext(ctx,
		`INSERT INTO updates (time_epoch_millis) VALUES (?)`, t.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert update: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return UpdateID(id), nil
}

// RegisterObject ensures the object with the given concrete typename and
// remote id exists in the store, along with one empty connection row per
// connection field of its type. Registering an already-registered object is
// a no-op; registering it under a different typename fails with
// ErrInconsistentType.
func (m *Mirror) RegisterObject(ctx context.Context, typename, id string) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		return m.registerObject(ctx, tx, typename, id)
	})
}

// registerObject is the un-transactional core of RegisterObject. Larger
// ingestions call it directly from within their own transaction.
func (m *Mirror) registerObject(ctx context.Context, tx *sql.Tx, typename, id string) error {
	var existing string
	err := tx.QueryRowContext(ctx,
		`SELECT typename FROM objects WHERE id = ?`, id,
	).Scan(&existing)
	switch {
	case err == nil:
		if existing != typename {
			return fmt.Errorf("object %q: %w: registered as %q, requested %q",
				id, ErrInconsistentType, existing, typename)
		}
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("look up object %q: %w", id, err)
	}

	typ, ok := m.schema.Type(typename)
	if !ok {
		return fmt.Errorf("register object %q: %w: %q", id, ErrUnknownType, typename)
	}
	if typ.IsUnion() {
		return fmt.Errorf("register object %q: %w: %q is a union; register a concrete member type",
			id, ErrAmbiguousType, typename)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO objects (id, typename, last_update) VALUES (?, ?, NULL)`,
		id, typename,
	); err != nil {
		return fmt.Errorf("insert object %q: %w", id, err)
	}

	for _, fieldname := range typ.ConnectionFieldNames() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO connections
				(object_id, fieldname, last_update, total_count, has_next_page, end_cursor)
			 VALUES (?, ?, NULL, NULL, NULL, NULL)`,
			id, fieldname,
		); err != nil {
			return fmt.Errorf("insert connection %q.%q: %w", id, fieldname, err)
		}
	}

	return nil
}
