package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Cursor is a known pagination cursor. A nil *Cursor means the connection
// has never been fetched, so the next query omits the `after` argument. A
// non-nil Cursor with a nil Value is the remote's explicit null cursor (an
// empty connection, or the very beginning of one); it is passed back as
// `after: null`. The two states must never be conflated.
type Cursor struct {
	Value *string
}

// ObjectRef identifies a registered object.
type ObjectRef struct {
	Typename string
	ID       string
}

// ConnectionRef identifies one connection on one object, together with the
// cursor from which its next page should be fetched.
type ConnectionRef struct {
	Typename  string
	ObjectID  string
	Fieldname string
	EndCursor *Cursor
}

// Outdated lists everything stale as of a threshold: objects whose own data
// needs refreshing and connections with pages left to fetch.
type Outdated struct {
	Objects     []ObjectRef
	Connections []ConnectionRef
}

// FindOutdated returns, inside a single read transaction, every object
// whose last update is missing or strictly older than since, and every
// connection whose last update is missing or strictly older than since or
// which still has a next page. Objects and connections updated exactly at
// since are not stale.
func (m *Mirror) FindOutdated(ctx context.Context, since time.Time) (*Outdated, error) {
	sinceMillis := since.UnixMilli()
	out := &Outdated{}

	err := m.withTx(ctx, func(tx *sql.Tx) error {
		if err := m.findOutdatedObjects(ctx, tx, sinceMillis, out); err != nil {
			return err
		}
		return m.findOutdatedConnections(ctx, tx, sinceMillis, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Mirror) findOutdatedObjects(ctx context.Context, tx *sql.Tx, sinceMillis int64, out *Outdated) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT o.typename, o.id
		 FROM objects o
		 LEFT JOIN updates u ON u.id = o.last_update
		 WHERE o.last_update IS NULL OR u.time_epoch_millis < ?
		 ORDER BY o.rowid ASC`,
		sinceMillis,
	)
	if err != nil {
		return fmt.Errorf("query outdated objects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ref ObjectRef
		if err := rows.Scan(&ref.Typename, &ref.ID); err != nil {
			return fmt.Errorf("scan outdated object: %w", err)
		}
		out.Objects = append(out.Objects, ref)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration: %w", err)
	}
	return nil
}

func (m *Mirror) findOutdatedConnections(ctx context.Context, tx *sql.Tx, sinceMillis int64, out *Outdated) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT o.typename, c.object_id, c.fieldname, c.last_update, c.end_cursor
		 FROM connections c
		 JOIN objects o ON o.id = c.object_id
		 LEFT JOIN updates u ON u.id = c.last_update
		 WHERE c.last_update IS NULL OR u.time_epoch_millis < ? OR c.has_next_page
		 ORDER BY c.id ASC`,
		sinceMillis,
	)
	if err != nil {
		return fmt.Errorf("query outdated connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ref ConnectionRef
		var lastUpdate sql.NullInt64
		var endCursor sql.NullString
		if err := rows.Scan(&ref.Typename, &ref.ObjectID, &ref.Fieldname, &lastUpdate, &endCursor); err != nil {
			return fmt.Errorf("scan outdated connection: %w", err)
		}
		// A connection that was never fetched and has no recorded cursor
		// reports a nil cursor; any recorded state reports a known cursor
		// whose value may be null, so pagination resumes where it stopped.
		if lastUpdate.Valid || endCursor.Valid {
			ref.EndCursor = &Cursor{}
			if endCursor.Valid {
				v := endCursor.String
				ref.EndCursor.Value = &v
			}
		}
		out.Connections = append(out.Connections, ref)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration: %w", err)
	}
	return nil
}
