package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/johnwards/graphmirror/internal/schema"
)

// NodeResult is the shallow wire form of a referenced object.
type NodeResult struct {
	Typename string `json:"__typename"`
	ID       string `json:"id"`
}

// PageInfo is the pagination state returned with a connection page.
type PageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

// ConnectionResult is one page of a paginated connection as returned by the
// remote.
type ConnectionResult struct {
	TotalCount int          `json:"totalCount"`
	PageInfo   PageInfo     `json:"pageInfo"`
	Nodes      []NodeResult `json:"nodes"`
}

// OwnDataResult carries one object's own data as returned by an own-data
// query: its primitive scalar values and its singular node links. Every
// primitive and node field of the object's type must be present; a nil
// node entry is an explicit null link.
type OwnDataResult struct {
	ID         string
	Primitives map[string]any
	Nodes      map[string]*NodeResult
}

// UpdateConnection ingests one page of a connection, stamping it with the
// given update. Nodes are appended to the connection's entry log in
// response order at strictly increasing indices; children are registered
// transparently. The log is append-only: entries are never revised when the
// remote list changes.
func (m *Mirror) UpdateConnection(ctx context.Context, update UpdateID, objectID, fieldname string, result *ConnectionResult) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		return m.updateConnection(ctx, tx, update, objectID, fieldname, result)
	})
}

// updateConnection is the un-transactional core of UpdateConnection.
func (m *Mirror) updateConnection(ctx context.Context, tx *sql.Tx, update UpdateID, objectID, fieldname string, result *ConnectionResult) error {
	var connectionID int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM connections WHERE object_id = ? AND fieldname = ?`,
		objectID, fieldname,
	).Scan(&connectionID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("connection %q.%q: %w", objectID, fieldname, ErrUnknownConnection)
	case err != nil:
		return fmt.Errorf("look up connection %q.%q: %w", objectID, fieldname, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE connections
		 SET last_update = ?, total_count = ?, has_next_page = ?, end_cursor = ?
		 WHERE id = ?`,
		int64(update), result.TotalCount, result.PageInfo.HasNextPage, result.PageInfo.EndCursor, connectionID,
	); err != nil {
		return fmt.Errorf("update connection %q.%q: %w", objectID, fieldname, err)
	}

	var nextIndex int64
	if err := tx.QueryRowContext(ctx,
		`SELECT IFNULL(MAX(idx), 0) + 1 FROM connection_entries WHERE connection_id = ?`,
		connectionID,
	).Scan(&nextIndex); err != nil {
		return fmt.Errorf("next entry index: %w", err)
	}

	for _, node := range result.Nodes {
		if err := m.registerObject(ctx, tx, node.Typename, node.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO connection_entries (connection_id, idx, child_id) VALUES (?, ?, ?)`,
			connectionID, nextIndex, node.ID,
		); err != nil {
			return fmt.Errorf("insert connection entry %d: %w", nextIndex, err)
		}
		nextIndex++
	}

	return nil
}

// UpdateOwnData ingests the own data of one or more objects of the given
// type, stamping each with the given update. Every object must already be
// registered with that typename; node-link children are registered
// transparently.
func (m *Mirror) UpdateOwnData(ctx context.Context, update UpdateID, typename string, results []OwnDataResult) error {
	typ, ok := m.schema.Type(typename)
	if !ok {
		return fmt.Errorf("own-data update: %w: %q", ErrUnknownType, typename)
	}
	if typ.IsUnion() {
		return fmt.Errorf("own-data update: %w: %q is a union and has no own data", ErrAmbiguousType, typename)
	}

	return m.withTx(ctx, func(tx *sql.Tx) error {
		for i := range results {
			if err := m.updateOwnData(ctx, tx, update, typename, typ, &results[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// updateOwnData is the un-transactional core of UpdateOwnData.
func (m *Mirror) updateOwnData(ctx context.Context, tx *sql.Tx, update UpdateID, typename string, typ schema.Type, result *OwnDataResult) error {
	var existing string
	err := tx.QueryRowContext(ctx,
		`SELECT typename FROM objects WHERE id = ?`, result.ID,
	).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("own data for %q: %w", result.ID, ErrUnknownObject)
	case err != nil:
		return fmt.Errorf("look up object %q: %w", result.ID, err)
	case existing != typename:
		return fmt.Errorf("own data for %q: %w: registered as %q, response says %q",
			result.ID, ErrInconsistentType, existing, typename)
	}

	if err := m.writePrimitives(ctx, tx, typename, typ, result); err != nil {
		return err
	}
	if err := m.writeLinks(ctx, tx, typ, result); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE objects SET last_update = ? WHERE id = ?`,
		int64(update), result.ID,
	); err != nil {
		return fmt.Errorf("stamp object %q: %w", result.ID, err)
	}
	return nil
}

func (m *Mirror) writePrimitives(ctx context.Context, tx *sql.Tx, typename string, typ schema.Type, result *OwnDataResult) error {
	fields := typ.PrimitiveFieldNames()

	// Identifiers were whitelisted at bootstrap; the same schema produced
	// them, so interpolating here is safe. Values still bind as parameters.
	var b strings.Builder
	fmt.Fprintf(&b, `INSERT INTO "data_%s" (id`, typename)
	for _, field := range fields {
		fmt.Fprintf(&b, `, "%s"`, field)
	}
	b.WriteString(`) VALUES (?`)
	b.WriteString(strings.Repeat(`, ?`, len(fields)))
	b.WriteString(`)`)
	if len(fields) == 0 {
		b.WriteString(` ON CONFLICT (id) DO NOTHING`)
	} else {
		b.WriteString(` ON CONFLICT (id) DO UPDATE SET `)
		for i, field := range fields {
			if i > 0 {
				b.WriteString(`, `)
			}
			fmt.Fprintf(&b, `"%s" = excluded."%s"`, field, field)
		}
	}

	args := make([]any, 0, len(fields)+1)
	args = append(args, result.ID)
	for _, field := range fields {
		value, ok := result.Primitives[field]
		if !ok {
			return fmt.Errorf("own data for %q: missing primitive field %q", result.ID, field)
		}
		switch value.(type) {
		case nil, string, bool, int, int64, float64:
		default:
			return fmt.Errorf("own data for %q: field %q has unsupported value type %T", result.ID, field, value)
		}
		args = append(args, value)
	}

	if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("write own data for %q: %w", result.ID, err)
	}
	return nil
}

func (m *Mirror) writeLinks(ctx context.Context, tx *sql.Tx, typ schema.Type, result *OwnDataResult) error {
	for _, field := range typ.NodeFieldNames() {
		node, ok := result.Nodes[field]
		if !ok {
			return fmt.Errorf("own data for %q: missing node field %q", result.ID, field)
		}

		var childID any
		if node != nil {
			if err := m.registerObject(ctx, tx, node.Typename, node.ID); err != nil {
				return err
			}
			childID = node.ID
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO links (parent_id, fieldname, child_id) VALUES (?, ?, ?)
			 ON CONFLICT (parent_id, fieldname) DO UPDATE SET child_id = excluded.child_id`,
			result.ID, field, childID,
		); err != nil {
			return fmt.Errorf("write link %q.%q: %w", result.ID, field, err)
		}
	}
	return nil
}
