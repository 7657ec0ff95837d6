// Package mirror maintains a local, persistent mirror of a remote GraphQL
// object graph in SQLite. Given a schema, it bootstraps the on-disk layout,
// registers objects, reports what is stale, generates the GraphQL selection
// sets needed to refresh it, and ingests the responses. It never touches the
// network: the caller executes the queries it produces.
package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/johnwards/graphmirror/internal/schema"
)

// mirrorVersion tags the on-disk layout. Bump it whenever the schema-to-
// layout mapping or the interpretation of the layout changes; stores written
// under a different version are rejected as incompatible.
const mirrorVersion = "MIRROR_v1"

// safeIdentifier gates the only place where user-supplied names are
// interpolated into SQL: table and column identifiers derived from the
// schema. All values flow through parameter bindings.
var safeIdentifier = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Mirror is the sole writer of its database. The caller must hold exclusive
// ownership of the database file; concurrent Mirrors against the same file
// are not supported.
type Mirror struct {
	db     *sql.DB
	schema *schema.Schema
	inTx   bool
}

// New initializes the store for the given schema and returns a Mirror over
// it. Initialization is idempotent: on a store already bootstrapped with the
// same schema it changes nothing. A store bootstrapped with a different
// schema is rejected with ErrIncompatibleSchema and left untouched.
func New(ctx context.Context, db *sql.DB, s *schema.Schema) (*Mirror, error) {
	m := &Mirror{db: db, schema: s}
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

var structuralDDL = []string{
	`CREATE TABLE IF NOT EXISTS updates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		time_epoch_millis INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS objects (
		id TEXT NOT NULL PRIMARY KEY,
		typename TEXT NOT NULL,
		last_update INTEGER,
		FOREIGN KEY (last_update) REFERENCES updates (id)
	)`,
	`CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id TEXT NOT NULL,
		fieldname TEXT NOT NULL,
		child_id TEXT,
		FOREIGN KEY (parent_id) REFERENCES objects (id),
		FOREIGN KEY (child_id) REFERENCES objects (id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_links_parent_fieldname
		ON links (parent_id, fieldname)`,
	`CREATE TABLE IF NOT EXISTS connections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		object_id TEXT NOT NULL,
		fieldname TEXT NOT NULL,
		last_update INTEGER,
		total_count INTEGER,
		has_next_page BOOLEAN,
		end_cursor TEXT,
		FOREIGN KEY (object_id) REFERENCES objects (id),
		FOREIGN KEY (last_update) REFERENCES updates (id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_connections_object_fieldname
		ON connections (object_id, fieldname)`,
	`CREATE TABLE IF NOT EXISTS connection_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		connection_id INTEGER NOT NULL,
		idx INTEGER NOT NULL,
		child_id TEXT NOT NULL,
		FOREIGN KEY (connection_id) REFERENCES connections (id),
		FOREIGN KEY (child_id) REFERENCES objects (id),
		UNIQUE (connection_id, idx)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_connection_entries_connection
		ON connection_entries (connection_id)`,
}

func (m *Mirror) initialize(ctx context.Context) error {
	fingerprint, err := m.fingerprint()
	if err != nil {
		return err
	}

	return m.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`CREATE TABLE IF NOT EXISTS meta (zero INTEGER PRIMARY KEY, schema TEXT NOT NULL)`,
		); err != nil {
			return fmt.Errorf("create meta table: %w", err)
		}

		var existing string
		err := tx.QueryRowContext(ctx, `SELECT schema FROM meta WHERE zero = 0`).Scan(&existing)
		switch {
		case err == nil:
			if existing == fingerprint {
				// Already bootstrapped with this schema.
				return nil
			}
			return fmt.Errorf("database already initialized with different schema or version: %w", ErrIncompatibleSchema)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("read schema fingerprint: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta (zero, schema) VALUES (0, ?)`, fingerprint,
		); err != nil {
			return fmt.Errorf("write schema fingerprint: %w", err)
		}

		for _, stmt := range structuralDDL {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create structural tables: %w", err)
			}
		}

		for _, typename := range m.schema.TypeNames() {
			typ, _ := m.schema.Type(typename)
			if typ.IsUnion() {
				// Unions have no physical storage.
				continue
			}
			if err := m.createDataTable(ctx, tx, typename, typ); err != nil {
				return err
			}
		}

		return nil
	})
}

// createDataTable creates the per-type table holding an object type's
// primitive fields, one column per field. Names are checked against the
// whitelist here before they are interpolated; own-data ingestion reuses
// the same schema names when it writes these tables. Columns are deliberately
// untyped so primitive scalars keep the type they were bound with.
func (m *Mirror) createDataTable(ctx context.Context, tx *sql.Tx, typename string, typ schema.Type) error {
	if !safeIdentifier.MatchString(typename) {
		return fmt.Errorf("type name %q: %w", typename, ErrUnsafeIdentifier)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `CREATE TABLE IF NOT EXISTS "data_%s" (`, typename)
	b.WriteString(`id TEXT NOT NULL PRIMARY KEY REFERENCES objects (id)`)
	for _, field := range typ.PrimitiveFieldNames() {
		if !safeIdentifier.MatchString(field) {
			return fmt.Errorf("primitive field %q of type %q: %w", field, typename, ErrUnsafeIdentifier)
		}
		fmt.Fprintf(&b, `, "%s"`, field)
	}
	b.WriteString(`)`)

	if _, err := tx.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("create data table for %q: %w", typename, err)
	}
	return nil
}

// fingerprint returns the canonical textual form of the schema together
// with the layout version. Two stores are compatible iff their fingerprints
// are byte-equal.
func (m *Mirror) fingerprint() (string, error) {
	// encoding/json emits map keys in sorted order, which makes this
	// encoding canonical.
	blob, err := json.Marshal(map[string]any{
		"version": mirrorVersion,
		"schema":  m.schema,
	})
	if err != nil {
		return "", fmt.Errorf("serialize schema: %w", err)
	}
	return string(blob), nil
}

// withTx runs fn inside a transaction: commit on normal return, rollback on
// error, with the error propagated. Re-entry fails with
// ErrAlreadyInTransaction. A callback that has already ended the transaction
// itself is tolerated: the helper neither double-commits nor
// double-rolls-back.
func (m *Mirror) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if m.inTx {
		return ErrAlreadyInTransaction
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	m.inTx = true
	defer func() { m.inTx = false }()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback after %q: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
