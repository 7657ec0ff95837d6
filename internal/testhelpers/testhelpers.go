package testhelpers

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/johnwards/graphmirror/internal/database"
	"github.com/johnwards/graphmirror/internal/schema"
)

// NewTestDB returns an in-memory SQLite database configured the same way as
// production. The database is automatically closed when the test completes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// NewTestFileDB opens a file-backed database under the test's temporary
// directory and returns it with its path. Used by tests that compare
// on-disk bytes; the caller closes the handle itself to force a checkpoint.
func NewTestFileDB(t *testing.T) (*sql.DB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mirror.db")
	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("open test database %s: %v", path, err)
	}
	return db, path
}

// TestSchema returns the GitHub-like schema used across the test suite:
// repositories with issue connections, issues with comment connections,
// comments with an author link to an actor union.
func TestSchema(t *testing.T) *schema.Schema {
	t.Helper()

	actor := map[string]schema.Field{
		"id":    schema.IDField(),
		"url":   schema.Primitive(),
		"login": schema.Primitive(),
	}
	s, err := schema.New(map[string]schema.Type{
		"Repository": schema.Object(map[string]schema.Field{
			"id":     schema.IDField(),
			"url":    schema.Primitive(),
			"issues": schema.Connection("Issue"),
		}),
		"Issue": schema.Object(map[string]schema.Field{
			"id":       schema.IDField(),
			"url":      schema.Primitive(),
			"title":    schema.Primitive(),
			"comments": schema.Connection("IssueComment"),
		}),
		"IssueComment": schema.Object(map[string]schema.Field{
			"id":     schema.IDField(),
			"body":   schema.Primitive(),
			"author": schema.Node("Actor"),
		}),
		"Actor":        schema.Union("User", "Bot", "Organization"),
		"User":         schema.Object(actor),
		"Bot":          schema.Object(actor),
		"Organization": schema.Object(actor),
	})
	if err != nil {
		t.Fatalf("build test schema: %v", err)
	}
	return s
}
