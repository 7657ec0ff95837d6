package mirror_test

import (
	"database/sql"
	"testing"
)

// testDB wraps the raw handle for direct probes of the store's rows, which
// is how the invariants are checked.
type testDB struct {
	t  *testing.T
	db *sql.DB
}

func (q *testDB) count(query string, args ...any) int {
	q.t.Helper()
	var n int
	if err := q.db.QueryRow(query, args...).Scan(&n); err != nil {
		q.t.Fatalf("count %q: %v", query, err)
	}
	return n
}

func (q *testDB) row(query string, dest ...any) {
	q.t.Helper()
	if err := q.db.QueryRow(query).Scan(dest...); err != nil {
		q.t.Fatalf("row %q: %v", query, err)
	}
}

func (q *testDB) exec(query string, args ...any) {
	q.t.Helper()
	if _, err := q.db.Exec(query, args...); err != nil {
		q.t.Fatalf("exec %q: %v", query, err)
	}
}

func (q *testDB) tableExists(name string) bool {
	q.t.Helper()
	return q.count(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name) == 1
}
