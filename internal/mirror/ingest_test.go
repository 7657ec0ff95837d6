package mirror_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/johnwards/graphmirror/internal/mirror"
)

func strptr(s string) *string { return &s }

func TestUpdateConnectionRegistersChildren(t *testing.T) {
	m, q := setupMirror(t)
	ctx := context.Background()

	if err := m.RegisterObject(ctx, "Repository", "R"); err != nil {
		t.Fatalf("register: %v", err)
	}
	u, err := m.CreateUpdate(ctx, time.UnixMilli(1000))
	if err != nil {
		t.Fatalf("create update: %v", err)
	}

	err = m.UpdateConnection(ctx, u, "R", "issues", &mirror.ConnectionResult{
		TotalCount: 2,
		PageInfo:   mirror.PageInfo{HasNextPage: false, EndCursor: strptr("c")},
		Nodes: []mirror.NodeResult{
			{Typename: "Issue", ID: "i1"},
			{Typename: "Issue", ID: "i2"},
		},
	})
	if err != nil {
		t.Fatalf("update connection: %v", err)
	}

	// Two new Issue objects, auto-registered shallowly.
	if got := q.count(`SELECT COUNT(*) FROM objects WHERE typename = 'Issue'`); got != 2 {
		t.Errorf("issue count = %d, want 2", got)
	}

	// Entries at indices 1 and 2, in response order.
	rows, err := q.db.Query(
		`SELECT e.idx, e.child_id FROM connection_entries e
		 JOIN connections c ON c.id = e.connection_id
		 WHERE c.object_id = 'R' AND c.fieldname = 'issues'
		 ORDER BY e.idx`,
	)
	if err != nil {
		t.Fatalf("query entries: %v", err)
	}
	defer func() { _ = rows.Close() }()
	want := []struct {
		idx   int
		child string
	}{{1, "i1"}, {2, "i2"}}
	i := 0
	for rows.Next() {
		var idx int
		var child string
		if err := rows.Scan(&idx, &child); err != nil {
			t.Fatalf("scan entry: %v", err)
		}
		if i >= len(want) || idx != want[i].idx || child != want[i].child {
			t.Errorf("entry %d = (%d, %s), want %v", i, idx, child, want)
		}
		i++
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows iteration: %v", err)
	}
	if i != len(want) {
		t.Errorf("entry count = %d, want %d", i, len(want))
	}

	// The connection row is fully populated.
	var lastUpdate sql.NullInt64
	var totalCount sql.NullInt64
	var hasNext sql.NullBool
	var endCursor sql.NullString
	q.row(`SELECT last_update, total_count, has_next_page, end_cursor
	       FROM connections WHERE object_id = 'R' AND fieldname = 'issues'`,
		&lastUpdate, &totalCount, &hasNext, &endCursor)
	if !lastUpdate.Valid || lastUpdate.Int64 != int64(u) {
		t.Errorf("last_update = %v, want %d", lastUpdate, u)
	}
	if !totalCount.Valid || totalCount.Int64 != 2 {
		t.Errorf("total_count = %v, want 2", totalCount)
	}
	if !hasNext.Valid || hasNext.Bool {
		t.Errorf("has_next_page = %v, want false", hasNext)
	}
	if !endCursor.Valid || endCursor.String != "c" {
		t.Errorf("end_cursor = %v, want c", endCursor)
	}

	// As of the update's own time, the new issues are stale (their own data
	// was never loaded), but the exhausted R.issues connection is not.
	out, err := m.FindOutdated(ctx, time.UnixMilli(1000))
	if err != nil {
		t.Fatalf("find outdated: %v", err)
	}
	staleObjects := map[string]bool{}
	for _, o := range out.Objects {
		staleObjects[o.ID] = true
	}
	if !staleObjects["i1"] || !staleObjects["i2"] {
		t.Errorf("stale objects = %v, want i1 and i2 included", out.Objects)
	}
	for _, c := range out.Connections {
		if c.ObjectID == "R" {
			t.Errorf("R.issues should not be stale: %v", c)
		}
	}
}

func TestUpdateConnectionAppendsAcrossPages(t *testing.T) {
	m, q := setupMirror(t)
	ctx := context.Background()

	if err := m.RegisterObject(ctx, "Repository", "R"); err != nil {
		t.Fatalf("register: %v", err)
	}
	u, err := m.CreateUpdate(ctx, time.UnixMilli(1000))
	if err != nil {
		t.Fatalf("create update: %v", err)
	}

	page1 := &mirror.ConnectionResult{
		TotalCount: 3,
		PageInfo:   mirror.PageInfo{HasNextPage: true, EndCursor: strptr("p1")},
		Nodes:      []mirror.NodeResult{{Typename: "Issue", ID: "i1"}, {Typename: "Issue", ID: "i2"}},
	}
	page2 := &mirror.ConnectionResult{
		TotalCount: 3,
		PageInfo:   mirror.PageInfo{HasNextPage: false, EndCursor: strptr("p2")},
		Nodes:      []mirror.NodeResult{{Typename: "Issue", ID: "i3"}},
	}

	if err := m.UpdateConnection(ctx, u, "R", "issues", page1); err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if err := m.UpdateConnection(ctx, u, "R", "issues", page2); err != nil {
		t.Fatalf("page 2: %v", err)
	}

	var maxIdx int
	q.row(`SELECT MAX(e.idx) FROM connection_entries e
	       JOIN connections c ON c.id = e.connection_id
	       WHERE c.object_id = 'R'`, &maxIdx)
	if maxIdx != 3 {
		t.Errorf("max idx = %d, want 3", maxIdx)
	}
}

func TestUpdateConnectionUnknown(t *testing.T) {
	m, _ := setupMirror(t)
	ctx := context.Background()

	u, err := m.CreateUpdate(ctx, time.UnixMilli(1))
	if err != nil {
		t.Fatalf("create update: %v", err)
	}

	err = m.UpdateConnection(ctx, u, "nobody", "issues", &mirror.ConnectionResult{})
	if !errors.Is(err, mirror.ErrUnknownConnection) {
		t.Fatalf("error = %v, want ErrUnknownConnection", err)
	}
}

func TestUpdateConnectionRollsBackOnConflict(t *testing.T) {
	m, q := setupMirror(t)
	ctx := context.Background()

	if err := m.RegisterObject(ctx, "Repository", "R"); err != nil {
		t.Fatalf("register R: %v", err)
	}
	// "x" is already a User; the page below claims it is an Issue.
	if err := m.RegisterObject(ctx, "User", "x"); err != nil {
		t.Fatalf("register x: %v", err)
	}
	u, err := m.CreateUpdate(ctx, time.UnixMilli(1000))
	if err != nil {
		t.Fatalf("create update: %v", err)
	}

	err = m.UpdateConnection(ctx, u, "R", "issues", &mirror.ConnectionResult{
		TotalCount: 2,
		PageInfo:   mirror.PageInfo{HasNextPage: false, EndCursor: strptr("c")},
		Nodes: []mirror.NodeResult{
			{Typename: "Issue", ID: "i1"},
			{Typename: "Issue", ID: "x"},
		},
	})
	if !errors.Is(err, mirror.ErrInconsistentType) {
		t.Fatalf("error = %v, want ErrInconsistentType", err)
	}

	// The whole ingestion rolled back: no entries, no new objects, and
	// the connection row still reads never-fetched.
	if got := q.count(`SELECT COUNT(*) FROM connection_entries`); got != 0 {
		t.Errorf("entries = %d, want 0 after rollback", got)
	}
	if got := q.count(`SELECT COUNT(*) FROM objects WHERE id = 'i1'`); got != 0 {
		t.Errorf("i1 registered despite rollback")
	}
	var lastUpdate sql.NullInt64
	q.row(`SELECT last_update FROM connections WHERE object_id = 'R' AND fieldname = 'issues'`, &lastUpdate)
	if lastUpdate.Valid {
		t.Errorf("last_update = %v, want NULL after rollback", lastUpdate)
	}
}

func TestUpdateOwnData(t *testing.T) {
	m, q := setupMirror(t)
	ctx := context.Background()

	if err := m.RegisterObject(ctx, "IssueComment", "c1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	u, err := m.CreateUpdate(ctx, time.UnixMilli(2000))
	if err != nil {
		t.Fatalf("create update: %v", err)
	}

	err = m.UpdateOwnData(ctx, u, "IssueComment", []mirror.OwnDataResult{{
		ID:         "c1",
		Primitives: map[string]any{"body": "hello"},
		Nodes:      map[string]*mirror.NodeResult{"author": {Typename: "User", ID: "u1"}},
	}})
	if err != nil {
		t.Fatalf("update own data: %v", err)
	}

	var body string
	q.row(`SELECT "body" FROM "data_IssueComment" WHERE id = 'c1'`, &body)
	if body != "hello" {
		t.Errorf("body = %q, want hello", body)
	}

	var child sql.NullString
	q.row(`SELECT child_id FROM links WHERE parent_id = 'c1' AND fieldname = 'author'`, &child)
	if !child.Valid || child.String != "u1" {
		t.Errorf("author link = %v, want u1", child)
	}

	// The author was auto-registered.
	if got := q.count(`SELECT COUNT(*) FROM objects WHERE id = 'u1' AND typename = 'User'`); got != 1 {
		t.Error("expected author u1 registered as User")
	}

	// c1 is fresh for thresholds at or before its update, stale after.
	out, err := m.FindOutdated(ctx, time.UnixMilli(2000))
	if err != nil {
		t.Fatalf("find outdated: %v", err)
	}
	for _, o := range out.Objects {
		if o.ID == "c1" {
			t.Errorf("c1 should not be stale at its own update time")
		}
	}
	out, err = m.FindOutdated(ctx, time.UnixMilli(2001))
	if err != nil {
		t.Fatalf("find outdated: %v", err)
	}
	found := false
	for _, o := range out.Objects {
		if o.ID == "c1" {
			found = true
		}
	}
	if !found {
		t.Error("c1 should be stale past its update time")
	}
}

func TestUpdateOwnDataNullLink(t *testing.T) {
	m, q := setupMirror(t)
	ctx := context.Background()

	if err := m.RegisterObject(ctx, "IssueComment", "c1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	u, err := m.CreateUpdate(ctx, time.UnixMilli(2000))
	if err != nil {
		t.Fatalf("create update: %v", err)
	}

	err = m.UpdateOwnData(ctx, u, "IssueComment", []mirror.OwnDataResult{{
		ID:         "c1",
		Primitives: map[string]any{"body": nil},
		Nodes:      map[string]*mirror.NodeResult{"author": nil},
	}})
	if err != nil {
		t.Fatalf("update own data: %v", err)
	}

	var child sql.NullString
	q.row(`SELECT child_id FROM links WHERE parent_id = 'c1' AND fieldname = 'author'`, &child)
	if child.Valid {
		t.Errorf("author link = %v, want NULL", child)
	}
}

func TestUpdateOwnDataErrors(t *testing.T) {
	m, _ := setupMirror(t)
	ctx := context.Background()

	u, err := m.CreateUpdate(ctx, time.UnixMilli(1))
	if err != nil {
		t.Fatalf("create update: %v", err)
	}

	// Unregistered object.
	err = m.UpdateOwnData(ctx, u, "IssueComment", []mirror.OwnDataResult{{
		ID:         "ghost",
		Primitives: map[string]any{"body": "x"},
		Nodes:      map[string]*mirror.NodeResult{"author": nil},
	}})
	if !errors.Is(err, mirror.ErrUnknownObject) {
		t.Fatalf("error = %v, want ErrUnknownObject", err)
	}

	// Union typename.
	err = m.UpdateOwnData(ctx, u, "Actor", nil)
	if !errors.Is(err, mirror.ErrAmbiguousType) {
		t.Fatalf("error = %v, want ErrAmbiguousType", err)
	}

	// Unknown typename.
	err = m.UpdateOwnData(ctx, u, "Ghost", nil)
	if !errors.Is(err, mirror.ErrUnknownType) {
		t.Fatalf("error = %v, want ErrUnknownType", err)
	}

	// Missing primitive field.
	if err := m.RegisterObject(ctx, "IssueComment", "c1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	err = m.UpdateOwnData(ctx, u, "IssueComment", []mirror.OwnDataResult{{
		ID:         "c1",
		Primitives: map[string]any{},
		Nodes:      map[string]*mirror.NodeResult{"author": nil},
	}})
	if err == nil {
		t.Fatal("expected error for missing primitive field")
	}
}

func TestCreateUpdateDistinctIDs(t *testing.T) {
	m, _ := setupMirror(t)
	ctx := context.Background()

	ts := time.UnixMilli(42)
	a, err := m.CreateUpdate(ctx, ts)
	if err != nil {
		t.Fatalf("create update: %v", err)
	}
	b, err := m.CreateUpdate(ctx, ts)
	if err != nil {
		t.Fatalf("create update: %v", err)
	}
	if a == b {
		t.Errorf("duplicate timestamps produced the same update id %d", a)
	}
}
