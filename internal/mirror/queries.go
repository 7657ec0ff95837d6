package mirror

import (
	"fmt"

	"github.com/johnwards/graphmirror/internal/gql"
	"github.com/johnwards/graphmirror/internal/schema"
)

// DefaultPageSize is the connection page size used when the caller passes a
// non-positive one.
const DefaultPageSize = 100

// QueryShallow returns the selection set `{ __typename id }`, sufficient to
// register any object referenced transitively by another response.
func (m *Mirror) QueryShallow() []gql.Selection {
	return []gql.Selection{
		gql.Field("__typename", nil),
		gql.Field("id", nil),
	}
}

// QueryConnection returns the selection fetching one page of the named
// connection field. The `after` argument is omitted when cursor is nil
// (never fetched) and included, even as an explicit null, when resuming
// from a known cursor.
func (m *Mirror) QueryConnection(fieldname string, cursor *Cursor, pageSize int) gql.Selection {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	args := []gql.Arg{gql.Argument("first", gql.Int(pageSize))}
	if cursor != nil {
		if cursor.Value != nil {
			args = append(args, gql.Argument("after", gql.String(*cursor.Value)))
		} else {
			args = append(args, gql.Argument("after", gql.Null()))
		}
	}
	return gql.Field(fieldname, args,
		gql.Field("totalCount", nil),
		gql.Field("pageInfo", nil,
			gql.Field("endCursor", nil),
			gql.Field("hasNextPage", nil),
		),
		gql.Field("nodes", nil, m.QueryShallow()...),
	)
}

// QueryOwnData returns the selection set fetching an object type's own
// data: its id, every primitive field, and every node link (shallow).
// Connection fields are fetched separately through QueryConnection. The
// typename must name a concrete object type.
func (m *Mirror) QueryOwnData(typename string) ([]gql.Selection, error) {
	typ, ok := m.schema.Type(typename)
	if !ok {
		return nil, fmt.Errorf("own-data query: %w: %q", ErrUnknownType, typename)
	}
	if typ.IsUnion() {
		return nil, fmt.Errorf("own-data query: %w: %q is a union and has no own data", ErrAmbiguousType, typename)
	}

	var sels []gql.Selection
	for _, name := range typ.FieldNames() {
		f, _ := typ.Field(name)
		switch f.Kind() {
		case schema.KindID, schema.KindPrimitive:
			sels = append(sels, gql.Field(name, nil))
		case schema.KindNode:
			sels = append(sels, gql.Field(name, nil, m.QueryShallow()...))
		case schema.KindConnection:
			// Paginated separately.
		}
	}
	return sels, nil
}
