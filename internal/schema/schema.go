// Package schema defines the declarative description of a remote GraphQL
// object graph that the mirror maintains: object types with ID, primitive,
// node-link, and connection fields, plus unions over object types.
package schema

import (
	"fmt"
	"sort"
)

// Kind enumerates the kinds of fields an object type can declare.
type Kind int

const (
	// KindID is the single opaque-identifier field every object type has.
	KindID Kind = iota + 1
	// KindPrimitive is a scalar field stored in the type's data table.
	KindPrimitive
	// KindNode is a singular link to another object.
	KindNode
	// KindConnection is a paginated list of child objects.
	KindConnection
)

// Field describes one field of an object type.
type Field struct {
	kind   Kind
	target string // referenced typename for node and connection fields
}

// IDField returns the field holding the object's opaque remote identifier.
func IDField() Field {
	return Field{kind: KindID}
}

// Primitive returns a scalar field.
func Primitive() Field {
	return Field{kind: KindPrimitive}
}

// Node returns a singular link to an object of the given type.
func Node(target string) Field {
	return Field{kind: KindNode, target: target}
}

// Connection returns a paginated connection whose elements have the given
// type.
func Connection(element string) Field {
	return Field{kind: KindConnection, target: element}
}

// Kind reports the field's kind.
func (f Field) Kind() Kind {
	return f.kind
}

// Target reports the typename referenced by a node or connection field. It
// is empty for ID and primitive fields.
func (f Field) Target() string {
	return f.target
}

// Type is one type definition: either an object with fields or a union of
// object types. The zero value is not a valid type.
type Type struct {
	union   bool
	fields  map[string]Field
	members []string
}

// Object returns an object type definition with the given fields.
func Object(fields map[string]Field) Type {
	copied := make(map[string]Field, len(fields))
	for name, f := range fields {
		copied[name] = f
	}
	return Type{fields: copied}
}

// Union returns a union type definition over the given object typenames.
func Union(members ...string) Type {
	copied := make([]string, len(members))
	copy(copied, members)
	sort.Strings(copied)
	return Type{union: true, members: copied}
}

// IsUnion reports whether the type is a union.
func (t Type) IsUnion() bool {
	return t.union
}

// Members returns the union's member typenames in sorted order. It is nil
// for object types.
func (t Type) Members() []string {
	return t.members
}

// Field returns the named field of an object type.
func (t Type) Field(name string) (Field, bool) {
	f, ok := t.fields[name]
	return f, ok
}

// FieldNames returns all field names of an object type in sorted order.
func (t Type) FieldNames() []string {
	names := make([]string, 0, len(t.fields))
	for name := range t.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IDFieldName returns the name of the object type's ID field.
func (t Type) IDFieldName() string {
	return t.fieldNamesOfKind(KindID)[0]
}

// PrimitiveFieldNames returns the names of all primitive fields in sorted
// order.
func (t Type) PrimitiveFieldNames() []string {
	return t.fieldNamesOfKind(KindPrimitive)
}

// NodeFieldNames returns the names of all node-link fields in sorted order.
func (t Type) NodeFieldNames() []string {
	return t.fieldNamesOfKind(KindNode)
}

// ConnectionFieldNames returns the names of all connection fields in sorted
// order.
func (t Type) ConnectionFieldNames() []string {
	return t.fieldNamesOfKind(KindConnection)
}

func (t Type) fieldNamesOfKind(kind Kind) []string {
	var names []string
	for name, f := range t.fields {
		if f.kind == kind {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Schema is a validated, immutable set of type definitions.
type Schema struct {
	types map[string]Type
}

// New validates the given type definitions and returns a Schema. Every
// object must declare exactly one ID field, every node or connection field
// must reference a type defined in the same schema, and unions must be
// non-empty and reference only object types.
func New(types map[string]Type) (*Schema, error) {
	copied := make(map[string]Type, len(types))
	for name, t := range types {
		copied[name] = t
	}
	s := &Schema{types: copied}

	for _, typename := range s.TypeNames() {
		t := copied[typename]
		if t.union {
			if len(t.members) == 0 {
				return nil, fmt.Errorf("schema: union %q has no members", typename)
			}
			for _, member := range t.members {
				target, ok := copied[member]
				if !ok {
					return nil, fmt.Errorf("schema: union %q references unknown type %q", typename, member)
				}
				if target.union {
					return nil, fmt.Errorf("schema: union %q references non-object type %q", typename, member)
				}
			}
			continue
		}

		idFields := 0
		for _, name := range t.FieldNames() {
			f := t.fields[name]
			switch f.kind {
			case KindID:
				idFields++
			case KindPrimitive:
				// No cross-type reference to check.
			case KindNode, KindConnection:
				if _, ok := copied[f.target]; !ok {
					return nil, fmt.Errorf("schema: field %q of type %q references unknown type %q", name, typename, f.target)
				}
			default:
				return nil, fmt.Errorf("schema: field %q of type %q has invalid kind", name, typename)
			}
		}
		if idFields != 1 {
			return nil, fmt.Errorf("schema: type %q must have exactly one ID field, has %d", typename, idFields)
		}
	}

	return s, nil
}

// Type returns the named type definition.
func (s *Schema) Type(name string) (Type, bool) {
	t, ok := s.types[name]
	return t, ok
}

// TypeNames returns all typenames in sorted order.
func (s *Schema) TypeNames() []string {
	names := make([]string, 0, len(s.types))
	for name := range s.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
