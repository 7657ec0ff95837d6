package schema

import (
	"encoding/json"
	"fmt"
)

// The JSON form is canonical: encoding/json emits map keys in sorted order,
// so two equal schemas always serialize to the same bytes. The mirror relies
// on this to fingerprint the store.

type fieldJSON struct {
	Type    string   `json:"type"`
	Target  string   `json:"target,omitempty"`
	Members []string `json:"members,omitempty"`
}

// MarshalJSON encodes the field as a tagged object.
func (f Field) MarshalJSON() ([]byte, error) {
	switch f.kind {
	case KindID:
		return json.Marshal(fieldJSON{Type: "ID"})
	case KindPrimitive:
		return json.Marshal(fieldJSON{Type: "PRIMITIVE"})
	case KindNode:
		return json.Marshal(fieldJSON{Type: "NODE", Target: f.target})
	case KindConnection:
		return json.Marshal(fieldJSON{Type: "CONNECTION", Target: f.target})
	}
	return nil, fmt.Errorf("schema: cannot marshal field of invalid kind")
}

// UnmarshalJSON decodes a tagged field object.
func (f *Field) UnmarshalJSON(data []byte) error {
	var raw fieldJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case "ID":
		*f = IDField()
	case "PRIMITIVE":
		*f = Primitive()
	case "NODE":
		if raw.Target == "" {
			return fmt.Errorf("schema: NODE field missing target")
		}
		*f = Node(raw.Target)
	case "CONNECTION":
		if raw.Target == "" {
			return fmt.Errorf("schema: CONNECTION field missing target")
		}
		*f = Connection(raw.Target)
	default:
		return fmt.Errorf("schema: unknown field type %q", raw.Type)
	}
	return nil
}

type typeJSON struct {
	Type    string           `json:"type"`
	Fields  map[string]Field `json:"fields,omitempty"`
	Members []string         `json:"members,omitempty"`
}

// MarshalJSON encodes the type as a tagged object.
func (t Type) MarshalJSON() ([]byte, error) {
	if t.union {
		return json.Marshal(typeJSON{Type: "UNION", Members: t.members})
	}
	return json.Marshal(typeJSON{Type: "OBJECT", Fields: t.fields})
}

// UnmarshalJSON decodes a tagged type object.
func (t *Type) UnmarshalJSON(data []byte) error {
	var raw typeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case "OBJECT":
		*t = Object(raw.Fields)
	case "UNION":
		*t = Union(raw.Members...)
	default:
		return fmt.Errorf("schema: unknown type kind %q", raw.Type)
	}
	return nil
}

// MarshalJSON encodes the schema as a map from typename to type definition.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.types)
}

// FromJSON parses and validates a schema from its JSON form.
func FromJSON(data []byte) (*Schema, error) {
	var types map[string]Type
	if err := json.Unmarshal(data, &types); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return New(types)
}
