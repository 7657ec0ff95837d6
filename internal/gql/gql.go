// Package gql builds and prints GraphQL selection sets. It is purely
// syntactic: any legal combination of fields, arguments, and values renders
// to a valid query fragment, and no schema-aware validation happens here.
package gql

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Selection is one entry in a selection set: a field, possibly with
// arguments and a nested selection set.
type Selection struct {
	name     string
	args     []Arg
	children []Selection
}

// Field returns a selection of the named field with the given arguments and
// child selections.
func Field(name string, args []Arg, children ...Selection) Selection {
	return Selection{name: name, args: args, children: children}
}

// Arg is a named argument on a field.
type Arg struct {
	name  string
	value Value
}

// Argument returns a named argument with the given value.
func Argument(name string, value Value) Arg {
	return Arg{name: name, value: value}
}

// Value is an argument value: a literal scalar, an explicit null, or a
// reference to a query variable.
type Value struct {
	render string
}

// String returns a string literal value.
func String(v string) Value {
	// JSON string escaping is a superset of the GraphQL string grammar.
	b, _ := json.Marshal(v)
	return Value{render: string(b)}
}

// Int returns an integer literal value.
func Int(v int) Value {
	return Value{render: strconv.Itoa(v)}
}

// Bool returns a boolean literal value.
func Bool(v bool) Value {
	return Value{render: strconv.FormatBool(v)}
}

// Null returns an explicit null value.
func Null() Value {
	return Value{render: "null"}
}

// Variable returns a reference to the named query variable.
func Variable(name string) Value {
	return Value{render: "$" + name}
}

// Format renders the selections as an indented GraphQL fragment, one
// selection per line, nested sets indented by two spaces.
func Format(selections []Selection) string {
	var p printer
	p.printSelections(selections)
	return p.String()
}

// Query renders a complete query document containing the selections. The
// operation is anonymous when name is empty.
func Query(name string, selections ...Selection) string {
	var p printer
	p.WriteString("query")
	if name != "" {
		p.WriteString(" ")
		p.WriteString(name)
	}
	p.WriteString(" ")
	p.beginBlock()
	p.printBlockBody(selections)
	p.endBlock()
	p.WriteString("\n")
	return p.String()
}

type printer struct {
	strings.Builder
	indentLevel int
}

func (p *printer) beginBlock() {
	p.WriteString("{\n")
	p.indentLevel++
}

func (p *printer) endBlock() {
	p.indentLevel--
	p.writeIndent()
	p.WriteString("}")
}

func (p *printer) writeIndent() {
	p.WriteString(strings.Repeat("  ", p.indentLevel))
}

func (p *printer) printSelections(selections []Selection) {
	for i, sel := range selections {
		if i > 0 {
			p.WriteString("\n")
		}
		p.writeIndent()
		p.printSelection(sel)
	}
}

func (p *printer) printBlockBody(selections []Selection) {
	p.printSelections(selections)
	p.WriteString("\n")
}

func (p *printer) printSelection(sel Selection) {
	p.WriteString(sel.name)
	if len(sel.args) > 0 {
		p.WriteString("(")
		for i, arg := range sel.args {
			if i > 0 {
				p.WriteString(", ")
			}
			p.WriteString(arg.name)
			p.WriteString(": ")
			p.WriteString(arg.value.render)
		}
		p.WriteString(")")
	}
	if len(sel.children) > 0 {
		p.WriteString(" ")
		p.beginBlock()
		p.printBlockBody(sel.children)
		p.endBlock()
	}
}
