// Package mirror models the local representation of remote graph nodes and
// builds them from server descriptions.
//
// Ownership runs strictly downward: a parent owns its ordered children, and a
// child refers back to its parent by handle only. Resolving that handle is
// the object registry's job.
package mirror

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danmuck/napmirror/internal/kinds"
	"github.com/danmuck/napmirror/internal/protocol"
)

// Object mirrors one remote node.
type Object struct {
	Handle   protocol.Handle
	TypeName string
	Name     string
	Type     *kinds.Type
	Fields   map[string]json.RawMessage

	// Attribute kind only.
	ValueType string
	Value     any

	parent   protocol.Handle
	children []*Object
}

func (o *Object) String() string {
	return fmt.Sprintf("%s(%s ptr=%s)", o.Name, o.TypeName, o.Handle)
}

// ParentHandle is the weak back-reference to the owning object.
func (o *Object) ParentHandle() protocol.Handle {
	return o.parent
}

// Children returns the owned children in insertion order.
func (o *Object) Children() []*Object {
	return append([]*Object(nil), o.children...)
}

func (o *Object) ChildCount() int {
	return len(o.children)
}

// Child returns the first child named name.
func (o *Object) Child(name string) (*Object, bool) {
	for _, c := range o.children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// AddChild appends child and points its back-reference at o.
func (o *Object) AddChild(child *Object) {
	child.parent = o.Handle
	o.children = append(o.children, child)
}

// ParentOf finds the object under o, o included, that owns child. It is
// the lookup of last resort for parents that carry no handle.
func (o *Object) ParentOf(child *Object) (*Object, bool) {
	var found *Object
	o.Walk(func(n *Object) bool {
		if found != nil {
			return false
		}
		for _, c := range n.children {
			if c == child {
				found = n
				return false
			}
		}
		return true
	})
	return found, found != nil
}

// RemoveChild detaches child by identity. It reports whether child was found.
func (o *Object) RemoveChild(child *Object) bool {
	for i, c := range o.children {
		if c != child {
			continue
		}
		o.children = append(o.children[:i], o.children[i+1:]...)
		child.parent = protocol.NoHandle
		return true
	}
	return false
}

func (o *Object) Is(c kinds.Capability) bool {
	return o.Type != nil && o.Type.Has(c)
}

func (o *Object) IsAttribute() bool {
	return o.Is(kinds.CapAttribute)
}

// SetValue coerces raw according to the attribute's value type and stores it.
func (o *Object) SetValue(raw string) error {
	v, err := protocol.CoerceValue(raw, o.ValueType)
	if err != nil {
		return fmt.Errorf("%s: %w", o, err)
	}
	o.Value = v
	return nil
}

// FormattedValue is the attribute value in wire form.
func (o *Object) FormattedValue() string {
	return protocol.FormatValue(o.Value)
}

// Walk visits o and its descendants depth first, parents before children.
// Returning false from fn skips that object's subtree.
func (o *Object) Walk(fn func(*Object) bool) {
	if !fn(o) {
		return
	}
	for _, c := range o.children {
		c.Walk(fn)
	}
}

// ResolvePath follows child names below o, eg. "/entity/component/attribute".
func (o *Object) ResolvePath(path string) (*Object, bool) {
	cur := o
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		next, ok := cur.Child(part)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}
