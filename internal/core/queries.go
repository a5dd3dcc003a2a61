package core

import (
	"encoding/json"
	"iter"

	"github.com/danmuck/napmirror/internal/catalog"
	"github.com/danmuck/napmirror/internal/kinds"
	"github.com/danmuck/napmirror/internal/mirror"
	"github.com/danmuck/napmirror/internal/protocol"
)

// Root is the top of the loaded tree, or nil before the first tree load.
func (c *Core) Root() *mirror.Object {
	return c.root
}

func (c *Core) FindObject(h protocol.Handle) (*mirror.Object, bool) {
	return c.objects.Get(h)
}

// Objects is the number of registered mirror objects.
func (c *Core) Objects() int {
	return c.objects.Len()
}

// ResolvePath finds an object by name path below the root, eg. "/entity/component".
func (c *Core) ResolvePath(path string) (*mirror.Object, bool) {
	if c.root == nil {
		return nil, false
	}
	return c.root.ResolvePath(path)
}

// ParentOf follows obj's back-reference through the registry. A parent
// built without a handle is found by searching down from the root.
func (c *Core) ParentOf(obj *mirror.Object) (*mirror.Object, bool) {
	if obj == nil {
		return nil, false
	}
	if h := obj.ParentHandle(); h != protocol.NoHandle {
		if parent, ok := c.objects.Get(h); ok {
			return parent, true
		}
	}
	if c.root == nil || c.root == obj {
		return nil, false
	}
	return c.root.ParentOf(obj)
}

func (c *Core) Types() []catalog.Descriptor {
	return c.types.Types()
}

// TypeIndex is the position of name in the advertised catalog. The empty
// name maps to 0.
func (c *Core) TypeIndex(name string) (int, bool) {
	return c.types.IndexOf(name)
}

func (c *Core) BaseTypes(name string) []string {
	return c.types.BaseTypesOf(name)
}

func (c *Core) SubTypes(base string, instantiableOnly bool) iter.Seq[string] {
	return c.types.SubTypesOf(base, instantiableOnly)
}

// ComponentTypes, OperatorTypes and DataTypes list the instantiable
// subtypes of the matching built-in kinds.
func (c *Core) ComponentTypes() iter.Seq[string] {
	return c.kindSubTypes(kinds.KindComponent)
}

func (c *Core) OperatorTypes() iter.Seq[string] {
	return c.kindSubTypes(kinds.KindOperator)
}

func (c *Core) DataTypes() iter.Seq[string] {
	return c.kindSubTypes(kinds.KindAttribute)
}

// ModuleInfo is the last module-info payload, keyed by field.
func (c *Core) ModuleInfo() map[string]json.RawMessage {
	return c.moduleInfo
}

// Resolve maps a remote type name to its local type.
func (c *Core) Resolve(typeName string) *kinds.Type {
	return c.resolver.Resolve(typeName)
}

func (c *Core) kindSubTypes(id string) iter.Seq[string] {
	k, ok := c.kinds.Lookup(id)
	if !ok {
		return func(func(string) bool) {}
	}
	return c.types.SubTypesOf(k.TypeName, true)
}
