// Package kinds holds the locally implemented object kinds and resolves
// remote type names onto them.
//
// A remote type with no local implementation resolves to a metatype: a
// proxy tagged with the remote name whose behaviour is that of the nearest
// known ancestor kind. Metatypes are memoized per remote name.
package kinds

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrKindExists  = errors.New("kinds: kind already registered")
	ErrInvalidKind = errors.New("kinds: invalid kind")
)

// Capability is one behaviour a kind contributes to mirror objects.
type Capability uint32

const (
	CapEntity Capability = 1 << iota
	CapComponent
	CapAttribute
	CapOperator
	CapInputPlug
	CapOutputPlug
)

func (c Capability) String() string {
	names := []string{"entity", "component", "attribute", "operator", "input_plug", "output_plug"}
	var parts []string
	for i, name := range names {
		if c&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Basis ids of the built-in kinds.
const (
	KindObject     = "object"
	KindEntity     = "entity"
	KindComponent  = "component"
	KindAttribute  = "attribute"
	KindOperator   = "operator"
	KindInputPlug  = "input_plug"
	KindOutputPlug = "output_plug"
)

// Remote type names of the built-in kinds.
const (
	TypeObject     = "nap::Object"
	TypeEntity     = "nap::Entity"
	TypeComponent  = "nap::Component"
	TypeAttribute  = "nap::AttributeBase"
	TypeOperator   = "nap::Operator"
	TypeInputPlug  = "nap::InputPlugBase"
	TypeOutputPlug = "nap::OutputPlugBase"
)

// Kind is one locally implemented object kind.
type Kind struct {
	ID       string
	TypeName string
	Caps     Capability

	typ *Type
}

// Type returns the kind's own resolved type.
func (k *Kind) Type() *Type {
	return k.typ
}

// Type is the result of resolving a remote type name: either a kind's own
// type or a synthesized metatype backed by Basis.
type Type struct {
	Name        string
	Basis       *Kind
	Synthesized bool
}

func (t *Type) BasisID() string {
	return t.Basis.ID
}

func (t *Type) Has(c Capability) bool {
	return t.Basis.Caps&c == c
}

func (t *Type) String() string {
	if t.Synthesized {
		return fmt.Sprintf("%s(meta:%s)", t.Name, t.Basis.ID)
	}
	return t.Name
}

// Catalog lists the local kinds in registration order. The generic object
// kind is held apart: it is the fallback basis and never shadows a more
// specific ancestor during resolution.
type Catalog struct {
	object *Kind
	kinds  []*Kind
	byID   map[string]*Kind
}

// NewCatalog creates a catalog whose fallback kind is object.
func NewCatalog(object Kind) (*Catalog, error) {
	if err := validateKind(object); err != nil {
		return nil, err
	}
	k := newKind(object)
	return &Catalog{
		object: k,
		byID:   map[string]*Kind{k.ID: k},
	}, nil
}

// Default returns the built-in kind set in its canonical order.
func Default() *Catalog {
	c, err := NewCatalog(Kind{ID: KindObject, TypeName: TypeObject})
	if err != nil {
		panic(err)
	}
	builtin := []Kind{
		{ID: KindEntity, TypeName: TypeEntity, Caps: CapEntity},
		{ID: KindComponent, TypeName: TypeComponent, Caps: CapComponent},
		{ID: KindAttribute, TypeName: TypeAttribute, Caps: CapAttribute},
		{ID: KindOperator, TypeName: TypeOperator, Caps: CapOperator},
		{ID: KindInputPlug, TypeName: TypeInputPlug, Caps: CapInputPlug},
		{ID: KindOutputPlug, TypeName: TypeOutputPlug, Caps: CapOutputPlug},
	}
	for _, k := range builtin {
		if _, err := c.Register(k); err != nil {
			panic(err)
		}
	}
	return c
}

// Register appends k. Registration order breaks ties during resolution.
func (c *Catalog) Register(k Kind) (*Kind, error) {
	if err := validateKind(k); err != nil {
		return nil, err
	}
	if _, ok := c.byID[k.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrKindExists, k.ID)
	}
	for _, existing := range c.all() {
		if existing.TypeName == k.TypeName {
			return nil, fmt.Errorf("%w: type %s", ErrKindExists, k.TypeName)
		}
	}
	kind := newKind(k)
	c.kinds = append(c.kinds, kind)
	c.byID[kind.ID] = kind
	return kind, nil
}

// Object returns the generic fallback kind.
func (c *Catalog) Object() *Kind {
	return c.object
}

// Kinds returns the specialized kinds in registration order.
func (c *Catalog) Kinds() []*Kind {
	return append([]*Kind(nil), c.kinds...)
}

// Lookup finds a kind by basis id.
func (c *Catalog) Lookup(id string) (*Kind, bool) {
	k, ok := c.byID[id]
	return k, ok
}

func (c *Catalog) all() []*Kind {
	return append([]*Kind{c.object}, c.kinds...)
}

func newKind(k Kind) *Kind {
	kind := &Kind{ID: k.ID, TypeName: k.TypeName, Caps: k.Caps}
	kind.typ = &Type{Name: kind.TypeName, Basis: kind}
	return kind
}

func validateKind(k Kind) error {
	if strings.TrimSpace(k.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidKind)
	}
	if strings.TrimSpace(k.TypeName) == "" {
		return fmt.Errorf("%w: %s missing type name", ErrInvalidKind, k.ID)
	}
	return nil
}
