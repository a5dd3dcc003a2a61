package mirror

import (
	"fmt"
	"strings"

	"github.com/danmuck/napmirror/internal/kinds"
	"github.com/danmuck/napmirror/internal/protocol"
)

// Factory builds mirror objects from descriptions. It never registers what
// it builds; making objects discoverable is the caller's job.
type Factory struct {
	resolver  *kinds.Resolver
	attribute *kinds.Type
}

func NewFactory(catalog *kinds.Catalog, resolver *kinds.Resolver) (*Factory, error) {
	attr, ok := catalog.Lookup(kinds.KindAttribute)
	if !ok {
		return nil, fmt.Errorf("%w: catalog has no %s kind", kinds.ErrInvalidKind, kinds.KindAttribute)
	}
	return &Factory{resolver: resolver, attribute: attr.Type()}, nil
}

// BuildJSON parses data and builds the described subtree.
func (f *Factory) BuildJSON(data []byte) (*Object, error) {
	desc, err := protocol.ParseDescription(data)
	if err != nil {
		return nil, err
	}
	return f.Build(desc)
}

// Build constructs desc and its children. A description carrying a value
// type is always an attribute; everything else resolves through the kind
// resolver, metatypes included.
func (f *Factory) Build(desc protocol.Description) (*Object, error) {
	if strings.TrimSpace(desc.Type) == "" {
		return nil, fmt.Errorf("%w: description missing %s (ptr=%s)", protocol.ErrMalformedPayload, protocol.FieldType, desc.Ptr)
	}
	obj := &Object{
		Handle:   desc.Ptr,
		TypeName: desc.Type,
		Name:     desc.Name,
		Fields:   desc.Fields,
	}
	if desc.HasValueType {
		obj.Type = f.attribute
		obj.ValueType = desc.ValueType
		if err := obj.SetValue(desc.Value); err != nil {
			return nil, err
		}
	} else {
		obj.Type = f.resolver.Resolve(desc.Type)
	}

	for _, childDesc := range desc.Children {
		child, err := f.Build(childDesc)
		if err != nil {
			return nil, err
		}
		obj.AddChild(child)
	}
	return obj, nil
}
