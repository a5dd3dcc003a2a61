package mirror

import "github.com/danmuck/napmirror/internal/protocol"

// Snapshot is a detached, serializable view of a subtree.
type Snapshot struct {
	Ptr       protocol.Handle `json:"ptr" yaml:"ptr"`
	Name      string          `json:"name" yaml:"name"`
	Type      string          `json:"type" yaml:"type"`
	Basis     string          `json:"basis" yaml:"basis"`
	Metatype  bool            `json:"metatype,omitempty" yaml:"metatype,omitempty"`
	ValueType string          `json:"valueType,omitempty" yaml:"valueType,omitempty"`
	Value     string          `json:"value,omitempty" yaml:"value,omitempty"`
	Children  []Snapshot      `json:"children,omitempty" yaml:"children,omitempty"`
}

func (o *Object) Snapshot() Snapshot {
	s := Snapshot{
		Ptr:  o.Handle,
		Name: o.Name,
		Type: o.TypeName,
	}
	if o.Type != nil {
		s.Basis = o.Type.BasisID()
		s.Metatype = o.Type.Synthesized
	}
	if o.IsAttribute() {
		s.ValueType = o.ValueType
		s.Value = o.FormattedValue()
	}
	for _, c := range o.children {
		s.Children = append(s.Children, c.Snapshot())
	}
	return s
}
