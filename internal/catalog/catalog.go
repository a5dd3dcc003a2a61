// Package catalog stores the type descriptors the server advertises and
// answers base/sub-type queries over them.
//
// The catalog is replaced wholesale on every module-info load; descriptors
// are never merged incrementally.
package catalog

import (
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/danmuck/napmirror/internal/protocol"
)

// Descriptor is one remotely advertised type.
type Descriptor struct {
	Name         string   `json:"name" yaml:"name"`
	BaseTypes    []string `json:"baseTypes" yaml:"baseTypes"`
	Instantiable bool     `json:"instantiable" yaml:"instantiable"`
}

// Registry holds the current descriptor set in server-advertised order.
type Registry struct {
	types []Descriptor
	index map[string]int
}

func New() *Registry {
	return &Registry{index: make(map[string]int)}
}

// ParseDescriptors decodes the "types" list of a module-info payload.
func ParseDescriptors(raw json.RawMessage) ([]Descriptor, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: missing %s", protocol.ErrMalformedPayload, protocol.FieldTypes)
	}
	var list []Descriptor
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", protocol.ErrMalformedPayload, protocol.FieldTypes, err)
	}
	for i, desc := range list {
		if strings.TrimSpace(desc.Name) == "" {
			return nil, fmt.Errorf("%w: %s[%d] missing name", protocol.ErrMalformedPayload, protocol.FieldTypes, i)
		}
	}
	return list, nil
}

// ReplaceAll discards the previous set and stores descs.
func (r *Registry) ReplaceAll(descs []Descriptor) {
	types := make([]Descriptor, len(descs))
	index := make(map[string]int, len(descs))
	for i, desc := range descs {
		desc.BaseTypes = append([]string(nil), desc.BaseTypes...)
		types[i] = desc
		if _, dup := index[desc.Name]; !dup {
			index[desc.Name] = i
		}
	}
	r.types = types
	r.index = index
}

func (r *Registry) Len() int {
	return len(r.types)
}

// Types returns a copy of the stored descriptors in storage order.
func (r *Registry) Types() []Descriptor {
	out := make([]Descriptor, len(r.types))
	for i, desc := range r.types {
		desc.BaseTypes = append([]string(nil), desc.BaseTypes...)
		out[i] = desc
	}
	return out
}

func (r *Registry) Lookup(name string) (Descriptor, bool) {
	i, ok := r.index[name]
	if !ok {
		return Descriptor{}, false
	}
	return r.types[i], true
}

// IndexOf returns the storage position of name. An empty name maps to 0.
func (r *Registry) IndexOf(name string) (int, bool) {
	if name == "" {
		return 0, true
	}
	i, ok := r.index[name]
	return i, ok
}

// BaseTypesOf returns the stored base list for name, or an empty list when
// name is unknown. Dangling base names are returned as-is.
func (r *Registry) BaseTypesOf(name string) []string {
	i, ok := r.index[name]
	if !ok {
		return []string{}
	}
	return append([]string{}, r.types[i].BaseTypes...)
}

// SubTypesOf yields, in storage order, every descriptor listing base among
// its base types. Each iteration reads the current storage, so the sequence
// can be restarted and observes later replacements.
func (r *Registry) SubTypesOf(base string, instantiableOnly bool) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, desc := range r.types {
			if !containsName(desc.BaseTypes, base) {
				continue
			}
			if instantiableOnly && !desc.Instantiable {
				continue
			}
			if !yield(desc.Name) {
				return
			}
		}
	}
}

func containsName(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}
