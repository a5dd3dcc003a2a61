package kinds

import (
	"github.com/rs/zerolog/log"
)

// BaseLister answers the base types of a remote type name.
type BaseLister interface {
	BaseTypesOf(name string) []string
}

// Resolver maps remote type names to local types, synthesizing and caching
// metatypes for names with no local implementation. The cache lives as long
// as the resolver, so it survives type catalog replacement.
type Resolver struct {
	kinds     *Catalog
	types     BaseLister
	metatypes map[string]*Type
}

func NewResolver(kinds *Catalog, types BaseLister) *Resolver {
	return &Resolver{
		kinds:     kinds,
		types:     types,
		metatypes: make(map[string]*Type),
	}
}

// Resolve never fails. Resolution order:
//  1. a kind advertising exactly remote
//  2. a metatype backed by the first kind, in registration order, whose
//     type name appears among remote's base types
//  3. a metatype backed by the generic object kind
func (r *Resolver) Resolve(remote string) *Type {
	if remote == r.kinds.Object().TypeName {
		return r.kinds.Object().Type()
	}
	for _, k := range r.kinds.Kinds() {
		if k.TypeName == remote {
			return k.Type()
		}
	}
	if t, ok := r.metatypes[remote]; ok {
		return t
	}

	basis := r.kinds.Object()
	bases := r.types.BaseTypesOf(remote)
	for _, k := range r.kinds.Kinds() {
		if contains(bases, k.TypeName) {
			basis = k
			break
		}
	}
	return r.metatype(remote, basis)
}

// Metatypes reports how many metatypes have been synthesized.
func (r *Resolver) Metatypes() int {
	return len(r.metatypes)
}

func (r *Resolver) metatype(remote string, basis *Kind) *Type {
	t := &Type{Name: remote, Basis: basis, Synthesized: true}
	r.metatypes[remote] = t
	log.Debug().
		Str("type", remote).
		Str("basis", basis.ID).
		Msg("kinds: created metatype")
	return t
}

func contains(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}
