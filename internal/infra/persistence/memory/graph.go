package memory

import (
	"iter"
	"slices"

	"workspacemodel/pkg/domain"
)

// graph is the read side shared by snapshots and builders: a registry and a
// mapping from type to bucket.
type graph struct {
	registry *domain.Registry
	buckets  map[domain.EntityType]*bucket
}

func (g *graph) bucket(t domain.EntityType) *bucket {
	return g.buckets[t]
}

// Registry returns the registry the entities were typed against.
func (g *graph) Registry() *domain.Registry { return g.registry }

// Get returns the entity with the given id. Absence is not an error.
func (g *graph) Get(id domain.EntityID) (domain.Entity, bool) {
	rec, ok := g.bucket(id.Type).get(id.Instance)
	if !ok {
		return domain.Entity{}, false
	}
	return rec.entity, true
}

// Contains reports whether id is present.
func (g *graph) Contains(id domain.EntityID) bool {
	_, ok := g.bucket(id.Type).get(id.Instance)
	return ok
}

// EntitiesOfType yields the entities of t in insertion order. The sequence is
// lazy and may be stopped at any point.
func (g *graph) EntitiesOfType(t domain.EntityType) iter.Seq[domain.Entity] {
	b := g.bucket(t)
	return func(yield func(domain.Entity) bool) {
		if b == nil {
			return
		}
		for _, inst := range b.order {
			rec, ok := b.entities[inst]
			if !ok {
				continue
			}
			if !yield(rec.entity) {
				return
			}
		}
	}
}

// Count returns the number of entities of t.
func (g *graph) Count(t domain.EntityType) int {
	return g.bucket(t).len()
}

// Len returns the total number of entities.
func (g *graph) Len() int {
	n := 0
	for _, b := range g.buckets {
		n += b.len()
	}
	return n
}

// Types returns the types that currently hold entities, in registry order.
func (g *graph) Types() []domain.EntityType {
	out := make([]domain.EntityType, 0, len(g.buckets))
	for t, b := range g.buckets {
		if b.len() > 0 {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, compareTypes)
	return out
}

// ResolveReference resolves a reference field of id, dropping targets that
// are no longer present.
func (g *graph) ResolveReference(id domain.EntityID, field string) domain.Resolution {
	e, ok := g.Get(id)
	if !ok {
		return domain.Resolution{}
	}
	spec, ok := g.fieldSpec(id.Type, field)
	if !ok || !spec.IsReference() {
		return domain.Resolution{}
	}
	v, _ := e.Field(field)
	res := domain.Resolution{Cardinality: spec.Cardinality}
	for _, target := range domain.ReferencedIDs(v) {
		if g.Contains(target) {
			res.IDs = append(res.IDs, target)
		}
	}
	return res
}

// Referrers returns the edges pointing at id, including edges from weak
// references whose target has been removed.
func (g *graph) Referrers(id domain.EntityID) []domain.Edge {
	return slices.Clone(g.bucket(id.Type).edgesTo(id.Instance))
}

// Owner returns the strong edge owning id, if any.
func (g *graph) Owner(id domain.EntityID) (domain.Edge, bool) {
	for _, e := range g.bucket(id.Type).edgesTo(id.Instance) {
		if e.Ownership == domain.Strong && g.Contains(e.Owner) {
			return e, true
		}
	}
	return domain.Edge{}, false
}

// Children returns the present strong children of id, field by field in
// declaration order.
func (g *graph) Children(id domain.EntityID) []domain.Entity {
	schema, ok := g.registry.Schema(id.Type)
	if !ok {
		return nil
	}
	var out []domain.Entity
	for _, spec := range schema.Fields {
		if !spec.IsStrong() {
			continue
		}
		for _, child := range g.ResolveReference(id, spec.Name).IDs {
			if e, ok := g.Get(child); ok {
				out = append(out, e)
			}
		}
	}
	return out
}

func (g *graph) fieldSpec(t domain.EntityType, field string) (domain.FieldSpec, bool) {
	schema, ok := g.registry.Schema(t)
	if !ok {
		return domain.FieldSpec{}, false
	}
	return schema.Field(field)
}

// outgoing lists the edges declared by e's reference fields.
func (g *graph) outgoing(e domain.Entity) []domain.Edge {
	if e.IsZero() {
		return nil
	}
	schema, ok := g.registry.Schema(e.Type())
	if !ok {
		return nil
	}
	var edges []domain.Edge
	for _, spec := range schema.References() {
		v, ok := e.Field(spec.Name)
		if !ok {
			continue
		}
		for _, target := range domain.ReferencedIDs(v) {
			edges = append(edges, domain.Edge{Owner: e.ID(), Field: spec.Name, Target: target, Ownership: spec.Ownership})
		}
	}
	return edges
}

func compareTypes(a, b domain.EntityType) int {
	return domain.CompareIDs(domain.EntityID{Type: a}, domain.EntityID{Type: b})
}
