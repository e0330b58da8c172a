package memory

import (
	"slices"

	"workspacemodel/pkg/domain"
)

// record boxes an entity so unchanged entities stay pointer-equal across
// snapshot generations.
type record struct {
	entity domain.Entity
}

// bucket holds every entity of one type plus the incoming edges whose target
// is of that type. Buckets reachable from a snapshot are never mutated; a
// builder clones a bucket the first time it touches it.
type bucket struct {
	typ      domain.EntityType
	entities map[uint64]*record
	// order lists instances ascending, which is also insertion order because
	// instance ids are allocated monotonically.
	order    []uint64
	incoming map[uint64][]domain.Edge
}

func newBucket(t domain.EntityType) *bucket {
	return &bucket{
		typ:      t,
		entities: make(map[uint64]*record),
		incoming: make(map[uint64][]domain.Edge),
	}
}

// clone copies the bucket's maps. Records and edge slices are shared; edge
// slices are replaced, never appended to in place.
func (b *bucket) clone() *bucket {
	cp := &bucket{
		typ:      b.typ,
		entities: make(map[uint64]*record, len(b.entities)),
		order:    slices.Clone(b.order),
		incoming: make(map[uint64][]domain.Edge, len(b.incoming)),
	}
	for k, v := range b.entities {
		cp.entities[k] = v
	}
	for k, v := range b.incoming {
		cp.incoming[k] = v
	}
	return cp
}

func (b *bucket) len() int {
	if b == nil {
		return 0
	}
	return len(b.order)
}

func (b *bucket) get(instance uint64) (*record, bool) {
	if b == nil {
		return nil, false
	}
	rec, ok := b.entities[instance]
	return rec, ok
}

func (b *bucket) put(rec *record) {
	inst := rec.entity.ID().Instance
	if _, exists := b.entities[inst]; !exists {
		if n := len(b.order); n == 0 || b.order[n-1] < inst {
			b.order = append(b.order, inst)
		} else {
			pos, _ := slices.BinarySearch(b.order, inst)
			b.order = slices.Insert(b.order, pos, inst)
		}
	}
	b.entities[inst] = rec
}

func (b *bucket) remove(instance uint64) {
	if _, ok := b.entities[instance]; !ok {
		return
	}
	delete(b.entities, instance)
	if pos, found := slices.BinarySearch(b.order, instance); found {
		b.order = slices.Delete(b.order, pos, pos+1)
	}
}

func (b *bucket) edgesTo(instance uint64) []domain.Edge {
	if b == nil {
		return nil
	}
	return b.incoming[instance]
}

func (b *bucket) addIncoming(target uint64, e domain.Edge) {
	cur := b.incoming[target]
	next := make([]domain.Edge, 0, len(cur)+1)
	next = append(next, cur...)
	b.incoming[target] = append(next, e)
}

func (b *bucket) removeIncoming(target uint64, e domain.Edge) {
	cur := b.incoming[target]
	idx := slices.Index(cur, e)
	if idx < 0 {
		return
	}
	if len(cur) == 1 {
		delete(b.incoming, target)
		return
	}
	b.incoming[target] = slices.Delete(slices.Clone(cur), idx, idx+1)
}
