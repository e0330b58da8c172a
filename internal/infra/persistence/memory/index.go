package memory

import (
	"slices"

	"workspacemodel/pkg/domain"
)

// reindex moves the incoming-edge entries of the touched target buckets from
// the edges declared by before to those declared by after. Either side may be
// the zero entity. Endpoints of every changed edge are marked dirty.
func (b *Builder) reindex(before, after domain.Entity) {
	oldEdges := b.outgoing(before)
	newEdges := b.outgoing(after)
	for _, e := range oldEdges {
		if slices.Contains(newEdges, e) {
			continue
		}
		b.touch(e.Target.Type).removeIncoming(e.Target.Instance, e)
		b.markDirty(e.Target)
		b.markDirty(e.Owner)
	}
	for _, e := range newEdges {
		if slices.Contains(oldEdges, e) {
			continue
		}
		b.touch(e.Target.Type).addIncoming(e.Target.Instance, e)
		b.markDirty(e.Target)
		b.markDirty(e.Owner)
	}
}

// AddEdge points owner's reference field at target. One-cardinality fields
// are replaced; list fields gain target at the end unless already present.
func (b *Builder) AddEdge(owner domain.EntityID, field string, target domain.EntityID) error {
	spec, err := b.referenceField(owner, field, "add edge")
	if err != nil {
		return err
	}
	_, err = b.ModifyEntity(owner, func(m *domain.MutableEntity) error {
		if !spec.Cardinality.Many() {
			m.Set(field, domain.Ref(target))
			return nil
		}
		cur, _ := m.Get(field)
		ids := domain.ReferencedIDs(cur)
		if slices.Contains(ids, target) {
			return nil
		}
		m.Set(field, domain.Refs(append(ids, target)))
		return nil
	})
	return err
}

// RemoveEdge drops target from owner's reference field. Removing an edge that
// does not exist is a no-op.
func (b *Builder) RemoveEdge(owner domain.EntityID, field string, target domain.EntityID) error {
	spec, err := b.referenceField(owner, field, "remove edge")
	if err != nil {
		return err
	}
	_, err = b.ModifyEntity(owner, func(m *domain.MutableEntity) error {
		cur, ok := m.Get(field)
		if !ok {
			return nil
		}
		ids := domain.ReferencedIDs(cur)
		if !slices.Contains(ids, target) {
			return nil
		}
		if !spec.Cardinality.Many() {
			m.Unset(field)
			return nil
		}
		setRefs(m, field, slices.DeleteFunc(ids, func(id domain.EntityID) bool { return id == target }))
		return nil
	})
	return err
}

func (b *Builder) referenceField(owner domain.EntityID, field, op string) (domain.FieldSpec, error) {
	if err := b.checkOpen(op); err != nil {
		return domain.FieldSpec{}, err
	}
	if !b.Contains(owner) {
		return domain.FieldSpec{}, &domain.NotFoundError{ID: owner}
	}
	spec, ok := b.fieldSpec(owner.Type, field)
	if !ok || !spec.IsReference() {
		return domain.FieldSpec{}, &domain.FieldError{Type: owner.Type, Field: field, Reason: "not a reference field"}
	}
	return spec, nil
}

// setRefs stores a reference list, unsetting the field when it is empty so
// that adding then removing an edge restores the original entity.
func setRefs(m *domain.MutableEntity, field string, ids []domain.EntityID) {
	if len(ids) == 0 {
		m.Unset(field)
		return
	}
	m.Set(field, domain.Refs(ids))
}
