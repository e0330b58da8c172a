package memory

import (
	"slices"

	"workspacemodel/pkg/domain"
)

// Diff computes the changes that turn from into to. Either side may be nil.
// Changes are grouped by type in registry order, then by ascending instance.
func Diff(from, to *Snapshot) domain.Diff {
	d := domain.Diff{From: from.versionOrZero(), To: to.versionOrZero()}
	if from == to {
		return d
	}
	for _, t := range unionTypes(from, to) {
		ob, nb := from.bucketOrNil(t), to.bucketOrNil(t)
		if ob == nb {
			continue
		}
		d.Changes = appendBucketDiff(d.Changes, ob, nb)
	}
	return d
}

// Equal reports whether both snapshots hold structurally equal entities.
func Equal(a, b *Snapshot) bool {
	return Diff(a, b).Empty()
}

func appendBucketDiff(out []domain.Change, ob, nb *bucket) []domain.Change {
	var oldOrder, newOrder []uint64
	if ob != nil {
		oldOrder = ob.order
	}
	if nb != nil {
		newOrder = nb.order
	}
	i, j := 0, 0
	for i < len(oldOrder) || j < len(newOrder) {
		switch {
		case j == len(newOrder) || (i < len(oldOrder) && oldOrder[i] < newOrder[j]):
			rec := ob.entities[oldOrder[i]]
			out = append(out, domain.Change{Action: domain.ActionRemoved, ID: rec.entity.ID(), Before: rec.entity})
			i++
		case i == len(oldOrder) || newOrder[j] < oldOrder[i]:
			rec := nb.entities[newOrder[j]]
			out = append(out, domain.Change{Action: domain.ActionAdded, ID: rec.entity.ID(), After: rec.entity})
			j++
		default:
			before, after := ob.entities[oldOrder[i]], nb.entities[newOrder[j]]
			if before != after && !before.entity.Equal(after.entity) {
				out = append(out, domain.Change{
					Action: domain.ActionChanged,
					ID:     after.entity.ID(),
					Before: before.entity,
					After:  after.entity,
				})
			}
			i++
			j++
		}
	}
	return out
}

func unionTypes(a, b *Snapshot) []domain.EntityType {
	seen := make(map[domain.EntityType]struct{})
	var out []domain.EntityType
	for _, s := range []*Snapshot{a, b} {
		if s == nil {
			continue
		}
		for t := range s.buckets {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	slices.SortFunc(out, compareTypes)
	return out
}

func (s *Snapshot) versionOrZero() uint64 {
	if s == nil {
		return 0
	}
	return s.version
}

func (s *Snapshot) bucketOrNil(t domain.EntityType) *bucket {
	if s == nil {
		return nil
	}
	return s.buckets[t]
}
