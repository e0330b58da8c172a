package memory

import (
	"context"
	"fmt"

	"workspacemodel/pkg/domain"
)

// Replay applies diff to base and commits the result. Removals do not
// cascade; additions keep their ids.
func Replay(ctx context.Context, base *Snapshot, diff domain.Diff) (*Snapshot, error) {
	b := NewBuilder(base, nil)
	if err := applyDiff(b, diff); err != nil {
		return nil, err
	}
	res, err := b.Commit(ctx)
	if err != nil {
		return nil, err
	}
	return res.Snapshot, nil
}

func applyDiff(b *Builder, diff domain.Diff) error {
	removed := diff.Filter(domain.ActionRemoved)
	doomed := make(map[domain.EntityID]struct{}, len(removed))
	for _, c := range removed {
		doomed[c.ID] = struct{}{}
	}
	for _, c := range removed {
		if !b.Contains(c.ID) {
			return &domain.NotFoundError{ID: c.ID}
		}
		b.drop(c.ID, doomed)
	}
	for _, c := range diff.Filter(domain.ActionAdded) {
		if err := b.put(c.After); err != nil {
			return fmt.Errorf("replay add %s: %w", c.ID, err)
		}
	}
	for _, c := range diff.Filter(domain.ActionChanged) {
		current, ok := b.Get(c.ID)
		if !ok {
			return &domain.NotFoundError{ID: c.ID}
		}
		if err := b.registry.CheckFields(c.ID.Type, c.After.Fields()); err != nil {
			return fmt.Errorf("replay change %s: %w", c.ID, err)
		}
		if !current.Equal(c.After) {
			b.replace(current, c.After)
		}
	}
	return nil
}
