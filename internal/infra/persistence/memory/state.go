package memory

import (
	"context"
	"fmt"

	"workspacemodel/pkg/domain"
)

// State is the portable form of a snapshot: every entity in diff order.
type State struct {
	Version  uint64          `json:"version"`
	Entities []domain.Entity `json:"entities"`
}

// State exports the snapshot.
func (s *Snapshot) State() State {
	st := State{Version: s.version, Entities: make([]domain.Entity, 0, s.Len())}
	for _, t := range s.Types() {
		for e := range s.EntitiesOfType(t) {
			st.Entities = append(st.Entities, e)
		}
	}
	return st
}

// Restore rebuilds a snapshot from exported state on a new lineage. Decoded
// identifiers are resolved against registry and reserved so fresh
// allocations never alias them. The restored snapshot must pass integrity
// validation.
func Restore(ctx context.Context, registry *domain.Registry, st State) (*Snapshot, domain.Result, error) {
	b := NewBuilder(Empty(registry), nil)
	for _, raw := range st.Entities {
		e, err := registry.CanonicalEntity(raw)
		if err != nil {
			return nil, domain.Result{}, fmt.Errorf("restore %s: %w", raw.ID(), err)
		}
		if err := b.put(e); err != nil {
			return nil, domain.Result{}, fmt.Errorf("restore %s: %w", e.ID(), err)
		}
	}
	res, err := b.Commit(ctx)
	if err != nil {
		return nil, res.Result, err
	}
	res.Snapshot.version = st.Version
	return res.Snapshot, res.Result, nil
}
