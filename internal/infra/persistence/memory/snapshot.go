package memory

import (
	"github.com/google/uuid"

	"workspacemodel/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.SnapshotView = (*Snapshot)(nil)

// Snapshot is an immutable, versioned view of every entity. It is safe for
// concurrent readers without locking and stays valid for as long as it is
// referenced, regardless of later commits.
type Snapshot struct {
	graph
	version uint64
	lineage uuid.UUID
}

// Empty returns the root snapshot of a new lineage.
func Empty(registry *domain.Registry) *Snapshot {
	if registry == nil {
		registry = domain.NewRegistry()
	}
	return &Snapshot{
		graph:   graph{registry: registry, buckets: make(map[domain.EntityType]*bucket)},
		lineage: uuid.New(),
	}
}

// Version returns the monotonic snapshot version.
func (s *Snapshot) Version() uint64 { return s.version }

// Lineage identifies the chain of snapshots derived from one root. Snapshots
// of the same lineage share unchanged buckets.
func (s *Snapshot) Lineage() uuid.UUID { return s.lineage }

// Verify audits every invariant over the whole snapshot.
func (s *Snapshot) Verify() domain.Result {
	var ids []domain.EntityID
	for _, t := range s.Types() {
		for e := range s.EntitiesOfType(t) {
			ids = append(ids, e.ID())
		}
	}
	return checkIntegrity(&s.graph, ids)
}

// SharesBucket reports whether both snapshots hold the same bucket for t.
func (s *Snapshot) SharesBucket(other *Snapshot, t domain.EntityType) bool {
	if s == nil || other == nil {
		return false
	}
	a, b := s.bucket(t), other.bucket(t)
	return a != nil && a == b
}
