package domain

import (
	"context"

	"github.com/google/uuid"
)

// SnapshotView is the read surface of an immutable snapshot.
type SnapshotView interface {
	RuleView
	Version() uint64
	Lineage() uuid.UUID
	Len() int
}

// Transaction exposes the mutation operations of a builder session.
type Transaction interface {
	RuleView
	AddEntity(t EntityType, source EntitySource, fields Fields) (Entity, error)
	ModifyEntity(id EntityID, mutator func(*MutableEntity) error) (Entity, error)
	RemoveEntity(id EntityID) ([]EntityID, error)
	AddEdge(owner EntityID, field string, target EntityID) error
	RemoveEdge(owner EntityID, field string, target EntityID) error
	Changes() []Change
}

// Outcome summarises a published commit.
type Outcome struct {
	Version uint64
	Diff    Diff
	Result  Result
}

// PersistentStore is the abstraction shared by the in-memory store and its
// durable mirrors.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Outcome, error)
	View(ctx context.Context, fn func(SnapshotView) error) error
	Registry() *Registry
	RulesEngine() *RulesEngine
}
