package memory

import (
	"context"
	"fmt"
	"maps"

	"workspacemodel/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Transaction = (*Builder)(nil)

// Builder is a single-writer copy-on-write session over one base snapshot.
// It is not safe for concurrent use.
type Builder struct {
	graph
	base    *Snapshot
	engine  *domain.RulesEngine
	state   domain.BuilderState
	owned   map[domain.EntityType]bool
	dirty   map[domain.EntityID]struct{}
	changes []domain.Change
}

// CommitResult is the outcome of a successful commit.
type CommitResult struct {
	Snapshot *Snapshot
	Diff     domain.Diff
	// Result carries the non-blocking violations, such as dangling weak
	// references.
	Result domain.Result
}

// NewBuilder opens a session on base. engine may be nil; the built-in
// integrity checks always run.
func NewBuilder(base *Snapshot, engine *domain.RulesEngine) *Builder {
	if base == nil {
		base = Empty(nil)
	}
	return &Builder{
		graph:  graph{registry: base.registry, buckets: maps.Clone(base.buckets)},
		base:   base,
		engine: engine,
		state:  domain.BuilderOpen,
		owned:  make(map[domain.EntityType]bool),
		dirty:  make(map[domain.EntityID]struct{}),
	}
}

// Base returns the snapshot the session started from.
func (b *Builder) Base() *Snapshot { return b.base }

// State returns the lifecycle state.
func (b *Builder) State() domain.BuilderState { return b.state }

// Changes returns the operation log in application order.
func (b *Builder) Changes() []domain.Change {
	return append([]domain.Change(nil), b.changes...)
}

func (b *Builder) checkOpen(op string) error {
	if b.state != domain.BuilderOpen {
		return &domain.IllegalStateError{Op: op, State: b.state}
	}
	return nil
}

// touch returns a bucket this builder may mutate, cloning the shared one on
// first use.
func (b *Builder) touch(t domain.EntityType) *bucket {
	if b.owned[t] {
		return b.buckets[t]
	}
	var nb *bucket
	if cur := b.buckets[t]; cur != nil {
		nb = cur.clone()
	} else {
		nb = newBucket(t)
	}
	b.buckets[t] = nb
	b.owned[t] = true
	return nb
}

func (b *Builder) markDirty(id domain.EntityID) {
	b.dirty[id] = struct{}{}
}

func (b *Builder) record(c domain.Change) {
	b.changes = append(b.changes, c)
}

// AddEntity creates an entity with a freshly allocated id.
func (b *Builder) AddEntity(t domain.EntityType, source domain.EntitySource, fields domain.Fields) (domain.Entity, error) {
	if err := b.checkOpen("add entity"); err != nil {
		return domain.Entity{}, err
	}
	if source.IsZero() {
		return domain.Entity{}, &domain.FieldError{Type: t, Field: "entitySource", Reason: "entity source required"}
	}
	if err := b.registry.CheckFields(t, fields); err != nil {
		return domain.Entity{}, err
	}
	id, err := b.registry.AllocateID(t)
	if err != nil {
		return domain.Entity{}, err
	}
	e := domain.NewEntity(id, source, fields)
	b.insert(e)
	return e, nil
}

// put stores an entity under its existing id, reserving the id in the
// registry. Used to restore exported state and to replay diffs.
func (b *Builder) put(e domain.Entity) error {
	if err := b.checkOpen("put entity"); err != nil {
		return err
	}
	if b.Contains(e.ID()) {
		return fmt.Errorf("entity %s already exists", e.ID())
	}
	if e.Source().IsZero() {
		return &domain.FieldError{Type: e.Type(), Field: "entitySource", Reason: "entity source required"}
	}
	if err := b.registry.CheckFields(e.Type(), e.Fields()); err != nil {
		return err
	}
	if err := b.registry.Reserve(e.ID()); err != nil {
		return err
	}
	b.insert(e)
	return nil
}

func (b *Builder) insert(e domain.Entity) {
	b.touch(e.Type()).put(&record{entity: e})
	b.reindex(domain.Entity{}, e)
	b.markDirty(e.ID())
	b.record(domain.Change{Action: domain.ActionAdded, ID: e.ID(), After: e})
}

// ModifyEntity applies mutator to a working copy of the entity and records
// the result. Later modifications of the same id overwrite earlier ones. A
// mutator error discards that modification only.
func (b *Builder) ModifyEntity(id domain.EntityID, mutator func(*domain.MutableEntity) error) (domain.Entity, error) {
	if err := b.checkOpen("modify entity"); err != nil {
		return domain.Entity{}, err
	}
	current, ok := b.Get(id)
	if !ok {
		return domain.Entity{}, &domain.NotFoundError{ID: id}
	}
	working := current.Mutable()
	if err := mutator(working); err != nil {
		return domain.Entity{}, err
	}
	if working.Source.IsZero() {
		return domain.Entity{}, &domain.FieldError{Type: id.Type, Field: "entitySource", Reason: "entity source required"}
	}
	next := working.Entity()
	if err := b.registry.CheckFields(id.Type, next.Fields()); err != nil {
		return domain.Entity{}, err
	}
	if next.Equal(current) {
		return current, nil
	}
	b.replace(current, next)
	return next, nil
}

func (b *Builder) replace(current, next domain.Entity) {
	b.touch(next.Type()).put(&record{entity: next})
	b.reindex(current, next)
	b.markDirty(next.ID())
	b.record(domain.Change{Action: domain.ActionChanged, ID: next.ID(), Before: current, After: next})
}

// RemoveEntity removes id and, transitively, every strong child. Removed
// children are stripped from surviving strong owners; weak references to any
// removed entity are left dangling. The removed ids are returned root first.
func (b *Builder) RemoveEntity(id domain.EntityID) ([]domain.EntityID, error) {
	if err := b.checkOpen("remove entity"); err != nil {
		return nil, err
	}
	if !b.Contains(id) {
		return nil, &domain.NotFoundError{ID: id}
	}
	doomed := b.subtree(id)
	set := make(map[domain.EntityID]struct{}, len(doomed))
	for _, d := range doomed {
		set[d] = struct{}{}
	}
	for _, d := range doomed {
		b.drop(d, set)
	}
	return doomed, nil
}

// subtree lists id and its strong descendants in pre-order. Cycles created
// inside the session are tolerated.
func (b *Builder) subtree(id domain.EntityID) []domain.EntityID {
	seen := map[domain.EntityID]struct{}{id: {}}
	out := []domain.EntityID{id}
	for i := 0; i < len(out); i++ {
		for _, child := range b.Children(out[i]) {
			if _, ok := seen[child.ID()]; ok {
				continue
			}
			seen[child.ID()] = struct{}{}
			out = append(out, child.ID())
		}
	}
	return out
}

// drop removes a single entity without cascading. Strong owners outside
// doomed lose the edge to it.
func (b *Builder) drop(id domain.EntityID, doomed map[domain.EntityID]struct{}) {
	rec, ok := b.bucket(id.Type).get(id.Instance)
	if !ok {
		return
	}
	for _, e := range b.Referrers(id) {
		if _, gone := doomed[e.Owner]; gone {
			continue
		}
		if e.Ownership == domain.Strong {
			b.stripEdge(e)
			continue
		}
		b.markDirty(e.Owner)
	}
	b.reindex(rec.entity, domain.Entity{})
	b.touch(id.Type).remove(id.Instance)
	delete(b.dirty, id)
	b.record(domain.Change{Action: domain.ActionRemoved, ID: id, Before: rec.entity})
}

func (b *Builder) stripEdge(e domain.Edge) {
	owner, ok := b.Get(e.Owner)
	if !ok {
		return
	}
	working := owner.Mutable()
	cur, ok := working.Get(e.Field)
	if !ok {
		return
	}
	switch v := cur.(type) {
	case domain.Ref:
		if v.ID() == e.Target {
			working.Unset(e.Field)
		}
	case domain.Refs:
		kept := make([]domain.EntityID, 0, len(v))
		for _, id := range v {
			if id != e.Target {
				kept = append(kept, id)
			}
		}
		setRefs(working, e.Field, kept)
	}
	if next := working.Entity(); !next.Equal(owner) {
		b.replace(owner, next)
	}
}

// Abandon closes the session without producing a snapshot.
func (b *Builder) Abandon() error {
	if err := b.checkOpen("abandon"); err != nil {
		return err
	}
	b.state = domain.BuilderAbandoned
	return nil
}

// Commit validates the session and produces the next snapshot and its diff.
// On blocking violations it returns *domain.IntegrityViolationError and the
// builder stays open; the base snapshot is never affected.
func (b *Builder) Commit(ctx context.Context) (CommitResult, error) {
	res, err := b.prepare(ctx)
	if err != nil {
		return res, err
	}
	b.state = domain.BuilderCommitted
	return res, nil
}

// prepare validates the session and assembles the next snapshot without
// leaving the open state, so a caller that fails to publish can retry.
func (b *Builder) prepare(ctx context.Context) (CommitResult, error) {
	if err := b.checkOpen("commit"); err != nil {
		return CommitResult{}, err
	}
	res := b.validate()
	if b.engine != nil {
		extra, err := b.engine.Evaluate(ctx, b, b.Changes())
		if err != nil {
			return CommitResult{}, err
		}
		res.Merge(extra)
	}
	if res.HasBlocking() {
		return CommitResult{Result: res}, &domain.IntegrityViolationError{Result: res}
	}
	next := &Snapshot{
		graph:   graph{registry: b.registry, buckets: make(map[domain.EntityType]*bucket, len(b.buckets))},
		version: b.base.version + 1,
		lineage: b.base.lineage,
	}
	for t, bk := range b.buckets {
		if bk.len() == 0 && len(bk.incoming) == 0 {
			continue
		}
		next.buckets[t] = bk
	}
	return CommitResult{Snapshot: next, Diff: Diff(b.base, next), Result: res}, nil
}

func (b *Builder) validate() domain.Result {
	ids := make([]domain.EntityID, 0, len(b.dirty))
	for id := range b.dirty {
		ids = append(ids, id)
	}
	return checkIntegrity(&b.graph, ids)
}
