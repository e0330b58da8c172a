package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspacemodel/pkg/domain"
)

func TestCommitProducesNextSnapshot(t *testing.T) {
	f := newFixture(t)
	base := Empty(f.reg)
	b := NewBuilder(base, nil)
	root := f.addFolder(t, b, "root")
	file := f.addFile(t, b, root.ID(), "a.txt")

	res := commit(t, b)

	require.Equal(t, uint64(1), res.Snapshot.Version())
	assert.Equal(t, base.Lineage(), res.Snapshot.Lineage())
	assert.Equal(t, 0, base.Len())
	assert.Equal(t, 2, res.Snapshot.Len())
	assert.Equal(t, domain.BuilderCommitted, b.State())

	got, ok := res.Snapshot.Get(file.ID())
	require.True(t, ok)
	assert.Equal(t, "a.txt", got.Text("name"))
	assert.Equal(t, testSource, got.Source())

	owner, ok := res.Snapshot.Owner(file.ID())
	require.True(t, ok)
	assert.Equal(t, root.ID(), owner.Owner)
	assert.Equal(t, "files", owner.Field)

	require.Len(t, res.Diff.Changes, 2)
	assert.Equal(t, file.ID(), res.Diff.Changes[0].ID)
	assert.Equal(t, root.ID(), res.Diff.Changes[1].ID)
	assert.Equal(t, 2, res.Diff.Counts()[domain.ActionAdded])
	assert.Empty(t, res.Snapshot.Verify().Violations)
}

func TestUntouchedBucketsAreShared(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Empty(f.reg), nil)
	root := f.addFolder(t, b, "root")
	file := f.addFile(t, b, root.ID(), "a.txt")
	f.addFile(t, b, root.ID(), "b.txt")
	s1 := commit(t, b).Snapshot

	b2 := NewBuilder(s1, nil)
	_, err := b2.ModifyEntity(file.ID(), func(m *domain.MutableEntity) error {
		m.Set("size", domain.Int(42))
		return nil
	})
	require.NoError(t, err)
	res := commit(t, b2)
	s2 := res.Snapshot

	assert.True(t, s2.SharesBucket(s1, f.folder))
	assert.False(t, s2.SharesBucket(s1, f.file))
	require.Len(t, res.Diff.Changes, 1)
	assert.Equal(t, domain.ActionChanged, res.Diff.Changes[0].Action)
	assert.Equal(t, int64(42), res.Diff.Changes[0].After.Int("size"))

	old, _ := s1.Get(file.ID())
	assert.Equal(t, int64(0), old.Int("size"))
}

func TestRemoveEntityCascadesStrongChildren(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Empty(f.reg), nil)
	root := f.addFolder(t, b, "root")
	sub := f.addFolder(t, b, "sub")
	require.NoError(t, b.AddEdge(root.ID(), "children", sub.ID()))
	file := f.addFile(t, b, sub.ID(), "deep.txt")
	s1 := commit(t, b).Snapshot

	b2 := NewBuilder(s1, nil)
	removed, err := b2.RemoveEntity(sub.ID())
	require.NoError(t, err)
	assert.Equal(t, []domain.EntityID{sub.ID(), file.ID()}, removed)
	res := commit(t, b2)

	_, ok := res.Snapshot.Get(file.ID())
	assert.False(t, ok)
	assert.Empty(t, res.Snapshot.ResolveReference(root.ID(), "children").All())
	r, _ := res.Snapshot.Get(root.ID())
	_, hasChildren := r.Field("children")
	assert.False(t, hasChildren)

	require.Len(t, res.Diff.Changes, 3)
	assert.Equal(t, domain.ActionRemoved, res.Diff.Changes[0].Action)
	assert.Equal(t, file.ID(), res.Diff.Changes[0].ID)
	assert.Equal(t, domain.ActionChanged, res.Diff.Changes[1].Action)
	assert.Equal(t, root.ID(), res.Diff.Changes[1].ID)
	assert.Equal(t, domain.ActionRemoved, res.Diff.Changes[2].Action)
	assert.Equal(t, sub.ID(), res.Diff.Changes[2].ID)

	_, ok = s1.Get(file.ID())
	assert.True(t, ok, "base snapshot must stay intact")
}

func TestCycleIsRejectedAndBuilderStaysOpen(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Empty(f.reg), nil)
	a := f.addFolder(t, b, "a")
	bb := f.addFolder(t, b, "b")
	require.NoError(t, b.AddEdge(a.ID(), "children", bb.ID()))
	s1 := commit(t, b).Snapshot

	b2 := NewBuilder(s1, nil)
	require.NoError(t, b2.AddEdge(bb.ID(), "children", a.ID()))
	_, err := b2.Commit(context.Background())
	requireViolation(t, err, RuleOwnershipCycle)
	assert.Equal(t, domain.BuilderOpen, b2.State())

	got, _ := s1.Get(bb.ID())
	assert.Empty(t, got.Refs("children"))
	assert.Empty(t, s1.Verify().Violations)

	require.NoError(t, b2.RemoveEdge(bb.ID(), "children", a.ID()))
	res := commit(t, b2)
	assert.True(t, res.Diff.Empty())
}

func TestSelfOwnershipIsACycle(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Empty(f.reg), nil)
	a := f.addFolder(t, b, "a")
	require.NoError(t, b.AddEdge(a.ID(), "children", a.ID()))
	_, err := b.Commit(context.Background())
	requireViolation(t, err, RuleOwnershipCycle)
}

func TestDanglingWeakReferenceIsAWarning(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Empty(f.reg), nil)
	root := f.addFolder(t, b, "root")
	file := f.addFile(t, b, root.ID(), "a.txt")
	link, err := b.AddEntity(f.link, testSource, domain.Fields{
		"target": domain.Ref(file.ID()),
		"anchor": domain.Ref(root.ID()),
	})
	require.NoError(t, err)
	s1 := commit(t, b).Snapshot
	target, ok := s1.ResolveReference(link.ID(), "target").One()
	require.True(t, ok)
	assert.Equal(t, file.ID(), target)

	b2 := NewBuilder(s1, nil)
	_, err = b2.RemoveEntity(file.ID())
	require.NoError(t, err)
	res := commit(t, b2)

	warnings := res.Result.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, RuleDanglingReference, warnings[0].Rule)
	assert.Equal(t, link.ID(), warnings[0].Entity)

	_, ok = res.Snapshot.ResolveReference(link.ID(), "target").One()
	assert.False(t, ok)
	assert.Len(t, res.Snapshot.Referrers(file.ID()), 1)
	assert.Empty(t, res.Snapshot.ResolveReference(root.ID(), "files").All())
}

func TestRequiredReferenceMustResolve(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Empty(f.reg), nil)
	root := f.addFolder(t, b, "root")
	link, err := b.AddEntity(f.link, testSource, nil)
	require.NoError(t, err)

	_, err = b.Commit(context.Background())
	ive := requireViolation(t, err, RuleRequiredReference)
	assert.Equal(t, link.ID(), ive.Result.Blocking()[0].Entity)
	assert.Equal(t, "anchor", ive.Result.Blocking()[0].Field)

	require.NoError(t, b.AddEdge(link.ID(), "anchor", root.ID()))
	s1 := commit(t, b).Snapshot

	b2 := NewBuilder(s1, nil)
	_, err = b2.RemoveEntity(root.ID())
	require.NoError(t, err)
	_, err = b2.Commit(context.Background())
	requireViolation(t, err, RuleRequiredReference)
}

func TestChildMayHaveOnlyOneOwner(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Empty(f.reg), nil)
	left := f.addFolder(t, b, "left")
	right := f.addFolder(t, b, "right")
	file := f.addFile(t, b, left.ID(), "shared.txt")
	require.NoError(t, b.AddEdge(right.ID(), "files", file.ID()))

	_, err := b.Commit(context.Background())
	requireViolation(t, err, RuleSingleOwner)
}

func TestChildOnlyTypeNeedsOwner(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Empty(f.reg), nil)
	_, err := b.AddEntity(f.file, testSource, domain.Fields{"name": domain.String("loose.txt")})
	require.NoError(t, err)

	_, err = b.Commit(context.Background())
	requireViolation(t, err, RuleOrphanedChild)
}

func TestOwnerCannotListMissingChild(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Empty(f.reg), nil)
	root := f.addFolder(t, b, "root")
	ghost := domain.EntityID{Type: f.file, Instance: 99}
	require.NoError(t, b.AddEdge(root.ID(), "files", ghost))

	_, err := b.Commit(context.Background())
	requireViolation(t, err, RuleMissingChild)
}

func TestBuilderStateMachine(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Empty(f.reg), nil)
	f.addFolder(t, b, "root")
	commit(t, b)

	_, err := b.Commit(context.Background())
	var ise *domain.IllegalStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, domain.BuilderCommitted, ise.State)

	_, err = b.AddEntity(f.folder, testSource, domain.Fields{"name": domain.String("late")})
	require.ErrorAs(t, err, &ise)

	b2 := NewBuilder(Empty(f.reg), nil)
	require.NoError(t, b2.Abandon())
	assert.Equal(t, domain.BuilderAbandoned, b2.State())
	require.ErrorAs(t, b2.Abandon(), &ise)
	_, err = b2.Commit(context.Background())
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, domain.BuilderAbandoned, ise.State)
}

func TestModifyEntityLastWriteWins(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Empty(f.reg), nil)
	root := f.addFolder(t, b, "root")
	for _, name := range []string{"first", "second"} {
		_, err := b.ModifyEntity(root.ID(), func(m *domain.MutableEntity) error {
			m.Set("name", domain.String(name))
			return nil
		})
		require.NoError(t, err)
	}
	boom := errors.New("boom")
	_, err := b.ModifyEntity(root.ID(), func(m *domain.MutableEntity) error {
		m.Set("name", domain.String("discarded"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	res := commit(t, b)
	got, _ := res.Snapshot.Get(root.ID())
	assert.Equal(t, "second", got.Text("name"))
	assert.Len(t, b.Changes(), 3)
}

func TestSchemaViolationsAreFieldErrors(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Empty(f.reg), nil)
	cases := map[string]struct {
		source domain.EntitySource
		fields domain.Fields
	}{
		"unknown field":    {testSource, domain.Fields{"name": domain.String("x"), "color": domain.String("red")}},
		"kind mismatch":    {testSource, domain.Fields{"name": domain.Int(1)}},
		"missing required": {testSource, domain.Fields{}},
		"missing source":   {domain.EntitySource{}, domain.Fields{"name": domain.String("x")}},
		"wrong target":     {testSource, domain.Fields{"name": domain.String("x"), "files": domain.Refs{{Type: f.folder, Instance: 1}}}},
		"single for list":  {testSource, domain.Fields{"name": domain.String("x"), "files": domain.Ref{Type: f.file, Instance: 1}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := b.AddEntity(f.folder, tc.source, tc.fields)
			var fe *domain.FieldError
			require.ErrorAs(t, err, &fe)
		})
	}
	assert.Equal(t, domain.BuilderOpen, b.State())
	assert.Empty(t, b.Changes())
}

func TestIdentifiersAreNeverReused(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Empty(f.reg), nil)
	first := f.addFolder(t, b, "first")
	s1 := commit(t, b).Snapshot

	b2 := NewBuilder(s1, nil)
	_, err := b2.RemoveEntity(first.ID())
	require.NoError(t, err)
	second := f.addFolder(t, b2, "second")
	commit(t, b2)

	assert.Greater(t, second.ID().Instance, first.ID().Instance)
}

func TestEntitiesOfTypeIsOrderedAndStoppable(t *testing.T) {
	f := newFixture(t)
	b := NewBuilder(Empty(f.reg), nil)
	var want []domain.EntityID
	for _, name := range []string{"a", "b", "c", "d"} {
		want = append(want, f.addFolder(t, b, name).ID())
	}
	s := commit(t, b).Snapshot

	var got []domain.EntityID
	for e := range s.EntitiesOfType(f.folder) {
		got = append(got, e.ID())
	}
	assert.Equal(t, want, got)

	var firstTwo []domain.EntityID
	for e := range s.EntitiesOfType(f.folder) {
		firstTwo = append(firstTwo, e.ID())
		if len(firstTwo) == 2 {
			break
		}
	}
	assert.Equal(t, want[:2], firstTwo)

	for range s.EntitiesOfType(f.link) {
		t.Fatal("no links expected")
	}
	assert.Equal(t, 4, s.Count(f.folder))
	assert.Equal(t, []domain.EntityType{f.folder}, s.Types())
}

func TestRulesEngineRunsAtCommit(t *testing.T) {
	f := newFixture(t)
	engine := domain.NewRulesEngine()
	engine.Register(ruleFunc{name: "no_tmp", fn: func(view domain.RuleView, changes []domain.Change) domain.Result {
		var res domain.Result
		for _, c := range changes {
			if e, ok := view.Get(c.ID); ok && e.Text("name") == "tmp" {
				res.Add(domain.Violation{Rule: "no_tmp", Severity: domain.SeverityBlock, Entity: c.ID})
			}
		}
		return res
	}})
	b := NewBuilder(Empty(f.reg), engine)
	f.addFolder(t, b, "tmp")
	_, err := b.Commit(context.Background())
	requireViolation(t, err, "no_tmp")
}

type ruleFunc struct {
	name string
	fn   func(domain.RuleView, []domain.Change) domain.Result
}

func (r ruleFunc) Name() string { return r.name }

func (r ruleFunc) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	return r.fn(view, changes), nil
}
