package domain

// Action enumerates the structural change kinds recorded in op logs and diffs.
type Action string

// Change actions.
const (
	// ActionAdded indicates an entity exists only in the newer state.
	ActionAdded Action = "added"
	// ActionChanged indicates an entity exists in both states with different content.
	ActionChanged Action = "changed"
	// ActionRemoved indicates an entity exists only in the older state.
	ActionRemoved Action = "removed"
)

// Change is one structural change. Before is zero for additions, After is
// zero for removals.
type Change struct {
	Action Action
	ID     EntityID
	Before Entity
	After  Entity
}

// Diff is the ordered change set between two snapshot versions: grouped by
// type in registry order, then ascending instance id.
type Diff struct {
	From    uint64
	To      uint64
	Changes []Change
}

// Empty reports whether the diff holds no changes.
func (d Diff) Empty() bool { return len(d.Changes) == 0 }

// Len returns the number of changes.
func (d Diff) Len() int { return len(d.Changes) }

// Filter returns the changes with the given action, preserving order.
func (d Diff) Filter(action Action) []Change {
	var out []Change
	for _, c := range d.Changes {
		if c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

// TypeGroup is the run of changes for a single type.
type TypeGroup struct {
	Type    EntityType
	Changes []Change
}

// ByType splits the diff into per-type runs in diff order.
func (d Diff) ByType() []TypeGroup {
	var groups []TypeGroup
	for _, c := range d.Changes {
		if n := len(groups); n > 0 && groups[n-1].Type == c.ID.Type {
			groups[n-1].Changes = append(groups[n-1].Changes, c)
			continue
		}
		groups = append(groups, TypeGroup{Type: c.ID.Type, Changes: []Change{c}})
	}
	return groups
}

// Counts tallies changes per action.
func (d Diff) Counts() map[Action]int {
	out := make(map[Action]int, 3)
	for _, c := range d.Changes {
		out[c.Action]++
	}
	return out
}
