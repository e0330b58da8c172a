package core

import (
	"context"
	"fmt"

	"workspacemodel/pkg/domain"
	"workspacemodel/pkg/workspace"
)

// Rule names reported by the built-in workspace rules.
const (
	RuleUniqueModuleName   = "unique_module_name"
	RuleUniqueLibraryName  = "unique_library_name"
	RuleUniqueSubStateName = "unique_sub_state_name"
)

// NewDefaultRulesEngine builds a rules engine with the built-in workspace
// policies.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewUniqueModuleNameRule())
	engine.Register(NewUniqueLibraryNameRule())
	engine.Register(NewUniqueSubStateNameRule())
	return engine
}

// uniqueNameRule blocks two live entities of one type sharing a key. The
// key scopes the name, e.g. by library table or owning component.
type uniqueNameRule struct {
	name     string
	typeName string
	key      func(view domain.RuleView, e domain.Entity) (string, bool)
}

// NewUniqueModuleNameRule blocks duplicate module names.
func NewUniqueModuleNameRule() domain.Rule {
	return uniqueNameRule{
		name:     RuleUniqueModuleName,
		typeName: workspace.ModuleType,
		key: func(_ domain.RuleView, e domain.Entity) (string, bool) {
			return e.Text(workspace.FieldName), true
		},
	}
}

// NewUniqueLibraryNameRule blocks duplicate library names within a table.
func NewUniqueLibraryNameRule() domain.Rule {
	return uniqueNameRule{
		name:     RuleUniqueLibraryName,
		typeName: workspace.LibraryType,
		key: func(_ domain.RuleView, e domain.Entity) (string, bool) {
			table, err := workspace.LibraryTable(e)
			if err != nil {
				return "", false
			}
			return workspace.TableKey(table) + "/" + e.Text(workspace.FieldName), true
		},
	}
}

// NewUniqueSubStateNameRule blocks duplicate sub-state names within one
// component.
func NewUniqueSubStateNameRule() domain.Rule {
	return uniqueNameRule{
		name:     RuleUniqueSubStateName,
		typeName: workspace.SubStateType,
		key: func(view domain.RuleView, e domain.Entity) (string, bool) {
			owner, ok := view.Owner(e.ID())
			if !ok {
				return "", false
			}
			return owner.Owner.String() + "/" + e.Text(workspace.FieldName), true
		},
	}
}

func (r uniqueNameRule) Name() string { return r.name }

func (r uniqueNameRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	t, ok := view.Registry().Lookup(r.typeName)
	if !ok {
		return res, nil
	}
	touched := false
	for _, c := range changes {
		if c.ID.Type == t && c.Action != domain.ActionRemoved {
			touched = true
			break
		}
	}
	if !touched {
		return res, nil
	}

	// A sub-state's key depends on its owner, so the index is rebuilt from
	// the view rather than from the changed records.
	seen := make(map[string]domain.EntityID)
	for e := range view.EntitiesOfType(t) {
		key, ok := r.key(view, e)
		if !ok {
			continue
		}
		first, dup := seen[key]
		if !dup {
			seen[key] = e.ID()
			continue
		}
		res.Add(domain.Violation{
			Rule:     r.name,
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s %q duplicates %s", e.ID(), e.Text(workspace.FieldName), first),
			Entity:   e.ID(),
			Field:    workspace.FieldName,
		})
	}
	return res, nil
}
