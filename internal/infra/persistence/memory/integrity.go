package memory

import (
	"fmt"
	"slices"
	"strings"

	"workspacemodel/pkg/domain"
)

// Built-in integrity rule names.
const (
	RuleRequiredReference = "required_reference"
	RuleSingleOwner       = "single_owner"
	RuleMissingChild      = "missing_child"
	RuleOrphanedChild     = "orphaned_child"
	RuleOwnershipCycle    = "ownership_cycle"
	RuleDanglingReference = "dangling_reference"
)

// checkIntegrity evaluates the structural invariants for ids against g. Ids
// absent from g are skipped. Violations are collected exhaustively in a fixed
// order: required references, ownership, then cycles.
func checkIntegrity(g *graph, ids []domain.EntityID) domain.Result {
	present := make([]domain.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := g.Get(id); ok {
			present = append(present, e)
		}
	}
	slices.SortFunc(present, func(a, b domain.Entity) int { return domain.CompareIDs(a.ID(), b.ID()) })

	var res domain.Result
	for _, e := range present {
		checkRequired(g, e, &res)
	}
	for _, e := range present {
		checkOwnership(g, e, &res)
	}
	checkCycles(g, present, &res)
	return res
}

func checkRequired(g *graph, e domain.Entity, res *domain.Result) {
	schema, _ := g.registry.Schema(e.Type())
	for _, spec := range schema.References() {
		if spec.Cardinality != domain.RequiredOne {
			continue
		}
		if _, ok := g.ResolveReference(e.ID(), spec.Name).One(); ok {
			continue
		}
		msg := fmt.Sprintf("%s.%s must reference a present %s", e.ID(), spec.Name, spec.Target)
		if v, ok := e.Field(spec.Name); ok {
			msg = fmt.Sprintf("%s.%s references missing %s", e.ID(), spec.Name, domain.ReferencedIDs(v)[0])
		}
		res.Add(domain.Violation{
			Rule:     RuleRequiredReference,
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   e.ID(),
			Field:    spec.Name,
		})
	}
}

func checkOwnership(g *graph, e domain.Entity, res *domain.Result) {
	id := e.ID()
	var owners []domain.Edge
	for _, edge := range g.Referrers(id) {
		if edge.Ownership == domain.Strong && g.Contains(edge.Owner) {
			owners = append(owners, edge)
		}
	}
	if len(owners) > 1 {
		names := make([]string, len(owners))
		for i, o := range owners {
			names[i] = o.Owner.String() + "." + o.Field
		}
		res.Add(domain.Violation{
			Rule:     RuleSingleOwner,
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s is owned by %s", id, strings.Join(names, ", ")),
			Entity:   id,
		})
	}

	schema, _ := g.registry.Schema(e.Type())
	if schema.RequiresOwner && len(owners) == 0 {
		res.Add(domain.Violation{
			Rule:     RuleOrphanedChild,
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s has no owner", id),
			Entity:   id,
		})
	}

	for _, edge := range g.outgoing(e) {
		if g.Contains(edge.Target) {
			continue
		}
		if edge.Ownership == domain.Strong {
			res.Add(domain.Violation{
				Rule:     RuleMissingChild,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("%s.%s lists missing child %s", id, edge.Field, edge.Target),
				Entity:   id,
				Field:    edge.Field,
			})
			continue
		}
		if spec, _ := g.fieldSpec(e.Type(), edge.Field); spec.Cardinality == domain.RequiredOne {
			continue
		}
		res.Add(domain.Violation{
			Rule:     RuleDanglingReference,
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("%s.%s references missing %s", id, edge.Field, edge.Target),
			Entity:   id,
			Field:    edge.Field,
		})
	}
}

// checkCycles walks strong edges depth first from every start entity,
// reporting each back edge to an in-progress node once.
func checkCycles(g *graph, starts []domain.Entity, res *domain.Result) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[domain.EntityID]int)
	var path []domain.EntityID

	var visit func(id domain.EntityID)
	visit = func(id domain.EntityID) {
		color[id] = gray
		path = append(path, id)
		for _, child := range g.Children(id) {
			cid := child.ID()
			switch color[cid] {
			case white:
				visit(cid)
			case gray:
				cycle := path[slices.Index(path, cid):]
				names := make([]string, 0, len(cycle)+1)
				for _, c := range cycle {
					names = append(names, c.String())
				}
				names = append(names, cid.String())
				res.Add(domain.Violation{
					Rule:     RuleOwnershipCycle,
					Severity: domain.SeverityBlock,
					Message:  "strong ownership cycle " + strings.Join(names, " -> "),
					Entity:   cid,
				})
			}
		}
		path = path[:len(path)-1]
		color[id] = black
	}

	for _, e := range starts {
		if color[e.ID()] == white {
			visit(e.ID())
		}
	}
}
