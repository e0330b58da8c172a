package domain

import (
	"context"
	"fmt"
	"iter"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks commit.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityID
	Field    string
}

func (v Violation) String() string {
	return fmt.Sprintf("[%s] %s", v.Rule, v.Message)
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// Add appends a single violation.
func (r *Result) Add(v Violation) {
	r.Violations = append(r.Violations, v)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Blocking returns only the blocking violations.
func (r Result) Blocking() []Violation {
	return r.filter(SeverityBlock)
}

// Warnings returns only the warn-level violations.
func (r Result) Warnings() []Violation {
	return r.filter(SeverityWarn)
}

func (r Result) filter(sev Severity) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == sev {
			out = append(out, v)
		}
	}
	return out
}

// Edge is a directed reference from an owner field to a target.
type Edge struct {
	Owner     EntityID
	Field     string
	Target    EntityID
	Ownership Ownership
}

// Resolution is the outcome of resolving a reference field. Dangling targets
// are already filtered out.
type Resolution struct {
	Cardinality Cardinality
	IDs         []EntityID
}

// One returns the single resolved target.
func (r Resolution) One() (EntityID, bool) {
	if len(r.IDs) == 0 {
		return EntityID{}, false
	}
	return r.IDs[0], true
}

// All returns every resolved target in field order.
func (r Resolution) All() []EntityID { return r.IDs }

// RuleView provides read-only access to entities for rule evaluation.
type RuleView interface {
	Registry() *Registry
	Get(id EntityID) (Entity, bool)
	EntitiesOfType(t EntityType) iter.Seq[Entity]
	ResolveReference(id EntityID, field string) Resolution
	Referrers(id EntityID) []Edge
	Owner(id EntityID) (Edge, bool)
}

// Rule defines an evaluation executed at commit.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in evaluation order.
func (e *RulesEngine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		combined.Merge(res)
	}
	return combined, nil
}
