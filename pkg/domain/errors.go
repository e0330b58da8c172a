package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStaleSnapshot is returned when a commit is published against a snapshot
// that is no longer current.
var ErrStaleSnapshot = errors.New("snapshot is no longer current")

// DuplicateTypeError reports a schema registered under a name that already
// maps to a different schema.
type DuplicateTypeError struct {
	Name      string
	Existing  Schema
	Requested Schema
}

func (e *DuplicateTypeError) Error() string {
	return fmt.Sprintf("entity type %q already registered with an incompatible schema", e.Name)
}

// SchemaError reports a malformed schema or an unknown type.
type SchemaError struct {
	Schema string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema %s: %s", e.Schema, e.Reason)
	}
	return fmt.Sprintf("schema %s field %s: %s", e.Schema, e.Field, e.Reason)
}

// FieldError reports entity fields that do not conform to their schema.
type FieldError struct {
	Type   EntityType
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Type.Name, e.Field, e.Reason)
}

// NotFoundError is returned when an operation targets an absent entity.
type NotFoundError struct {
	ID EntityID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("entity %s not found", e.ID)
}

// IntegrityViolationError is returned when commit validation finds blocking
// violations. The builder stays open so the caller can amend and retry.
type IntegrityViolationError struct {
	Result Result
}

func (e *IntegrityViolationError) Error() string {
	blocking := e.Result.Blocking()
	msgs := make([]string, 0, len(blocking))
	for _, v := range blocking {
		msgs = append(msgs, v.String())
	}
	return fmt.Sprintf("commit blocked by %d integrity violation(s): %s", len(blocking), strings.Join(msgs, "; "))
}

// BuilderState is the lifecycle state of a builder session.
type BuilderState string

// Builder lifecycle states.
const (
	BuilderOpen      BuilderState = "open"
	BuilderCommitted BuilderState = "committed"
	BuilderAbandoned BuilderState = "abandoned"
)

// IllegalStateError reports API misuse on a builder that is no longer open.
type IllegalStateError struct {
	Op    string
	State BuilderState
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("%s not permitted on %s builder", e.Op, e.State)
}
