package domain

import "slices"

// FieldKind enumerates the value kinds a schema field may hold.
type FieldKind string

// Supported field kinds.
const (
	KindString      FieldKind = "string"
	KindInt         FieldKind = "int"
	KindBool        FieldKind = "bool"
	KindStrings     FieldKind = "strings"
	KindVariant     FieldKind = "variant"
	KindVariantList FieldKind = "variant_list"
	KindReference   FieldKind = "reference"
)

// Cardinality describes how many targets a reference field holds.
type Cardinality string

// Reference cardinalities.
const (
	OptionalOne Cardinality = "optional_one"
	RequiredOne Cardinality = "required_one"
	OrderedMany Cardinality = "ordered_many"
)

// Many reports whether the cardinality holds a list of targets.
func (c Cardinality) Many() bool { return c == OrderedMany }

// Ownership distinguishes child edges from plain references.
type Ownership string

// Reference ownership kinds.
const (
	// Strong edges own their target: removal cascades, one owner per child.
	Strong Ownership = "strong"
	// Weak edges are named pointers that may dangle.
	Weak Ownership = "weak"
)

// FieldSpec declares one field of a schema.
type FieldSpec struct {
	Name string
	Kind FieldKind
	// Required applies to scalar and variant fields.
	Required bool
	// Variants is the closed tag set of variant fields.
	Variants []string
	// Target, Cardinality and Ownership apply to reference fields. A target
	// equal to the schema's own name declares a self link.
	Target      string
	Cardinality Cardinality
	Ownership   Ownership
}

// IsReference reports whether the field holds entity references.
func (f FieldSpec) IsReference() bool { return f.Kind == KindReference }

// IsStrong reports whether the field is an owning reference.
func (f FieldSpec) IsStrong() bool { return f.IsReference() && f.Ownership == Strong }

func (f FieldSpec) allowsVariant(tag string) bool {
	return slices.Contains(f.Variants, tag)
}

func (f FieldSpec) equal(o FieldSpec) bool {
	return f.Name == o.Name &&
		f.Kind == o.Kind &&
		f.Required == o.Required &&
		slices.Equal(f.Variants, o.Variants) &&
		f.Target == o.Target &&
		f.Cardinality == o.Cardinality &&
		f.Ownership == o.Ownership
}

// Schema describes an entity type.
type Schema struct {
	Name   string
	Fields []FieldSpec
	// RequiresOwner marks child-only types whose entities must have exactly
	// one strong owner.
	RequiresOwner bool
}

// Field returns the named field definition.
func (s Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// References returns the reference fields in declaration order.
func (s Schema) References() []FieldSpec {
	var out []FieldSpec
	for _, f := range s.Fields {
		if f.IsReference() {
			out = append(out, f)
		}
	}
	return out
}

// Equal reports whether two schemas are identical.
func (s Schema) Equal(o Schema) bool {
	if s.Name != o.Name || s.RequiresOwner != o.RequiresOwner || len(s.Fields) != len(o.Fields) {
		return false
	}
	for i := range s.Fields {
		if !s.Fields[i].equal(o.Fields[i]) {
			return false
		}
	}
	return true
}

func (s Schema) clone() Schema {
	cp := s
	cp.Fields = make([]FieldSpec, len(s.Fields))
	for i, f := range s.Fields {
		f.Variants = slices.Clone(f.Variants)
		cp.Fields[i] = f
	}
	return cp
}

func (s Schema) validate(known func(string) bool) error {
	if s.Name == "" {
		return &SchemaError{Schema: s.Name, Reason: "schema name required"}
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return &SchemaError{Schema: s.Name, Reason: "field name required"}
		}
		if _, dup := seen[f.Name]; dup {
			return &SchemaError{Schema: s.Name, Field: f.Name, Reason: "duplicate field"}
		}
		seen[f.Name] = struct{}{}
		switch f.Kind {
		case KindString, KindInt, KindBool, KindStrings:
		case KindVariant, KindVariantList:
			if len(f.Variants) == 0 {
				return &SchemaError{Schema: s.Name, Field: f.Name, Reason: "variant field declares no variants"}
			}
		case KindReference:
			if f.Target != s.Name && !known(f.Target) {
				return &SchemaError{Schema: s.Name, Field: f.Name, Reason: "unknown reference target " + f.Target}
			}
			switch f.Cardinality {
			case OptionalOne, RequiredOne, OrderedMany:
			default:
				return &SchemaError{Schema: s.Name, Field: f.Name, Reason: "invalid cardinality " + string(f.Cardinality)}
			}
			if f.Ownership != Strong && f.Ownership != Weak {
				return &SchemaError{Schema: s.Name, Field: f.Name, Reason: "invalid ownership " + string(f.Ownership)}
			}
			if f.Ownership == Strong && f.Cardinality == RequiredOne {
				return &SchemaError{Schema: s.Name, Field: f.Name, Reason: "strong references cannot be required"}
			}
		default:
			return &SchemaError{Schema: s.Name, Field: f.Name, Reason: "unknown kind " + string(f.Kind)}
		}
		if f.Required && f.Kind == KindReference {
			return &SchemaError{Schema: s.Name, Field: f.Name, Reason: "use RequiredOne cardinality for references"}
		}
	}
	return nil
}
