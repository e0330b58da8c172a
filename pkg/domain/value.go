package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Value is a sealed tagged union of field values. The concrete types are
// String, Int, Bool, Strings, Ref, Refs, Variant and Variants; switches over
// Value handle every case and panic on anything else.
type Value interface {
	Kind() FieldKind
	isValue()
}

type (
	// String is a scalar text value.
	String string
	// Int is a scalar integer value.
	Int int64
	// Bool is a scalar boolean value.
	Bool bool
	// Strings is an ordered list of text values.
	Strings []string
	// Ref is a single entity reference.
	Ref EntityID
	// Refs is an ordered list of entity references.
	Refs []EntityID
	// Variants is an ordered list of variant payloads.
	Variants []Variant
)

// Variant is one case of a closed polymorphic set. Fields hold scalars only.
type Variant struct {
	Tag    string
	Fields Fields
}

func (String) Kind() FieldKind   { return KindString }
func (Int) Kind() FieldKind      { return KindInt }
func (Bool) Kind() FieldKind     { return KindBool }
func (Strings) Kind() FieldKind  { return KindStrings }
func (Ref) Kind() FieldKind      { return KindReference }
func (Refs) Kind() FieldKind     { return KindReference }
func (Variant) Kind() FieldKind  { return KindVariant }
func (Variants) Kind() FieldKind { return KindVariantList }

func (String) isValue()   {}
func (Int) isValue()      {}
func (Bool) isValue()     {}
func (Strings) isValue()  {}
func (Ref) isValue()      {}
func (Refs) isValue()     {}
func (Variant) isValue()  {}
func (Variants) isValue() {}

// ID returns the referenced identifier.
func (r Ref) ID() EntityID { return EntityID(r) }

// NewVariant builds a variant payload.
func NewVariant(tag string, fields Fields) Variant {
	return Variant{Tag: tag, Fields: fields.Clone()}
}

// ValuesEqual reports structural equality.
func ValuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Strings:
		bv, ok := b.(Strings)
		return ok && slices.Equal(av, bv)
	case Ref:
		bv, ok := b.(Ref)
		return ok && av == bv
	case Refs:
		bv, ok := b.(Refs)
		return ok && slices.Equal(av, bv)
	case Variant:
		bv, ok := b.(Variant)
		return ok && av.Tag == bv.Tag && av.Fields.Equal(bv.Fields)
	case Variants:
		bv, ok := b.(Variants)
		return ok && slices.EqualFunc(av, bv, func(x, y Variant) bool {
			return x.Tag == y.Tag && x.Fields.Equal(y.Fields)
		})
	default:
		panic(fmt.Sprintf("domain: unhandled value %T", a))
	}
}

// CloneValue deep-copies list values; scalars are returned as is.
func CloneValue(v Value) Value {
	switch val := v.(type) {
	case nil:
		return nil
	case String, Int, Bool, Ref:
		return v
	case Strings:
		return slices.Clone(val)
	case Refs:
		return slices.Clone(val)
	case Variant:
		return Variant{Tag: val.Tag, Fields: val.Fields.Clone()}
	case Variants:
		out := make(Variants, len(val))
		for i, item := range val {
			out[i] = Variant{Tag: item.Tag, Fields: item.Fields.Clone()}
		}
		return out
	default:
		panic(fmt.Sprintf("domain: unhandled value %T", v))
	}
}

// ReferencedIDs returns the identifiers held by a reference value.
func ReferencedIDs(v Value) []EntityID {
	switch val := v.(type) {
	case nil:
		return nil
	case Ref:
		return []EntityID{EntityID(val)}
	case Refs:
		return slices.Clone(val)
	case String, Int, Bool, Strings, Variant, Variants:
		return nil
	default:
		panic(fmt.Sprintf("domain: unhandled value %T", v))
	}
}

// Fields maps field names to values.
type Fields map[string]Value

// Clone deep-copies the field set.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = CloneValue(v)
	}
	return out
}

// Equal reports structural equality. Nil and empty sets are equal.
func (f Fields) Equal(o Fields) bool {
	if len(f) != len(o) {
		return false
	}
	for k, v := range f {
		ov, ok := o[k]
		if !ok || !ValuesEqual(v, ov) {
			return false
		}
	}
	return true
}

// Names returns the field names in sorted order.
func (f Fields) Names() []string {
	return slices.Sorted(maps.Keys(f))
}

type variantJSON struct {
	Tag    string `json:"tag"`
	Fields Fields `json:"fields,omitempty"`
}

type valueJSON struct {
	Kind     FieldKind     `json:"kind"`
	String   *string       `json:"string,omitempty"`
	Int      *int64        `json:"int,omitempty"`
	Bool     *bool         `json:"bool,omitempty"`
	Strings  []string      `json:"strings,omitempty"`
	Ref      *EntityID     `json:"ref,omitempty"`
	Refs     []EntityID    `json:"refs,omitempty"`
	Many     bool          `json:"many,omitempty"`
	Variant  *variantJSON  `json:"variant,omitempty"`
	Variants []variantJSON `json:"variants,omitempty"`
}

func encodeValue(v Value) valueJSON {
	out := valueJSON{Kind: v.Kind()}
	switch val := v.(type) {
	case String:
		s := string(val)
		out.String = &s
	case Int:
		i := int64(val)
		out.Int = &i
	case Bool:
		b := bool(val)
		out.Bool = &b
	case Strings:
		out.Strings = slices.Clone(val)
		if out.Strings == nil {
			out.Strings = []string{}
		}
	case Ref:
		id := EntityID(val)
		out.Ref = &id
	case Refs:
		out.Refs = slices.Clone(val)
		out.Many = true
	case Variant:
		out.Variant = &variantJSON{Tag: val.Tag, Fields: val.Fields}
	case Variants:
		out.Variants = make([]variantJSON, len(val))
		for i, item := range val {
			out.Variants[i] = variantJSON{Tag: item.Tag, Fields: item.Fields}
		}
	default:
		panic(fmt.Sprintf("domain: unhandled value %T", v))
	}
	return out
}

func decodeValue(raw valueJSON) (Value, error) {
	switch raw.Kind {
	case KindString:
		if raw.String == nil {
			return String(""), nil
		}
		return String(*raw.String), nil
	case KindInt:
		if raw.Int == nil {
			return Int(0), nil
		}
		return Int(*raw.Int), nil
	case KindBool:
		return Bool(raw.Bool != nil && *raw.Bool), nil
	case KindStrings:
		return Strings(slices.Clone(raw.Strings)), nil
	case KindReference:
		if raw.Many {
			return Refs(slices.Clone(raw.Refs)), nil
		}
		if raw.Ref == nil {
			return nil, fmt.Errorf("decode reference: missing target")
		}
		return Ref(*raw.Ref), nil
	case KindVariant:
		if raw.Variant == nil {
			return nil, fmt.Errorf("decode variant: missing payload")
		}
		return Variant{Tag: raw.Variant.Tag, Fields: raw.Variant.Fields}, nil
	case KindVariantList:
		out := make(Variants, len(raw.Variants))
		for i, item := range raw.Variants {
			out[i] = Variant{Tag: item.Tag, Fields: item.Fields}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("decode value: unknown kind %q", raw.Kind)
	}
}

// MarshalJSON encodes every value with an explicit kind tag.
func (f Fields) MarshalJSON() ([]byte, error) {
	enc := make(map[string]valueJSON, len(f))
	for k, v := range f {
		if v == nil {
			continue
		}
		enc[k] = encodeValue(v)
	}
	return json.Marshal(enc)
}

// UnmarshalJSON decodes kind-tagged values. Reference generations are left
// unresolved, see Registry.CanonicalFields.
func (f *Fields) UnmarshalJSON(data []byte) error {
	var enc map[string]valueJSON
	if err := json.Unmarshal(data, &enc); err != nil {
		return err
	}
	out := make(Fields, len(enc))
	for k, raw := range enc {
		v, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = v
	}
	*f = out
	return nil
}
