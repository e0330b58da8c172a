package domain

import (
	"encoding/json"
	"slices"
)

// Entity is an immutable typed record. Accessors return copies so callers can
// never mutate a value shared by a snapshot.
type Entity struct {
	id     EntityID
	source EntitySource
	fields Fields
}

// NewEntity builds an entity from a copy of fields.
func NewEntity(id EntityID, source EntitySource, fields Fields) Entity {
	return Entity{id: id, source: source, fields: fields.Clone()}
}

// ID returns the entity identifier.
func (e Entity) ID() EntityID { return e.id }

// Type returns the entity type.
func (e Entity) Type() EntityType { return e.id.Type }

// Source returns the provenance tag.
func (e Entity) Source() EntitySource { return e.source }

// IsZero reports whether e is the zero entity.
func (e Entity) IsZero() bool { return e.id.IsZero() }

// Field returns a copy of the named value.
func (e Entity) Field(name string) (Value, bool) {
	v, ok := e.fields[name]
	if !ok {
		return nil, false
	}
	return CloneValue(v), true
}

// Fields returns a copy of the whole field set.
func (e Entity) Fields() Fields { return e.fields.Clone() }

// Equal reports structural equality, including identity and source.
func (e Entity) Equal(o Entity) bool {
	return e.id == o.id && e.source == o.source && e.fields.Equal(o.fields)
}

// Text returns a text field, or "" when unset.
func (e Entity) Text(name string) string {
	if v, ok := e.fields[name].(String); ok {
		return string(v)
	}
	return ""
}

// Int returns an integer field, or 0 when unset.
func (e Entity) Int(name string) int64 {
	if v, ok := e.fields[name].(Int); ok {
		return int64(v)
	}
	return 0
}

// Bool returns a boolean field, or false when unset.
func (e Entity) Bool(name string) bool {
	if v, ok := e.fields[name].(Bool); ok {
		return bool(v)
	}
	return false
}

// Strings returns a copy of a text list field.
func (e Entity) Strings(name string) []string {
	if v, ok := e.fields[name].(Strings); ok {
		return slices.Clone(v)
	}
	return nil
}

// Ref returns the raw target of a single reference field. The target may be
// absent from a snapshot; use the snapshot's ResolveReference to filter.
func (e Entity) Ref(name string) (EntityID, bool) {
	if v, ok := e.fields[name].(Ref); ok {
		return EntityID(v), true
	}
	return EntityID{}, false
}

// Refs returns a copy of the raw targets of a reference list field.
func (e Entity) Refs(name string) []EntityID {
	if v, ok := e.fields[name].(Refs); ok {
		return slices.Clone(v)
	}
	return nil
}

// Variant returns a copy of a variant field.
func (e Entity) Variant(name string) (Variant, bool) {
	if v, ok := e.fields[name].(Variant); ok {
		return Variant{Tag: v.Tag, Fields: v.Fields.Clone()}, true
	}
	return Variant{}, false
}

// Variants returns a copy of a variant list field.
func (e Entity) Variants(name string) []Variant {
	if v, ok := e.fields[name].(Variants); ok {
		return CloneValue(v).(Variants)
	}
	return nil
}

// Mutable returns a working copy for modification.
func (e Entity) Mutable() *MutableEntity {
	return &MutableEntity{id: e.id, Source: e.source, fields: e.fields.Clone()}
}

type entityJSON struct {
	ID     EntityID     `json:"id"`
	Source EntitySource `json:"source"`
	Fields Fields       `json:"fields"`
}

// MarshalJSON encodes the entity with kind-tagged fields.
func (e Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(entityJSON{ID: e.id, Source: e.source, Fields: e.fields})
}

// UnmarshalJSON decodes an entity; identifiers still need canonicalising
// against a registry before the entity is stored.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var raw entityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Entity{id: raw.ID, source: raw.Source, fields: raw.Fields}
	return nil
}

// MutableEntity is the cloned working copy handed to modification callbacks.
type MutableEntity struct {
	id     EntityID
	Source EntitySource
	fields Fields
}

// ID returns the identifier of the entity being modified.
func (m *MutableEntity) ID() EntityID { return m.id }

// Get returns the current value of a field.
func (m *MutableEntity) Get(name string) (Value, bool) {
	v, ok := m.fields[name]
	return v, ok
}

// Set replaces a field value.
func (m *MutableEntity) Set(name string, v Value) {
	if m.fields == nil {
		m.fields = make(Fields)
	}
	m.fields[name] = CloneValue(v)
}

// Unset removes a field.
func (m *MutableEntity) Unset(name string) { delete(m.fields, name) }

// Fields returns a copy of the working field set.
func (m *MutableEntity) Fields() Fields { return m.fields.Clone() }

// Entity freezes the working copy.
func (m *MutableEntity) Entity() Entity {
	return Entity{id: m.id, source: m.Source, fields: m.fields.Clone()}
}
