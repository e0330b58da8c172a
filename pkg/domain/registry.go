package domain

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Registry assigns entity types and instance identifiers. It is safe for
// concurrent use. Stores receive a registry explicitly; there is no process
// global.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*registeredType
	ordered []*registeredType
}

type registeredType struct {
	typ    EntityType
	schema Schema
	next   atomic.Uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*registeredType)}
}

// RegisterType registers schema and returns its type tag. Registering the same
// schema twice returns the existing tag; registering a different schema under
// an existing name fails with DuplicateTypeError.
func (r *Registry) RegisterType(schema Schema) (EntityType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[schema.Name]; ok {
		if existing.schema.Equal(schema) {
			return existing.typ, nil
		}
		return EntityType{}, &DuplicateTypeError{Name: schema.Name, Existing: existing.schema.clone(), Requested: schema.clone()}
	}
	if err := schema.validate(func(name string) bool {
		_, ok := r.byName[name]
		return ok
	}); err != nil {
		return EntityType{}, err
	}
	rt := &registeredType{
		typ:    EntityType{Name: schema.Name, Generation: uint32(len(r.ordered) + 1)},
		schema: schema.clone(),
	}
	r.byName[schema.Name] = rt
	r.ordered = append(r.ordered, rt)
	return rt.typ, nil
}

// MustRegister is RegisterType for static schema tables; it panics on error.
func (r *Registry) MustRegister(schema Schema) EntityType {
	t, err := r.RegisterType(schema)
	if err != nil {
		panic(fmt.Errorf("register %s: %w", schema.Name, err))
	}
	return t
}

func (r *Registry) lookup(t EntityType) (*registeredType, bool) {
	r.mu.RLock()
	rt, ok := r.byName[t.Name]
	r.mu.RUnlock()
	if !ok || rt.typ != t {
		return nil, false
	}
	return rt, true
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (EntityType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.byName[name]
	if !ok {
		return EntityType{}, false
	}
	return rt.typ, true
}

// Schema returns the schema registered for t.
func (r *Registry) Schema(t EntityType) (Schema, bool) {
	rt, ok := r.lookup(t)
	if !ok {
		return Schema{}, false
	}
	return rt.schema, true
}

// Types returns every registered type in registry order.
func (r *Registry) Types() []EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EntityType, len(r.ordered))
	for i, rt := range r.ordered {
		out[i] = rt.typ
	}
	return out
}

// AllocateID issues a fresh identifier for t.
func (r *Registry) AllocateID(t EntityType) (EntityID, error) {
	rt, ok := r.lookup(t)
	if !ok {
		return EntityID{}, &SchemaError{Schema: t.Name, Reason: "type not registered"}
	}
	return EntityID{Type: t, Instance: rt.next.Add(1)}, nil
}

// Reserve advances the instance counter of id's type past id so that later
// allocations never alias an externally restored entity.
func (r *Registry) Reserve(id EntityID) error {
	rt, ok := r.lookup(id.Type)
	if !ok {
		return &SchemaError{Schema: id.Type.Name, Reason: "type not registered"}
	}
	for {
		cur := rt.next.Load()
		if cur >= id.Instance || rt.next.CompareAndSwap(cur, id.Instance) {
			return nil
		}
	}
}

// CanonicalID resolves the generation of an identifier decoded by name.
func (r *Registry) CanonicalID(id EntityID) (EntityID, error) {
	t, ok := r.Lookup(id.Type.Name)
	if !ok {
		return EntityID{}, &SchemaError{Schema: id.Type.Name, Reason: "type not registered"}
	}
	return EntityID{Type: t, Instance: id.Instance}, nil
}

// CanonicalFields resolves every reference inside fields, see CanonicalID.
func (r *Registry) CanonicalFields(fields Fields) (Fields, error) {
	out := make(Fields, len(fields))
	for name, v := range fields {
		switch val := v.(type) {
		case Ref:
			id, err := r.CanonicalID(EntityID(val))
			if err != nil {
				return nil, err
			}
			out[name] = Ref(id)
		case Refs:
			ids := make(Refs, len(val))
			for i, raw := range val {
				id, err := r.CanonicalID(raw)
				if err != nil {
					return nil, err
				}
				ids[i] = id
			}
			out[name] = ids
		default:
			out[name] = CloneValue(v)
		}
	}
	return out, nil
}

// CanonicalEntity resolves the identifiers of a decoded entity.
func (r *Registry) CanonicalEntity(e Entity) (Entity, error) {
	id, err := r.CanonicalID(e.id)
	if err != nil {
		return Entity{}, err
	}
	fields, err := r.CanonicalFields(e.fields)
	if err != nil {
		return Entity{}, err
	}
	return Entity{id: id, source: e.source, fields: fields}, nil
}

// CheckFields validates fields against the schema of t.
func (r *Registry) CheckFields(t EntityType, fields Fields) error {
	schema, ok := r.Schema(t)
	if !ok {
		return &SchemaError{Schema: t.Name, Reason: "type not registered"}
	}
	for name, v := range fields {
		spec, ok := schema.Field(name)
		if !ok {
			return &FieldError{Type: t, Field: name, Reason: "unknown field"}
		}
		if err := r.checkValue(t, spec, v); err != nil {
			return err
		}
	}
	// Required references are checked at commit so both endpoints can be
	// created in the same session.
	for _, spec := range schema.Fields {
		if !spec.Required {
			continue
		}
		if _, ok := fields[spec.Name]; !ok {
			return &FieldError{Type: t, Field: spec.Name, Reason: "required field missing"}
		}
	}
	return nil
}

func (r *Registry) checkValue(t EntityType, spec FieldSpec, v Value) error {
	if v == nil {
		return &FieldError{Type: t, Field: spec.Name, Reason: "nil value"}
	}
	mismatch := func() error {
		return &FieldError{Type: t, Field: spec.Name, Reason: fmt.Sprintf("expected %s, got %s", spec.Kind, v.Kind())}
	}
	switch val := v.(type) {
	case String, Int, Bool, Strings:
		if v.Kind() != spec.Kind {
			return mismatch()
		}
	case Variant:
		if spec.Kind != KindVariant {
			return mismatch()
		}
		return checkVariant(t, spec, val)
	case Variants:
		if spec.Kind != KindVariantList {
			return mismatch()
		}
		for _, item := range val {
			if err := checkVariant(t, spec, item); err != nil {
				return err
			}
		}
	case Ref:
		if spec.Kind != KindReference || spec.Cardinality.Many() {
			return &FieldError{Type: t, Field: spec.Name, Reason: "single reference not allowed here"}
		}
		return r.checkTarget(t, spec, EntityID(val))
	case Refs:
		if spec.Kind != KindReference || !spec.Cardinality.Many() {
			return &FieldError{Type: t, Field: spec.Name, Reason: "reference list not allowed here"}
		}
		seen := make(map[EntityID]struct{}, len(val))
		for _, id := range val {
			if _, dup := seen[id]; dup {
				return &FieldError{Type: t, Field: spec.Name, Reason: "duplicate reference " + id.String()}
			}
			seen[id] = struct{}{}
			if err := r.checkTarget(t, spec, id); err != nil {
				return err
			}
		}
	default:
		panic(fmt.Sprintf("domain: unhandled value %T", v))
	}
	return nil
}

func (r *Registry) checkTarget(t EntityType, spec FieldSpec, id EntityID) error {
	if id.Type.Name != spec.Target {
		return &FieldError{Type: t, Field: spec.Name, Reason: fmt.Sprintf("reference to %s, want %s", id.Type.Name, spec.Target)}
	}
	if _, ok := r.lookup(id.Type); !ok {
		return &FieldError{Type: t, Field: spec.Name, Reason: "reference to unregistered type generation"}
	}
	return nil
}

func checkVariant(t EntityType, spec FieldSpec, v Variant) error {
	if !spec.allowsVariant(v.Tag) {
		return &FieldError{Type: t, Field: spec.Name, Reason: "variant " + v.Tag + " outside closed set"}
	}
	for name, payload := range v.Fields {
		switch payload.(type) {
		case nil:
			return &FieldError{Type: t, Field: spec.Name + "." + name, Reason: "nil value"}
		case String, Int, Bool, Strings:
		case Ref, Refs, Variant, Variants:
			return &FieldError{Type: t, Field: spec.Name + "." + name, Reason: "variant payloads hold scalars only"}
		default:
			panic(fmt.Sprintf("domain: unhandled value %T", payload))
		}
	}
	return nil
}
