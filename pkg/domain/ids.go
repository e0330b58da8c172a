// Package domain defines the entity identifiers, schemas, values, rule
// evaluation primitives and change records shared by the workspace storage
// engine and its collaborators.
package domain

import (
	"cmp"
	"encoding/json"
	"fmt"
)

// EntityType identifies a registered schema. Generation is the registration
// ordinal inside the owning Registry and defines registry order.
type EntityType struct {
	Name       string
	Generation uint32
}

func (t EntityType) String() string { return t.Name }

// IsZero reports whether the type is unset.
func (t EntityType) IsZero() bool { return t.Name == "" }

// EntityID identifies a single entity instance. Instance numbers are issued by
// Registry.AllocateID and never reused within one registry lifetime.
type EntityID struct {
	Type     EntityType
	Instance uint64
}

func (id EntityID) String() string {
	return fmt.Sprintf("%s#%d", id.Type.Name, id.Instance)
}

// IsZero reports whether the identifier is unset.
func (id EntityID) IsZero() bool { return id.Type.IsZero() && id.Instance == 0 }

// CompareIDs orders identifiers by registry order, then by ascending instance.
func CompareIDs(a, b EntityID) int {
	if c := cmp.Compare(a.Type.Generation, b.Type.Generation); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Type.Name, b.Type.Name); c != 0 {
		return c
	}
	return cmp.Compare(a.Instance, b.Instance)
}

type entityIDJSON struct {
	Type     string `json:"type"`
	Instance uint64 `json:"instance"`
}

// MarshalJSON encodes the identifier by type name; generations are
// registry-local and are restored through Registry.CanonicalID.
func (id EntityID) MarshalJSON() ([]byte, error) {
	return json.Marshal(entityIDJSON{Type: id.Type.Name, Instance: id.Instance})
}

// UnmarshalJSON decodes an identifier with an unresolved generation.
func (id *EntityID) UnmarshalJSON(data []byte) error {
	var raw entityIDJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*id = EntityID{Type: EntityType{Name: raw.Type}, Instance: raw.Instance}
	return nil
}

// EntitySource records where an entity came from. Kind is mandatory.
type EntitySource struct {
	Kind     string `json:"kind"`
	Location string `json:"location,omitempty"`
}

// IsZero reports whether the source is unset.
func (s EntitySource) IsZero() bool { return s.Kind == "" }

func (s EntitySource) String() string {
	if s.Location == "" {
		return s.Kind
	}
	return s.Kind + ":" + s.Location
}
