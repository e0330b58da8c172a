// Package codec maps snapshots and diffs onto the keyed rows written by the
// durable mirrors. One row holds one entity as JSON; the key is the entity
// id in its "Type#instance" form.
package codec

import (
	"encoding/json"
	"fmt"

	"workspacemodel/internal/infra/persistence/memory"
	"workspacemodel/pkg/domain"
)

// Row is one pending write. Delete rows carry no payload.
type Row struct {
	Key     string
	Type    string
	Payload []byte
	Delete  bool
}

// Key returns the row key of id.
func Key(id domain.EntityID) string { return id.String() }

// Encode serialises an entity.
func Encode(e domain.Entity) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.ID(), err)
	}
	return data, nil
}

// Decode parses an entity payload. Identifiers are canonicalised later,
// when the state is restored against a registry.
func Decode(payload []byte) (domain.Entity, error) {
	var e domain.Entity
	if err := json.Unmarshal(payload, &e); err != nil {
		return domain.Entity{}, fmt.Errorf("decode entity: %w", err)
	}
	return e, nil
}

// DiffRows converts a diff into writes, preserving diff order.
func DiffRows(diff domain.Diff) ([]Row, error) {
	rows := make([]Row, 0, diff.Len())
	for _, c := range diff.Changes {
		if c.Action == domain.ActionRemoved {
			rows = append(rows, Row{Key: Key(c.ID), Type: c.ID.Type.Name, Delete: true})
			continue
		}
		payload, err := Encode(c.After)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{Key: Key(c.ID), Type: c.ID.Type.Name, Payload: payload})
	}
	return rows, nil
}

// StateRows converts a full state into upserts.
func StateRows(st memory.State) ([]Row, error) {
	rows := make([]Row, 0, len(st.Entities))
	for _, e := range st.Entities {
		payload, err := Encode(e)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{Key: Key(e.ID()), Type: e.Type().Name, Payload: payload})
	}
	return rows, nil
}

// Collect assembles a state from decoded payloads.
func Collect(version uint64, payloads [][]byte) (memory.State, error) {
	st := memory.State{Version: version, Entities: make([]domain.Entity, 0, len(payloads))}
	for _, p := range payloads {
		e, err := Decode(p)
		if err != nil {
			return memory.State{}, err
		}
		st.Entities = append(st.Entities, e)
	}
	return st, nil
}

// Empty reports whether st holds nothing worth importing.
func Empty(st memory.State) bool {
	return st.Version == 0 && len(st.Entities) == 0
}
