package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspacemodel/internal/infra/persistence/memory"
	"workspacemodel/pkg/domain"
)

var moduleType = domain.EntityType{Name: "Module", Generation: 1}

func module(instance uint64, name string) domain.Entity {
	return domain.NewEntity(domain.EntityID{Type: moduleType, Instance: instance}, domain.EntitySource{Kind: "test"},
		domain.Fields{"name": domain.String(name)})
}

func TestDiffRowsKeepsOrderAndMarksDeletes(t *testing.T) {
	a, b := module(1, "a"), module(2, "b")
	rows, err := DiffRows(domain.Diff{Changes: []domain.Change{
		{Action: domain.ActionAdded, ID: a.ID(), After: a},
		{Action: domain.ActionRemoved, ID: b.ID(), Before: b},
	}})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Module#1", rows[0].Key)
	assert.Equal(t, "Module", rows[0].Type)
	assert.False(t, rows[0].Delete)
	assert.NotEmpty(t, rows[0].Payload)

	assert.Equal(t, Row{Key: "Module#2", Type: "Module", Delete: true}, rows[1])
}

func TestStateRowsAndCollect(t *testing.T) {
	st := memory.State{Version: 3, Entities: []domain.Entity{module(1, "a"), module(2, "b")}}
	rows, err := StateRows(st)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	payloads := make([][]byte, 0, len(rows))
	for _, r := range rows {
		payloads = append(payloads, r.Payload)
	}
	back, err := Collect(st.Version, payloads)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), back.Version)
	require.Len(t, back.Entities, 2)
	assert.Equal(t, "b", back.Entities[1].Text("name"))
	assert.Equal(t, "Module#2", back.Entities[1].ID().String())
}

func TestCollectRejectsCorruptPayload(t *testing.T) {
	_, err := Collect(1, [][]byte{[]byte(`{"id":`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode entity")
}

func TestEmpty(t *testing.T) {
	assert.True(t, Empty(memory.State{}))
	assert.False(t, Empty(memory.State{Version: 1}))
	assert.False(t, Empty(memory.State{Entities: []domain.Entity{module(1, "a")}}))
}
