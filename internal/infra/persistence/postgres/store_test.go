package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspacemodel/internal/infra/persistence/codec"
	"workspacemodel/internal/infra/persistence/memory"
	"workspacemodel/internal/infra/persistence/postgres/testutil"
	"workspacemodel/pkg/domain"
	"workspacemodel/pkg/workspace"
)

var src = domain.EntitySource{Kind: "test"}

func openStub(t *testing.T, db *sql.DB) (*Store, workspace.Types) {
	t.Helper()
	restore := OverrideSQLOpen(func(driverName, _ string) (*sql.DB, error) {
		assert.Equal(t, defaultDriver, driverName)
		return db, nil
	})
	t.Cleanup(restore)
	reg, types := workspace.NewRegistry()
	store, err := NewStore(context.Background(), "", reg, nil)
	require.NoError(t, err)
	return store, types
}

func TestNewStoreAppliesSchema(t *testing.T) {
	db, conn := testutil.NewStubDB()
	store, _ := openStub(t, db)
	t.Cleanup(func() { _ = store.Close() })

	assert.Len(t, conn.ExecsWithPrefix("CREATE TABLE"), 2)
	assert.Len(t, conn.ExecsWithPrefix("CREATE INDEX"), 1)
	assert.Equal(t, uint64(0), store.Current().Version())
	assert.Equal(t, 0, store.Current().Len())
}

func TestNewStoreLoadsSavedRows(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewStubDB()
	_, types := workspace.NewRegistry()
	module := domain.NewEntity(domain.EntityID{Type: types.Module, Instance: 3}, src, domain.Fields{
		workspace.FieldName: domain.String("app"),
	})
	payload, err := codec.Encode(module)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO entities(id,type,payload) VALUES($1,$2,$3)`, codec.Key(module.ID()), "Module", payload)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO meta(key,value) VALUES($1,$2)`, "version", "4")
	require.NoError(t, err)

	store, storeTypes := openStub(t, db)
	t.Cleanup(func() { _ = store.Close() })
	assert.Equal(t, uint64(4), store.Current().Version())
	got, ok := store.Current().Get(domain.EntityID{Type: storeTypes.Module, Instance: 3})
	require.True(t, ok)
	name, _ := got.Field(workspace.FieldName)
	assert.Equal(t, domain.String("app"), name)
	// Loading must not write the rows back.
	assert.Len(t, conn.ExecsWithPrefix("TRUNCATE"), 0)
}

func TestCommitWritesDiffRows(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewStubDB()
	store, types := openStub(t, db)
	t.Cleanup(func() { _ = store.Close() })

	var drop domain.Entity
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := workspace.NewModule(tx, types, src, "keep", ""); err != nil {
			return err
		}
		var err error
		drop, err = workspace.NewModule(tx, types, src, "drop", "")
		return err
	})
	require.NoError(t, err)
	assert.Len(t, conn.ExecsWithPrefix("INSERT INTO entities"), 2)
	assert.Len(t, conn.Rows("entities"), 2)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.RemoveEntity(drop.ID())
		return err
	})
	require.NoError(t, err)
	assert.Len(t, conn.ExecsWithPrefix("INSERT INTO entities"), 2)
	assert.Len(t, conn.ExecsWithPrefix("DELETE FROM entities"), 1)
	assert.Len(t, conn.Rows("entities"), 1)

	meta := conn.Rows("meta")
	require.Len(t, meta, 1)
	assert.Equal(t, "2", meta[0]["value"])
}

func TestFailedCommitLeavesSnapshotUnpublished(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewStubDB()
	store, types := openStub(t, db)
	t.Cleanup(func() { _ = store.Close() })

	conn.FailCommit = true
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := workspace.NewModule(tx, types, src, "app", "")
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit")
	assert.Equal(t, uint64(0), store.Current().Version())
	assert.Equal(t, 0, store.Current().Len())
}

func TestImportStateTruncates(t *testing.T) {
	ctx := context.Background()
	db, conn := testutil.NewStubDB()
	store, types := openStub(t, db)
	t.Cleanup(func() { _ = store.Close() })

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := workspace.NewModule(tx, types, src, "old", "")
		return err
	})
	require.NoError(t, err)

	lib := domain.NewEntity(domain.EntityID{Type: types.Library, Instance: 7}, src, domain.Fields{
		workspace.FieldName:    domain.String("guava"),
		workspace.FieldTableID: workspace.LibraryTableVariant(workspace.ProjectLibraryTable{}),
	})
	require.NoError(t, store.ImportState(ctx, memory.State{Version: 5, Entities: []domain.Entity{lib}}))
	assert.Len(t, conn.ExecsWithPrefix("TRUNCATE TABLE entities"), 1)
	rows := conn.Rows("entities")
	require.Len(t, rows, 1)
	assert.Equal(t, "Library#7", rows[0]["id"])
}

func TestNewStoreOpenFailures(t *testing.T) {
	reg, _ := workspace.NewRegistry()

	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("boom") })
	_, err := NewStore(context.Background(), "dsn", reg, nil)
	restore()
	require.ErrorContains(t, err, "open postgres")

	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore = OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	_, err = NewStore(context.Background(), "dsn", reg, nil)
	restore()
	require.ErrorContains(t, err, "ping postgres")

	db, conn = testutil.NewStubDB()
	conn.FailTables = map[string]bool{"entities": true}
	restore = OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	_, err = NewStore(context.Background(), "dsn", reg, nil)
	restore()
	require.ErrorContains(t, err, "select entities")
}
