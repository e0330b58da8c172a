package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspacemodel/internal/infra/persistence/memory"
	"workspacemodel/pkg/domain"
	"workspacemodel/pkg/workspace"
)

var src = domain.EntitySource{Kind: "test"}

func open(t *testing.T, path string) (*Store, workspace.Types) {
	t.Helper()
	reg, types := workspace.NewRegistry()
	store, err := NewStore(context.Background(), path, reg, nil)
	require.NoError(t, err)
	return store, types
}

func countRows(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM entities`).Scan(&n))
	return n
}

func TestStorePersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, types := open(t, path)

	var module, content domain.Entity
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		if module, err = workspace.NewModule(tx, types, src, "app", "JAVA_MODULE", workspace.InheritedSdkDependency{}); err != nil {
			return err
		}
		content, err = workspace.AddContentRoot(tx, types, src, module.ID(), "file:///app")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countRows(t, store))
	require.NoError(t, store.Close())

	reloaded, _ := open(t, path)
	t.Cleanup(func() { _ = reloaded.Close() })
	snap := reloaded.Current()
	assert.Equal(t, uint64(1), snap.Version())
	assert.Equal(t, 2, snap.Len())
	owner, ok := snap.Owner(content.ID())
	require.True(t, ok)
	assert.Equal(t, module.ID(), owner.Owner)
	got, ok := snap.Get(module.ID())
	require.True(t, ok)
	deps, err := workspace.Dependencies(got)
	require.NoError(t, err)
	assert.Equal(t, []workspace.DependencyItem{workspace.InheritedSdkDependency{}}, deps)
}

func TestStoreWritesOnlyDiffRows(t *testing.T) {
	ctx := context.Background()
	store, types := open(t, filepath.Join(t.TempDir(), "state.db"))
	t.Cleanup(func() { _ = store.Close() })

	var keep, drop domain.Entity
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		if keep, err = workspace.NewModule(tx, types, src, "keep", ""); err != nil {
			return err
		}
		drop, err = workspace.NewModule(tx, types, src, "drop", "")
		return err
	})
	require.NoError(t, err)

	// Rewrite the untouched row behind the store's back; a diff-only writer
	// leaves it alone.
	_, err = store.DB().Exec(`UPDATE entities SET type = 'marker' WHERE id = ?`, keep.ID().String())
	require.NoError(t, err)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.RemoveEntity(drop.ID())
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, store))

	var typ string
	require.NoError(t, store.DB().QueryRow(`SELECT type FROM entities WHERE id = ?`, keep.ID().String()).Scan(&typ))
	assert.Equal(t, "marker", typ)
}

func TestRejectedCommitWritesNothing(t *testing.T) {
	ctx := context.Background()
	store, types := open(t, filepath.Join(t.TempDir(), "state.db"))
	t.Cleanup(func() { _ = store.Close() })

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.AddEntity(types.SourceRoot, src, domain.Fields{
			workspace.FieldURL:      domain.String("file:///loose"),
			workspace.FieldRootType: domain.String("java-source"),
		})
		return err
	})
	var ive *domain.IntegrityViolationError
	require.ErrorAs(t, err, &ive)
	assert.Equal(t, 0, countRows(t, store))
}

func TestImportStateReplacesRows(t *testing.T) {
	ctx := context.Background()
	store, types := open(t, filepath.Join(t.TempDir(), "state.db"))
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
	assert.Equal(t, 1, countRows(t, store))

	var version int64
	require.NoError(t, store.DB().QueryRow(`SELECT value FROM meta WHERE key = 'version'`).Scan(&version))
	assert.Equal(t, int64(5), version)
}
