package badger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspacemodel/internal/infra/persistence/memory"
	"workspacemodel/pkg/domain"
	"workspacemodel/pkg/workspace"
)

var src = domain.EntitySource{Kind: "test"}

func openStore(t *testing.T, cfg Config) (*Store, workspace.Types) {
	t.Helper()
	reg, types := workspace.NewRegistry()
	store, err := NewStore(context.Background(), cfg, reg, nil)
	require.NoError(t, err)
	return store, types
}

func entityKeys(t *testing.T, s *Store) []string {
	t.Helper()
	var keys []string
	require.NoError(t, s.DB().View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: entityPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	}))
	return keys
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestCommitsAreMirrored(t *testing.T) {
	ctx := context.Background()
	store, types := openStore(t, InMemoryConfig())
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
	assert.Len(t, entityKeys(t, store), 2)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.RemoveEntity(drop.ID())
		return err
	})
	require.NoError(t, err)
	keys := entityKeys(t, store)
	require.Len(t, keys, 1)
	assert.NotEqual(t, "entity/"+drop.ID().String(), keys[0])

	st, err := loadState(store.DB())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.Version)
	assert.Len(t, st.Entities, 1)
}

func TestStoreReloadsFromDisk(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "badger")
	cfg.GCInterval = 0
	store, types := openStore(t, cfg)

	var module domain.Entity
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		if module, err = workspace.NewModule(tx, types, src, "app", "JAVA_MODULE"); err != nil {
			return err
		}
		_, err = workspace.AddContentRoot(tx, types, src, module.ID(), "file:///app")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reloaded, _ := openStore(t, cfg)
	t.Cleanup(func() { _ = reloaded.Close() })
	assert.Equal(t, uint64(1), reloaded.Current().Version())
	assert.Equal(t, 2, reloaded.Current().Len())
	got, ok := reloaded.Current().Get(module.ID())
	require.True(t, ok)
	name, _ := got.Field(workspace.FieldName)
	assert.Equal(t, domain.String("app"), name)
}

func TestImportStateReplacesKeys(t *testing.T) {
	ctx := context.Background()
	store, types := openStore(t, InMemoryConfig())
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
	assert.Equal(t, []string{"entity/Library#7"}, entityKeys(t, store))

	st, err := loadState(store.DB())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), st.Version)
}
