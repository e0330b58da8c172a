package integration

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspacemodel/internal/adapters/componentfiles"
	"workspacemodel/internal/blob"
	"workspacemodel/internal/config"
	"workspacemodel/internal/core"
	"workspacemodel/pkg/domain"
	"workspacemodel/pkg/workspace"
)

// TestIntegrationSmoke runs one write/read cycle through every in-process
// storage driver with component files mirrored to every local blob backend.
func TestIntegrationSmoke(t *testing.T) {
	storage := []struct {
		name string
		cfg  func(t *testing.T) config.Storage
	}{
		{"memory", func(*testing.T) config.Storage { return config.Storage{Driver: "memory"} }},
		{"sqlite", func(t *testing.T) config.Storage {
			return config.Storage{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "ws.db")}
		}},
		{"badger", func(*testing.T) config.Storage { return config.Storage{Driver: "badger", BadgerInMemory: true} }},
	}
	blobs := []struct {
		name string
		cfg  func(t *testing.T) config.Blob
	}{
		{"memory-blob", func(*testing.T) config.Blob { return config.Blob{Driver: "memory"} }},
		{"fs-blob", func(t *testing.T) config.Blob { return config.Blob{Driver: "fs", FSRoot: t.TempDir()} }},
	}

	for _, sv := range storage {
		for _, bv := range blobs {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				runSmoke(t, sv.cfg(t), bv.cfg(t))
			})
		}
	}
}

func runSmoke(t *testing.T, storageCfg config.Storage, blobCfg config.Blob) {
	ctx := context.Background()
	registry, types := workspace.NewRegistry()
	backend, err := core.OpenPersistentStore(ctx, storageCfg, registry, core.NewDefaultRulesEngine(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	files, err := blob.Open(ctx, blobCfg)
	require.NoError(t, err)
	writer := componentfiles.NewWriter(files, types)
	backend.OnCommit(writer.Listener(ctx))

	metrics := core.NewExpvarMetricsRecorder("")
	var traces bytes.Buffer
	tracer := core.NewJSONTracer(&traces)
	svc, err := core.NewService(backend, domain.EntitySource{Kind: "smoke"},
		core.WithMetricsRecorder(metrics),
		core.WithTracer(tracer),
	)
	require.NoError(t, err)

	_, _, err = svc.CreateLibrary(ctx, "junit", workspace.ProjectLibraryTable{}, "file:///lib/junit.jar")
	require.NoError(t, err)
	app, _, err := svc.CreateModule(ctx, "app", "JAVA_MODULE",
		workspace.LibraryDependency{Library: "junit", Table: workspace.ProjectLibraryTable{}, Scope: "TEST"})
	require.NoError(t, err)
	out, err := svc.SaveComponentState(ctx, "RunManager", &core.ComponentState{
		SubStates: []core.SubState{{Name: "app", Attributes: []string{`type="Application"`}}},
	})
	require.NoError(t, err)
	assert.False(t, out.Result.HasBlocking())

	modules, err := svc.Modules(ctx)
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, app.ID(), modules[0].ID())
	deps, err := workspace.Dependencies(modules[0])
	require.NoError(t, err)
	require.Equal(t, []workspace.DependencyItem{
		workspace.LibraryDependency{Library: "junit", Table: workspace.ProjectLibraryTable{}, Scope: "TEST"},
	}, deps)

	state, found, err := componentfiles.NewReader(files).Load(ctx, "RunManager")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, state.SubStates, 1)
	assert.Equal(t, []string{`type="Application"`}, state.SubStates[0].Attributes)

	snapshot := metrics.Snapshot()
	assert.Equal(t, int64(1), snapshot.Results[core.OpCreateModule]["success"])
	assert.NotZero(t, traces.Len())
	var sawSave bool
	for _, entry := range tracer.Entries() {
		if entry.Operation == core.OpSaveComponentState && entry.Status == "success" {
			sawSave = true
		}
	}
	assert.True(t, sawSave, "expected a trace entry for %s", core.OpSaveComponentState)
}
