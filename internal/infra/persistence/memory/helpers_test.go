package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"workspacemodel/pkg/domain"
)

// fixture registers a small folder tree: folders own folders and files,
// links point weakly at files and must anchor to a folder.
type fixture struct {
	reg    *domain.Registry
	file   domain.EntityType
	folder domain.EntityType
	link   domain.EntityType
}

var testSource = domain.EntitySource{Kind: "test", Location: "file:///workspace"}

func newFixture(t *testing.T) fixture {
	t.Helper()
	reg := domain.NewRegistry()
	file, err := reg.RegisterType(domain.Schema{
		Name:          "File",
		RequiresOwner: true,
		Fields: []domain.FieldSpec{
			{Name: "name", Kind: domain.KindString, Required: true},
			{Name: "size", Kind: domain.KindInt},
		},
	})
	require.NoError(t, err)
	folder, err := reg.RegisterType(domain.Schema{
		Name: "Folder",
		Fields: []domain.FieldSpec{
			{Name: "name", Kind: domain.KindString, Required: true},
			{Name: "children", Kind: domain.KindReference, Target: "Folder", Cardinality: domain.OrderedMany, Ownership: domain.Strong},
			{Name: "files", Kind: domain.KindReference, Target: "File", Cardinality: domain.OrderedMany, Ownership: domain.Strong},
		},
	})
	require.NoError(t, err)
	link, err := reg.RegisterType(domain.Schema{
		Name: "Link",
		Fields: []domain.FieldSpec{
			{Name: "target", Kind: domain.KindReference, Target: "File", Cardinality: domain.OptionalOne, Ownership: domain.Weak},
			{Name: "anchor", Kind: domain.KindReference, Target: "Folder", Cardinality: domain.RequiredOne, Ownership: domain.Weak},
		},
	})
	require.NoError(t, err)
	return fixture{reg: reg, file: file, folder: folder, link: link}
}

func (f fixture) addFolder(t *testing.T, b *Builder, name string) domain.Entity {
	t.Helper()
	e, err := b.AddEntity(f.folder, testSource, domain.Fields{"name": domain.String(name)})
	require.NoError(t, err)
	return e
}

// addFile adds a file owned by folder.
func (f fixture) addFile(t *testing.T, b *Builder, folder domain.EntityID, name string) domain.Entity {
	t.Helper()
	e, err := b.AddEntity(f.file, testSource, domain.Fields{"name": domain.String(name)})
	require.NoError(t, err)
	require.NoError(t, b.AddEdge(folder, "files", e.ID()))
	return e
}

func commit(t *testing.T, b *Builder) CommitResult {
	t.Helper()
	res, err := b.Commit(context.Background())
	require.NoError(t, err)
	return res
}

func requireViolation(t *testing.T, err error, rule string) *domain.IntegrityViolationError {
	t.Helper()
	var ive *domain.IntegrityViolationError
	require.ErrorAs(t, err, &ive)
	for _, v := range ive.Result.Blocking() {
		if v.Rule == rule {
			return ive
		}
	}
	t.Fatalf("expected blocking %s violation, got %v", rule, ive.Result.Violations)
	return nil
}
