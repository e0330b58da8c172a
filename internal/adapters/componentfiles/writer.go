package componentfiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"workspacemodel/internal/blob"
	"workspacemodel/internal/infra/persistence/memory"
	"workspacemodel/pkg/domain"
	"workspacemodel/pkg/workspace"
)

const contentType = "application/xml"

// Writer keeps a blob store in step with the component entities of a
// snapshot.
type Writer struct {
	store    blob.Store
	types    workspace.Types
	splitter Splitter
	logger   *slog.Logger
}

// Option configures a Writer or Reader.
type Option func(*options)

type options struct {
	splitter Splitter
	logger   *slog.Logger
}

// WithSplitter overrides the file naming.
func WithSplitter(s Splitter) Option {
	return func(o *options) { o.splitter = s }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func resolve(opts []Option) options {
	o := options{splitter: DefaultSplitter(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.splitter = o.splitter.withDefaults()
	return o
}

// NewWriter returns a writer over store.
func NewWriter(store blob.Store, types workspace.Types, opts ...Option) *Writer {
	o := resolve(opts)
	return &Writer{store: store, types: types, splitter: o.splitter, logger: o.logger}
}

// Apply rewrites the directories of every component touched by diff, which
// must lead from prev to next. prev may be nil. Unchanged files are not rewritten; files of
// removed or renamed components and sub-states are deleted.
func (w *Writer) Apply(ctx context.Context, prev, next domain.RuleView, diff domain.Diff) error {
	names := w.affected(prev, next, diff)
	var errs []error
	for _, name := range names {
		if err := w.sync(ctx, next, name); err != nil {
			errs = append(errs, fmt.Errorf("component %s: %w", name, err))
		}
	}
	if len(names) > 0 {
		w.logger.Debug("component files applied", "components", len(names), "errors", len(errs))
	}
	return errors.Join(errs...)
}

// Export writes every component of view.
func (w *Writer) Export(ctx context.Context, view domain.RuleView) (int, error) {
	var names []string
	for e := range view.EntitiesOfType(w.types.Component) {
		names = append(names, e.Text(workspace.FieldName))
	}
	for _, name := range names {
		if err := w.sync(ctx, view, name); err != nil {
			return 0, fmt.Errorf("component %s: %w", name, err)
		}
	}
	return len(names), nil
}

// Listener adapts Apply to memory.Store.OnCommit. Failures are logged; the
// commit has already been published.
func (w *Writer) Listener(ctx context.Context) func(memory.CommitEvent) {
	return func(ev memory.CommitEvent) {
		var prev domain.RuleView
		if ev.Old != nil {
			prev = ev.Old
		}
		if err := w.Apply(ctx, prev, ev.New, ev.Diff); err != nil {
			w.logger.Error("component files out of date", "version", ev.New.Version(), "error", err)
		}
	}
}

// affected returns the sorted names of components whose files may change.
func (w *Writer) affected(prev, next domain.RuleView, diff domain.Diff) []string {
	set := make(map[string]struct{})
	addComponent := func(view domain.RuleView, id domain.EntityID) {
		if view == nil {
			return
		}
		if e, ok := view.Get(id); ok {
			set[e.Text(workspace.FieldName)] = struct{}{}
		}
	}
	for _, c := range diff.Changes {
		switch c.ID.Type.Name {
		case workspace.ComponentType:
			if !c.Before.IsZero() {
				set[c.Before.Text(workspace.FieldName)] = struct{}{}
			}
			if !c.After.IsZero() {
				set[c.After.Text(workspace.FieldName)] = struct{}{}
			}
		case workspace.SubStateType:
			for _, view := range []domain.RuleView{prev, next} {
				if view == nil {
					continue
				}
				if edge, ok := view.Owner(c.ID); ok {
					addComponent(view, edge.Owner)
				}
			}
		}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// sync makes the directory of component name match view.
func (w *Writer) sync(ctx context.Context, view domain.RuleView, name string) error {
	desired := make(map[string][]byte)
	add := func(key, tag, stateName string, e domain.Entity) error {
		if _, dup := desired[key]; dup {
			return fmt.Errorf("%s: two states map to one file", key)
		}
		data, err := renderFile(name, tag, stateName, e.Strings(workspace.FieldAttributes), e.Text(workspace.FieldBody))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		desired[key] = data
		return nil
	}
	if component, ok := workspace.FindByName(view, w.types.Component, name); ok {
		if err := add(w.splitter.MainKey(name), rootTag, name, component); err != nil {
			return err
		}
		for _, sub := range workspace.SubStates(view, component.ID()) {
			subName := sub.Text(workspace.FieldName)
			if err := add(w.splitter.SubStateKey(name, subName), w.splitter.SubStateTag, subName, sub); err != nil {
				return err
			}
		}
	}

	existing, err := w.store.List(ctx, w.splitter.Dir(name))
	if err != nil {
		return err
	}
	for _, info := range existing {
		if _, keep := desired[info.Key]; keep {
			continue
		}
		if _, err := w.store.Delete(ctx, info.Key); err != nil {
			return fmt.Errorf("delete %s: %w", info.Key, err)
		}
	}

	keys := make([]string, 0, len(desired))
	for k := range desired {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		data := desired[key]
		same, err := w.unchanged(ctx, key, data)
		if err != nil {
			return err
		}
		if same {
			continue
		}
		if _, err := w.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: contentType}); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
	}
	return nil
}

func (w *Writer) unchanged(ctx context.Context, key string, data []byte) (bool, error) {
	_, rc, err := w.store.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	current, err := io.ReadAll(rc)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	return bytes.Equal(current, data), nil
}
