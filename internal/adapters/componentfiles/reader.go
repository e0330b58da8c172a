package componentfiles

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"workspacemodel/internal/blob"
	"workspacemodel/internal/core"
)

// Reader loads component states written by a Writer.
type Reader struct {
	store    blob.Store
	splitter Splitter
	logger   *slog.Logger
}

// NewReader returns a reader over store.
func NewReader(store blob.Store, opts ...Option) *Reader {
	o := resolve(opts)
	return &Reader{store: store, splitter: o.splitter, logger: o.logger}
}

// Load parses the directory of component. The boolean is false when the
// directory holds nothing but blank files. Sub-states come back ordered by
// file key.
func (r *Reader) Load(ctx context.Context, component string) (core.ComponentState, bool, error) {
	infos, err := r.store.List(ctx, r.splitter.Dir(component))
	if err != nil {
		return core.ComponentState{}, false, err
	}
	var (
		state core.ComponentState
		found bool
	)
	mainKey := r.splitter.MainKey(component)
	for _, info := range infos {
		data, err := r.read(ctx, info.Key)
		if err != nil {
			return core.ComponentState{}, false, err
		}
		doc, ok, err := parseFile(data)
		if err != nil {
			return core.ComponentState{}, false, fmt.Errorf("%s: %w", info.Key, err)
		}
		if !ok {
			r.logger.Debug("skipping empty component file", "key", info.Key)
			continue
		}
		found = true
		for _, child := range doc.Children {
			name, attrs := child.split()
			switch {
			case info.Key == mainKey && child.XMLName.Local == rootTag:
				state.Attributes = attrs
				state.Body = child.body()
			case child.XMLName.Local == r.splitter.SubStateTag:
				state.SubStates = append(state.SubStates, core.SubState{Name: name, Attributes: attrs, Body: child.body()})
			default:
				r.logger.Warn("unexpected element in component file", "key", info.Key, "element", child.XMLName.Local)
			}
		}
	}
	return state, found, nil
}

func (r *Reader) read(ctx context.Context, key string) ([]byte, error) {
	_, rc, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}
