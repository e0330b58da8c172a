package memory

import (
	"context"
	"sync/atomic"

	"workspacemodel/pkg/domain"
)

// Handle holds the current snapshot. Readers load it without locking;
// writers publish with compare-and-swap against the snapshot they built on.
type Handle struct {
	current atomic.Pointer[Snapshot]
}

// NewHandle returns a handle holding initial.
func NewHandle(initial *Snapshot) *Handle {
	h := &Handle{}
	h.current.Store(initial)
	return h
}

// Load returns the current snapshot.
func (h *Handle) Load() *Snapshot {
	return h.current.Load()
}

// Publish replaces base with next. It fails with domain.ErrStaleSnapshot when
// base is no longer current.
func (h *Handle) Publish(base, next *Snapshot) error {
	if !h.current.CompareAndSwap(base, next) {
		return domain.ErrStaleSnapshot
	}
	return nil
}

type handleKey struct{}

// WithHandle attaches h to ctx so reads can run against one explicit
// workspace without a process-wide singleton.
func WithHandle(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// HandleFromContext returns the handle attached by WithHandle.
func HandleFromContext(ctx context.Context) (*Handle, bool) {
	h, ok := ctx.Value(handleKey{}).(*Handle)
	return h, ok && h != nil
}
