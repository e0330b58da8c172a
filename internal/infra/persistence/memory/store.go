// Package memory implements the workspace entity storage engine: immutable
// structurally shared snapshots, copy-on-write builder sessions, the
// reference index, commit-time integrity validation and the diff engine.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"workspacemodel/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

// CommitEvent describes a published commit.
type CommitEvent struct {
	Old  *Snapshot
	New  *Snapshot
	Diff domain.Diff
}

// Mirror is a durable copy of the store. It sees every commit before the
// commit is published; an error aborts the publish.
type Mirror interface {
	Apply(ctx context.Context, version uint64, diff domain.Diff) error
	Replace(ctx context.Context, st State) error
}

// Store serialises writers over a Handle. Reads never block.
type Store struct {
	mu        sync.Mutex
	registry  *domain.Registry
	engine    *domain.RulesEngine
	handle    *Handle
	logger    *slog.Logger
	mirror    Mirror
	listeners []func(CommitEvent)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore constructs an empty store. engine may be nil.
func NewStore(registry *domain.Registry, engine *domain.RulesEngine, opts ...Option) *Store {
	if registry == nil {
		registry = domain.NewRegistry()
	}
	s := &Store{
		registry: registry,
		engine:   engine,
		handle:   NewHandle(Empty(registry)),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the type registry.
func (s *Store) Registry() *domain.Registry { return s.registry }

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *domain.RulesEngine { return s.engine }

// Handle returns the current-snapshot handle.
func (s *Store) Handle() *Handle { return s.handle }

// Current returns the latest published snapshot.
func (s *Store) Current() *Snapshot { return s.handle.Load() }

// Logger returns the store logger.
func (s *Store) Logger() *slog.Logger { return s.logger }

// AttachMirror routes every later commit and import through m.
func (s *Store) AttachMirror(m Mirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror = m
}

// OnCommit registers fn to run after every published commit, in commit order.
func (s *Store) OnCommit(fn func(CommitEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// NewBuilder opens a session on the current snapshot.
func (s *Store) NewBuilder() *Builder {
	return NewBuilder(s.Current(), s.engine)
}

// Commit commits b and publishes the result. A builder whose base is no
// longer current fails with domain.ErrStaleSnapshot and stays open. A
// mirror failure also leaves b open, so the commit can be retried or the
// session abandoned.
func (s *Store) Commit(ctx context.Context, b *Builder) (CommitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, b)
}

func (s *Store) commitLocked(ctx context.Context, b *Builder) (CommitResult, error) {
	base := b.Base()
	if s.handle.Load() != base {
		return CommitResult{}, domain.ErrStaleSnapshot
	}
	res, err := b.prepare(ctx)
	if err != nil {
		var ive *domain.IntegrityViolationError
		if errors.As(err, &ive) {
			s.logger.Info("commit rejected", "base", base.Version(), "violations", len(ive.Result.Blocking()))
		}
		return res, err
	}
	if s.mirror != nil {
		if err := s.mirror.Apply(ctx, res.Snapshot.Version(), res.Diff); err != nil {
			s.logger.Error("mirror commit failed", "version", res.Snapshot.Version(), "error", err)
			return CommitResult{Result: res.Result}, fmt.Errorf("mirror commit: %w", err)
		}
	}
	if err := s.handle.Publish(base, res.Snapshot); err != nil {
		return CommitResult{}, err
	}
	b.state = domain.BuilderCommitted
	for _, w := range res.Result.Warnings() {
		s.logger.Warn("integrity warning", "rule", w.Rule, "entity", w.Entity.String(), "message", w.Message)
	}
	s.logger.Debug("commit published", "version", res.Snapshot.Version(), "changes", res.Diff.Len())
	event := CommitEvent{Old: base, New: res.Snapshot, Diff: res.Diff}
	for _, fn := range s.listeners {
		fn(event)
	}
	return res, nil
}

// RunInTransaction runs fn in a builder session on the current snapshot and
// commits it. An error from fn abandons the session.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := NewBuilder(s.handle.Load(), s.engine)
	if err := fn(b); err != nil {
		_ = b.Abandon()
		return domain.Outcome{}, err
	}
	res, err := s.commitLocked(ctx, b)
	if err != nil {
		if b.State() == domain.BuilderOpen {
			_ = b.Abandon()
		}
		return domain.Outcome{Result: res.Result}, err
	}
	return domain.Outcome{Version: res.Snapshot.Version(), Diff: res.Diff, Result: res.Result}, nil
}

// View runs fn against the current snapshot.
func (s *Store) View(_ context.Context, fn func(domain.SnapshotView) error) error {
	return fn(s.Current())
}

// ExportState returns the portable form of the current snapshot.
func (s *Store) ExportState() State {
	return s.Current().State()
}

// ImportState replaces the current snapshot with restored state. The import
// starts a new lineage and takes the version recorded in st, which may be
// lower than the current one. An attached mirror is replaced wholesale.
// Listeners see the structural diff from the previous snapshot.
func (s *Store) ImportState(ctx context.Context, st State) error {
	snap, _, err := Restore(ctx, s.registry, st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mirror != nil {
		if err := s.mirror.Replace(ctx, snap.State()); err != nil {
			return fmt.Errorf("mirror import: %w", err)
		}
	}
	prev := s.handle.Load()
	if snap.Version() < prev.Version() {
		s.logger.Warn("imported state is older than the current snapshot", "current", prev.Version(), "imported", snap.Version())
	}
	s.handle.current.Store(snap)
	s.logger.Debug("state imported", "version", snap.Version(), "entities", snap.Len())
	if len(s.listeners) > 0 {
		event := CommitEvent{Old: prev, New: snap, Diff: Diff(prev, snap)}
		for _, fn := range s.listeners {
			fn(event)
		}
	}
	return nil
}
