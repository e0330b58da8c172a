// Package badger mirrors the in-memory workspace store into an embedded
// BadgerDB. Entities live under "entity/<Type#n>" keys and the published
// version under "meta/version"; every commit is one badger transaction.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"workspacemodel/internal/infra/persistence/codec"
	"workspacemodel/internal/infra/persistence/memory"
	"workspacemodel/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

var (
	entityPrefix = []byte("entity/")
	versionKey   = []byte("meta/version")
)

// Config holds BadgerDB settings. Path is ignored when InMemory is set.
type Config struct {
	Path              string
	InMemory          bool
	SyncWrites        bool
	Logger            *slog.Logger
	NumVersionsToKeep int
	// GCInterval of zero disables value log GC.
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// DefaultConfig returns durable settings with periodic value log GC.
func DefaultConfig() Config {
	return Config{
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
		GCDiscardRatio:    0.5,
	}
}

// InMemoryConfig returns settings for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true, NumVersionsToKeep: 1}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens the database described by cfg.
func Open(cfg Config) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for a persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.NumVersionsToKeep > 0 {
		opts = opts.WithNumVersionsToKeep(cfg.NumVersionsToKeep)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// Store is a memory.Store whose commits are mirrored to BadgerDB.
type Store struct {
	*memory.Store
	db     *badger.DB
	stopGC chan struct{}
	gcDone chan struct{}
}

// NewStore opens the database and restores the saved state into a fresh
// memory store.
func NewStore(ctx context.Context, cfg Config, registry *domain.Registry, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	st, err := loadState(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(registry, engine, opts...)
	if !codec.Empty(st) {
		if err := mem.ImportState(ctx, st); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("restore state: %w", err)
		}
	}
	mem.AttachMirror(mirror{db: db})
	s := &Store{Store: mem, db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	mem.Logger().Debug("badger store opened", "path", cfg.Path, "in_memory", cfg.InMemory, "version", mem.Current().Version(), "entities", mem.Current().Len())
	return s, nil
}

// DB exposes the underlying database.
func (s *Store) DB() *badger.DB { return s.db }

// Close stops value log GC and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
		s.stopGC = nil
	}
	return s.db.Close()
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.Logger().Warn("badger value log gc failed", "error", err)
			}
		}
	}
}

func entityKey(key string) []byte {
	return append(append([]byte(nil), entityPrefix...), key...)
}

func encodeVersion(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func loadState(db *badger.DB) (memory.State, error) {
	var (
		version  uint64
		payloads [][]byte
	)
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(versionKey)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return fmt.Errorf("read version: %w", err)
		default:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read version: %w", err)
			}
			if len(raw) != 8 {
				return fmt.Errorf("read version: malformed value of %d bytes", len(raw))
			}
			version = binary.BigEndian.Uint64(raw)
		}
		it := txn.NewIterator(badger.IteratorOptions{Prefix: entityPrefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			p, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", it.Item().Key(), err)
			}
			payloads = append(payloads, p)
		}
		return nil
	})
	if err != nil {
		return memory.State{}, err
	}
	return codec.Collect(version, payloads)
}

type mirror struct {
	db *badger.DB
}

func (m mirror) Apply(_ context.Context, version uint64, diff domain.Diff) error {
	rows, err := codec.DiffRows(diff)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		for _, r := range rows {
			if r.Delete {
				if err := txn.Delete(entityKey(r.Key)); err != nil {
					return fmt.Errorf("delete %s: %w", r.Key, err)
				}
				continue
			}
			if err := txn.Set(entityKey(r.Key), r.Payload); err != nil {
				return fmt.Errorf("put %s: %w", r.Key, err)
			}
		}
		return txn.Set(versionKey, encodeVersion(version))
	})
}

// Replace drops every entity key and rewrites the state in a write batch;
// unlike Apply it is not atomic.
func (m mirror) Replace(_ context.Context, st memory.State) error {
	rows, err := codec.StateRows(st)
	if err != nil {
		return err
	}
	if err := m.db.DropPrefix(entityPrefix); err != nil {
		return fmt.Errorf("drop entities: %w", err)
	}
	wb := m.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range rows {
		if err := wb.Set(entityKey(r.Key), r.Payload); err != nil {
			return fmt.Errorf("put %s: %w", r.Key, err)
		}
	}
	if err := wb.Set(versionKey, encodeVersion(st.Version)); err != nil {
		return fmt.Errorf("put version: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
