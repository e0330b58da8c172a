package core

import (
	"context"
	"fmt"
	"log/slog"

	"workspacemodel/internal/config"
	badgerstore "workspacemodel/internal/infra/persistence/badger"
	"workspacemodel/internal/infra/persistence/memory"
	"workspacemodel/internal/infra/persistence/postgres"
	"workspacemodel/internal/infra/persistence/sqlite"
	"workspacemodel/pkg/domain"
)

// StorageDriver identifies a persistent store implementation.
type StorageDriver string

// Storage drivers.
const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageBadger   StorageDriver = "badger"   // embedded badger key-value store
)

// Backend is a persistent store together with the snapshot access the
// command line tools need.
type Backend interface {
	domain.PersistentStore
	Current() *memory.Snapshot
	ExportState() memory.State
	OnCommit(fn func(memory.CommitEvent))
	Close() error
}

type memoryBackend struct {
	*memory.Store
}

func (memoryBackend) Close() error { return nil }

// OpenPersistentStore opens the store selected by cfg.Driver. Durable
// drivers load their saved state before returning.
func OpenPersistentStore(ctx context.Context, cfg config.Storage, registry *domain.Registry, engine *domain.RulesEngine, logger *slog.Logger) (Backend, error) {
	opts := []memory.Option{memory.WithLogger(logger)}
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageMemory
	}
	switch driver {
	case StorageMemory:
		return memoryBackend{memory.NewStore(registry, engine, opts...)}, nil
	case StorageSQLite:
		s, err := sqlite.NewStore(ctx, cfg.SQLitePath, registry, engine, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoragePostgres:
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN, registry, engine, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StorageBadger:
		bcfg := badgerstore.DefaultConfig()
		bcfg.Path = cfg.BadgerPath
		bcfg.InMemory = cfg.BadgerInMemory
		bcfg.Logger = logger
		s, err := badgerstore.NewStore(ctx, bcfg, registry, engine, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
