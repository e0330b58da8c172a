// Package postgres mirrors the in-memory workspace store into PostgreSQL.
// Each committed diff becomes row upserts and deletes inside one database
// transaction, written before the snapshot is published.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"workspacemodel/internal/infra/persistence/codec"
	"workspacemodel/internal/infra/persistence/memory"
	"workspacemodel/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/workspace?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		payload JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_type ON entities (type)`,
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// Store is a memory.Store whose commits are mirrored to Postgres.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore connects using dsn (falling back to a local default), ensures
// the schema and restores the saved state.
func NewStore(ctx context.Context, dsn string, registry *domain.Registry, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	st, err := loadState(ctx, db)
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
	mem.Logger().Debug("postgres store opened", "version", mem.Current().Version(), "entities", mem.Current().Len())
	return &Store{Store: mem, db: db}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func applySchema(ctx context.Context, db execer) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func loadState(ctx context.Context, db *sql.DB) (memory.State, error) {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'version'`).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return memory.State{}, fmt.Errorf("select version: %w", err)
	}
	var version uint64
	if raw != "" {
		if version, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return memory.State{}, fmt.Errorf("parse version %q: %w", raw, err)
		}
	}

	rows, err := db.QueryContext(ctx, `SELECT payload FROM entities`)
	if err != nil {
		return memory.State{}, fmt.Errorf("select entities: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var payloads [][]byte
	for rows.Next() {
		var p []byte
		if err := rows.Scan(&p); err != nil {
			return memory.State{}, fmt.Errorf("scan entity: %w", err)
		}
		payloads = append(payloads, p)
	}
	if err := rows.Err(); err != nil {
		return memory.State{}, fmt.Errorf("iterate entities: %w", err)
	}
	return codec.Collect(version, payloads)
}

type mirror struct {
	db *sql.DB
}

func (m mirror) Apply(ctx context.Context, version uint64, diff domain.Diff) error {
	rows, err := codec.DiffRows(diff)
	if err != nil {
		return err
	}
	return m.write(ctx, version, rows, false)
}

func (m mirror) Replace(ctx context.Context, st memory.State) error {
	rows, err := codec.StateRows(st)
	if err != nil {
		return err
	}
	return m.write(ctx, st.Version, rows, true)
}

func (m mirror) write(ctx context.Context, version uint64, rows []codec.Row, truncate bool) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if truncate {
		if _, err := tx.ExecContext(ctx, `TRUNCATE TABLE entities`); err != nil {
			return fmt.Errorf("truncate entities: %w", err)
		}
	}
	for _, r := range rows {
		if r.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = $1`, r.Key); err != nil {
				return fmt.Errorf("delete %s: %w", r.Key, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO entities(id,type,payload) VALUES($1,$2,$3) ON CONFLICT(id) DO UPDATE SET type=EXCLUDED.type, payload=EXCLUDED.payload`, r.Key, r.Type, r.Payload); err != nil {
			return fmt.Errorf("upsert %s: %w", r.Key, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO meta(key,value) VALUES($1,$2) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value`, "version", strconv.FormatUint(version, 10)); err != nil {
		return fmt.Errorf("upsert version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
