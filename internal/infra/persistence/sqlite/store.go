// Package sqlite mirrors the in-memory workspace store into an embedded
// SQLite file. Every committed diff is written as row upserts and deletes in
// one SQL transaction before the snapshot is published.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"workspacemodel/internal/infra/persistence/codec"
	"workspacemodel/internal/infra/persistence/memory"
	"workspacemodel/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "workspace.db"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		payload BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type)`,
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	)`,
}

// Store is a memory.Store whose commits are mirrored to SQLite.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path and restores the
// saved state into a fresh memory store.
func NewStore(ctx context.Context, path string, registry *domain.Registry, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
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
			return nil, fmt.Errorf("restore %s: %w", path, err)
		}
	}
	mem.AttachMirror(mirror{db: db})
	mem.Logger().Debug("sqlite store opened", "path", path, "version", mem.Current().Version(), "entities", mem.Current().Len())
	return &Store{Store: mem, db: db, path: path}, nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func loadState(ctx context.Context, db *sql.DB) (memory.State, error) {
	var version int64
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'version'`).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return memory.State{}, fmt.Errorf("select version: %w", err)
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
			return memory.State{}, fmt.Errorf("scan: %w", err)
		}
		payloads = append(payloads, p)
	}
	if err := rows.Err(); err != nil {
		return memory.State{}, fmt.Errorf("iterate entities: %w", err)
	}
	return codec.Collect(uint64(version), payloads)
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

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

func (m mirror) write(ctx context.Context, version uint64, rows []codec.Row, truncate bool) (retErr error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if truncate {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities`); err != nil {
			return fmt.Errorf("truncate entities: %w", err)
		}
	}
	for _, r := range rows {
		if r.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, r.Key); err != nil {
				return fmt.Errorf("delete %s: %w", r.Key, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO entities(id,type,payload) VALUES(?,?,?) ON CONFLICT(id) DO UPDATE SET type=excluded.type, payload=excluded.payload`, r.Key, r.Type, r.Payload); err != nil {
			return fmt.Errorf("upsert %s: %w", r.Key, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO meta(key,value) VALUES('version',?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, int64(version)); err != nil {
		return fmt.Errorf("upsert version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
