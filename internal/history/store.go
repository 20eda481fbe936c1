// Package history persists tag snapshots per source in SQLite, so change
// detection can compare against the last import even after a restart.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/HendryAvila/tanagraph/internal/tags"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// DBFile is the database file name inside the data directory.
const DBFile = "history.db"

// ─── Types ───────────────────────────────────────────────────────────────────

// Snapshot is one recorded tag list. Tags is only populated by Latest.
type Snapshot struct {
	ID          string     `json:"id"`
	SourceKey   string     `json:"source_key"`
	WorkspaceID string     `json:"workspace_id"`
	TakenAt     time.Time  `json:"taken_at"`
	TagCount    int        `json:"tag_count"`
	Tags        []tags.Tag `json:"tags,omitempty"`
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds history store configuration.
type Config struct {
	DataDir string
	// Keep is the number of snapshots retained per source after Record.
	// Zero keeps everything.
	Keep int
}

// DefaultConfig returns the default configuration for the history store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir: filepath.Join(home, ".tanagraph"),
		Keep:    20,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the snapshot history backed by SQLite.
type Store struct {
	db    *sql.DB
	cfg   Config
	hooks storeHooks
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type storeHooks struct {
	exec    func(db execer, query string, args ...any) (sql.Result, error)
	beginTx func(db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func (s *Store) execHook(db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(db, query, args...)
	}
	return db.Exec(query, args...)
}

func (s *Store) beginTxHook() (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(s.db)
	}
	return s.db.Begin()
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// New creates the data directory if needed, opens SQLite in WAL mode and
// runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("history: create data dir: %w", err)
	}

	// foreign_keys is per connection, so it goes in the DSN.
	dsn := filepath.Join(cfg.DataDir, DBFile) + "?_pragma=foreign_keys(1)"
	db, err := openDB("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			id           TEXT    NOT NULL UNIQUE,
			source_key   TEXT    NOT NULL,
			workspace_id TEXT    NOT NULL,
			taken_at     TEXT    NOT NULL,
			tag_count    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_snap_source ON snapshots(source_key, seq DESC);

		CREATE TABLE IF NOT EXISTS snapshot_tags (
			snapshot_id  TEXT    NOT NULL,
			position     INTEGER NOT NULL,
			tag_id       TEXT    NOT NULL,
			name         TEXT    NOT NULL,
			description  TEXT    NOT NULL DEFAULT '',
			usage_count  INTEGER NOT NULL DEFAULT 0,
			field_count  INTEGER NOT NULL DEFAULT 0,
			parent_ids   TEXT    NOT NULL DEFAULT '[]',
			implicit     INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (snapshot_id, position),
			FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
		);
	`
	_, err := s.execHook(s.db, schema)
	return err
}

// ─── Snapshots ───────────────────────────────────────────────────────────────

// Record stores a tag list as the newest snapshot of sourceKey and prunes
// older snapshots beyond Config.Keep.
func (s *Store) Record(sourceKey, workspaceID string, list []tags.Tag) (*Snapshot, error) {
	snap := &Snapshot{
		ID:          uuid.New().String(),
		SourceKey:   sourceKey,
		WorkspaceID: workspaceID,
		TakenAt:     timeNow().UTC(),
		TagCount:    len(list),
	}

	tx, err := s.beginTxHook()
	if err != nil {
		return nil, fmt.Errorf("history: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.execHook(tx,
		`INSERT INTO snapshots (id, source_key, workspace_id, taken_at, tag_count) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, sourceKey, workspaceID, snap.TakenAt.Format(time.RFC3339Nano), snap.TagCount,
	); err != nil {
		return nil, fmt.Errorf("history: insert snapshot: %w", err)
	}

	for i, t := range list {
		parents, err := json.Marshal(nonNil(t.ParentTagIDs))
		if err != nil {
			return nil, fmt.Errorf("history: encode parents: %w", err)
		}
		if _, err := s.execHook(tx,
			`INSERT INTO snapshot_tags (snapshot_id, position, tag_id, name, description, usage_count, field_count, parent_ids, implicit)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, i, t.ID, t.Name, t.Description, t.UsageCount, t.FieldCount, string(parents), boolInt(t.Implicit),
		); err != nil {
			return nil, fmt.Errorf("history: insert tag %q: %w", t.ID, err)
		}
	}

	if err := s.commitHook(tx); err != nil {
		return nil, fmt.Errorf("history: commit: %w", err)
	}

	if s.cfg.Keep > 0 {
		if _, err := s.Prune(sourceKey, s.cfg.Keep); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// Latest returns the newest snapshot of sourceKey with its tags, or nil
// when none was recorded.
func (s *Store) Latest(sourceKey string) (*Snapshot, error) {
	row := s.db.QueryRow(
		`SELECT id, source_key, workspace_id, taken_at, tag_count FROM snapshots
		 WHERE source_key = ? ORDER BY seq DESC LIMIT 1`, sourceKey)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: latest snapshot: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT tag_id, name, description, usage_count, field_count, parent_ids, implicit
		 FROM snapshot_tags WHERE snapshot_id = ? ORDER BY position`, snap.ID)
	if err != nil {
		return nil, fmt.Errorf("history: snapshot tags: %w", err)
	}
	defer rows.Close()

	snap.Tags = make([]tags.Tag, 0, snap.TagCount)
	for rows.Next() {
		var t tags.Tag
		var parents string
		var implicit int
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.UsageCount, &t.FieldCount, &parents, &implicit); err != nil {
			return nil, fmt.Errorf("history: scan tag: %w", err)
		}
		if err := json.Unmarshal([]byte(parents), &t.ParentTagIDs); err != nil {
			return nil, fmt.Errorf("history: decode parents of %q: %w", t.ID, err)
		}
		if len(t.ParentTagIDs) == 0 {
			t.ParentTagIDs = nil
		}
		t.Implicit = implicit != 0
		snap.Tags = append(snap.Tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate tags: %w", err)
	}
	return snap, nil
}

// List returns the snapshots of sourceKey, newest first, without tags.
func (s *Store) List(sourceKey string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, source_key, workspace_id, taken_at, tag_count FROM snapshots
		 WHERE source_key = ? ORDER BY seq DESC LIMIT ?`, sourceKey, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scan snapshot: %w", err)
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep snapshots of sourceKey and returns
// how many were removed.
func (s *Store) Prune(sourceKey string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.execHook(s.db,
		`DELETE FROM snapshots WHERE source_key = ? AND seq NOT IN (
			SELECT seq FROM snapshots WHERE source_key = ? ORDER BY seq DESC LIMIT ?
		)`, sourceKey, sourceKey, keep)
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(sc scanner) (*Snapshot, error) {
	var snap Snapshot
	var taken string
	if err := sc.Scan(&snap.ID, &snap.SourceKey, &snap.WorkspaceID, &taken, &snap.TagCount); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, taken)
	if err != nil {
		return nil, fmt.Errorf("parse taken_at %q: %w", taken, err)
	}
	snap.TakenAt = t
	return &snap, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
