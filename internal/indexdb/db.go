// Package indexdb is the per-source durable index: file and line
// records plus trigram FTS and scan history. It is backed by SQLite
// through modernc.org/sqlite, a pure Go driver; FTS5's built-in
// trigram tokenizer supplies the contentless substring index, so no
// hand-rolled trigram table is needed.
package indexdb

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"regexp"

	_ "modernc.org/sqlite"

	corpuserrors "github.com/corpusd/corpusd/internal/errors"
)

// sourceNameRE constrains source names, doubling as the
// path-traversal guard: any name that doesn't match is rejected
// before it ever reaches a filesystem path.
var sourceNameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateSourceName rejects any source name that could escape
// data_dir/sources/ when used as a path component.
func ValidateSourceName(name string) error {
	if !sourceNameRE.MatchString(name) {
		return corpuserrors.New(corpuserrors.KindSourceName, "validate", name, fmt.Errorf("source name must match [A-Za-z0-9_-]+"))
	}
	return nil
}

// DB is one source's index database.
type DB struct {
	sql    *sql.DB
	Source string
}

// Path returns the on-disk path for a source's database file.
func Path(dataDir, source string) string {
	return filepath.Join(dataDir, "sources", source+".db")
}

// Open validates the source name, then opens (creating if needed) the
// SQLite database at data_dir/sources/<name>.db and ensures its schema.
func Open(dataDir, source string) (*DB, error) {
	if err := ValidateSourceName(source); err != nil {
		return nil, err
	}
	path := Path(dataDir, source)
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("indexdb: open %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1) // SQLite file locking serialises writers; one handle per task.

	db := &DB{sql: sqlDB, Source: source}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error { return db.sql.Close() }

func (db *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT UNIQUE NOT NULL,
			mtime INTEGER NOT NULL,
			size INTEGER NOT NULL,
			kind TEXT NOT NULL,
			indexed_at INTEGER NOT NULL,
			extract_ms INTEGER,
			content_hash TEXT,
			canonical_file_id INTEGER REFERENCES files(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_files_content_hash ON files(content_hash)`,
		`CREATE TABLE IF NOT EXISTS lines (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
			line_number INTEGER NOT NULL,
			chunk_archive TEXT NOT NULL,
			chunk_name TEXT NOT NULL,
			line_offset INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lines_file_id ON lines(file_id)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS lines_fts USING fts5(content, tokenize='trigram', content='')`,
		`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT)`,
		`CREATE TABLE IF NOT EXISTS scan_history (ts INTEGER NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS indexing_errors (
			path TEXT PRIMARY KEY,
			error TEXT NOT NULL,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := db.sql.Exec(s); err != nil {
			return fmt.Errorf("indexdb: migrate: %s: %w", s, err)
		}
	}
	return nil
}
