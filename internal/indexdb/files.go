package indexdb

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/corpusd/corpusd/internal/types"
)

func ensureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// UpsertFile inserts or updates a canonical or alias file row.
// canonicalFileID is nil for a canonical file. indexed_at is stamped
// with now() only on first insert.
func (db *DB) UpsertFile(rec types.FileRecord, now time.Time) (id int64, isNew bool, err error) {
	existing, err := db.GetFileByPath(rec.Path)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}
	if existing != nil {
		_, err = db.sql.Exec(
			`UPDATE files SET mtime=?, size=?, kind=?, extract_ms=?, content_hash=?, canonical_file_id=? WHERE id=?`,
			rec.MTime, rec.Size, string(rec.Kind), rec.ExtractMS, nullableStr(rec.ContentHash), rec.CanonicalFileID, existing.ID,
		)
		return existing.ID, false, err
	}
	res, err := db.sql.Exec(
		`INSERT INTO files (path, mtime, size, kind, indexed_at, extract_ms, content_hash, canonical_file_id) VALUES (?,?,?,?,?,?,?,?)`,
		rec.Path, rec.MTime, rec.Size, string(rec.Kind), now.Unix(), rec.ExtractMS, nullableStr(rec.ContentHash), rec.CanonicalFileID,
	)
	if err != nil {
		return 0, false, err
	}
	newID, err := res.LastInsertId()
	return newID, true, err
}

func nullableStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func scanFileRow(row interface{ Scan(...interface{}) error }) (*types.FileRecord, error) {
	var rec types.FileRecord
	var kind string
	var indexedAtUnix int64
	var extractMS sql.NullInt64
	var hash sql.NullString
	var canonical sql.NullInt64

	if err := row.Scan(&rec.ID, &rec.Path, &rec.MTime, &rec.Size, &kind, &indexedAtUnix, &extractMS, &hash, &canonical); err != nil {
		return nil, err
	}
	rec.Kind = types.Kind(kind)
	rec.IndexedAt = time.Unix(indexedAtUnix, 0).UTC()
	if extractMS.Valid {
		v := extractMS.Int64
		rec.ExtractMS = &v
	}
	if hash.Valid {
		rec.ContentHash = hash.String
	}
	if canonical.Valid {
		v := canonical.Int64
		rec.CanonicalFileID = &v
	}
	return &rec, nil
}

const fileCols = `id, path, mtime, size, kind, indexed_at, extract_ms, content_hash, canonical_file_id`

// GetFileByPath returns nil, sql.ErrNoRows-wrapped-nil if absent: nil,
// nil is returned instead so callers doing existence checks don't have
// to special-case sql.ErrNoRows everywhere.
func (db *DB) GetFileByPath(path string) (*types.FileRecord, error) {
	row := db.sql.QueryRow(`SELECT `+fileCols+` FROM files WHERE path=?`, path)
	rec, err := scanFileRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// FindCanonicalByHash returns the existing canonical file (no
// canonical_file_id) with the given content hash, if any.
func (db *DB) FindCanonicalByHash(hash string) (*types.FileRecord, error) {
	row := db.sql.QueryRow(`SELECT `+fileCols+` FROM files WHERE content_hash=? AND canonical_file_id IS NULL LIMIT 1`, hash)
	rec, err := scanFileRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// ListMembersUnderPrefix returns every file whose path matches
// "<outerPath>::%", for the stale-member sweep when an outer archive
// is re-indexed.
func (db *DB) ListMembersUnderPrefix(outerPath string) ([]types.FileRecord, error) {
	rows, err := db.sql.Query(`SELECT `+fileCols+` FROM files WHERE path LIKE ? ESCAPE '\'`, escapeLike(outerPath)+`::%`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.FileRecord
	for rows.Next() {
		rec, err := scanFileRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' || c == '%' || c == '_' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}

// DeleteFileByPath removes the file row; ON DELETE CASCADE removes its
// line rows. Callers must free the file's chunks from the content
// store first — this method only drops database rows.
func (db *DB) DeleteFileByPath(path string) error {
	_, err := db.sql.Exec(`DELETE FROM files WHERE path=?`, path)
	return err
}

// PathMTime is one row of the scanner's delta computation.
type PathMTime struct {
	Path  string
	MTime int64
}

// ListNonCompositePaths returns (path, mtime) for every outer file
// (paths without "::"), for the scanner's delta computation.
func (db *DB) ListNonCompositePaths() ([]PathMTime, error) {
	rows, err := db.sql.Query(`SELECT path, mtime FROM files WHERE instr(path, '::') = 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PathMTime
	for rows.Next() {
		var pm PathMTime
		if err := rows.Scan(&pm.Path, &pm.MTime); err != nil {
			return nil, err
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}
