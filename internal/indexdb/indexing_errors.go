package indexdb

import (
	"time"

	"github.com/corpusd/corpusd/internal/types"
)

// UpsertIndexingError records or refreshes a bounded failure message
// for path.
func (db *DB) UpsertIndexingError(path, msg string, now time.Time) error {
	msg = types.TruncateError(msg)
	_, err := db.sql.Exec(`
		INSERT INTO indexing_errors (path, error, first_seen, last_seen) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET error=excluded.error, last_seen=excluded.last_seen
	`, path, msg, now.Unix(), now.Unix())
	return err
}

// ClearIndexingError removes a path's failure record, called when the
// path is later upserted or explicitly deleted.
func (db *DB) ClearIndexingError(path string) error {
	_, err := db.sql.Exec(`DELETE FROM indexing_errors WHERE path=?`, path)
	return err
}

func (db *DB) CountIndexingErrors() (int, error) {
	var n int
	err := db.sql.QueryRow(`SELECT count(*) FROM indexing_errors`).Scan(&n)
	return n, err
}

// PageIndexingErrors returns a page of failures ordered by path.
func (db *DB) PageIndexingErrors(offset, limit int) ([]types.IndexingFailure, error) {
	rows, err := db.sql.Query(`SELECT path, error, first_seen, last_seen FROM indexing_errors ORDER BY path LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.IndexingFailure
	for rows.Next() {
		var f types.IndexingFailure
		var first, last int64
		if err := rows.Scan(&f.Path, &f.Error, &first, &last); err != nil {
			return nil, err
		}
		f.FirstSeen = time.Unix(first, 0).UTC()
		f.LastSeen = time.Unix(last, 0).UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}
