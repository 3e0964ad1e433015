package indexdb

// MatchCount returns the count of FTS rows matching an FTS5 MATCH
// expression — cheap because it touches only the FTS index, no joins,
// no chunk reads. This count can overcount relative to live lines
// when stale FTS rows exist.
func (db *DB) MatchCount(matchExpr string) (int, error) {
	var n int
	err := db.sql.QueryRow(`SELECT count(*) FROM lines_fts WHERE lines_fts MATCH ?`, matchExpr).Scan(&n)
	return n, err
}

// MatchCandidates returns up to limit line ids matching the FTS5
// expression, ordered by rowid.
func (db *DB) MatchCandidates(matchExpr string, limit int) ([]int64, error) {
	rows, err := db.sql.Query(`SELECT rowid FROM lines_fts WHERE lines_fts MATCH ? LIMIT ?`, matchExpr, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllLineIDs streams every live line id for a source, for the LIKE
// fallback path used on sub-trigram queries, which cannot use the
// FTS index at all.
func (db *DB) AllLineIDs(limit int) ([]int64, error) {
	rows, err := db.sql.Query(`SELECT id FROM lines ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LiveLineCount is the exact count of (non-stale) line rows. The
// search scan fallback does not use it; it reports its matched count.
func (db *DB) LiveLineCount() (int, error) {
	var n int
	err := db.sql.QueryRow(`SELECT count(*) FROM lines`).Scan(&n)
	return n, err
}
