package indexdb

// Stats is the per-source summary behind the admin views.
type Stats struct {
	FileCount    int
	TotalSize    int64
	ByKind       map[string]int
	ErrorCount   int
	ScanHistory  []int64
}

func (db *DB) Stats() (Stats, error) {
	s := Stats{ByKind: map[string]int{}}

	if err := db.sql.QueryRow(`SELECT count(*), COALESCE(sum(size),0) FROM files WHERE canonical_file_id IS NULL`).Scan(&s.FileCount, &s.TotalSize); err != nil {
		return s, err
	}

	rows, err := db.sql.Query(`SELECT kind, count(*) FROM files WHERE canonical_file_id IS NULL GROUP BY kind`)
	if err != nil {
		return s, err
	}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			rows.Close()
			return s, err
		}
		s.ByKind[kind] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return s, err
	}

	if s.ErrorCount, err = db.CountIndexingErrors(); err != nil {
		return s, err
	}
	if s.ScanHistory, err = db.RecentScanHistory(20); err != nil {
		return s, err
	}
	return s, nil
}

// DirEntry is one immediate child under a directory-listing prefix.
type DirEntry struct {
	Name  string // immediate child name, directories end in "/"
	IsDir bool
	Kind  string
	Size  int64
	MTime int64
}

// ListChildren returns each immediate child (dir or file) under
// prefix, which must be empty (root) or end in "/".
func (db *DB) ListChildren(prefix string) ([]DirEntry, error) {
	rows, err := db.sql.Query(`SELECT path, kind, size, mtime FROM files WHERE path LIKE ? ESCAPE '\' AND canonical_file_id IS NULL`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := map[string]*DirEntry{}
	var order []string
	for rows.Next() {
		var path, kind string
		var size, mtime int64
		if err := rows.Scan(&path, &kind, &size, &mtime); err != nil {
			return nil, err
		}
		rest := path[len(prefix):]
		if rest == "" {
			continue
		}
		slash := indexByte(rest, '/')
		if slash < 0 {
			if _, ok := seen[rest]; !ok {
				seen[rest] = &DirEntry{Name: rest, Kind: kind, Size: size, MTime: mtime}
				order = append(order, rest)
			}
			continue
		}
		dirName := rest[:slash+1]
		if _, ok := seen[dirName]; !ok {
			seen[dirName] = &DirEntry{Name: dirName, IsDir: true}
			order = append(order, dirName)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]DirEntry, 0, len(order))
	for _, name := range order {
		out = append(out, *seen[name])
	}
	return out, nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
