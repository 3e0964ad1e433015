package indexdb

import "database/sql"

func (db *DB) SetMeta(key, value string) error {
	_, err := db.sql.Exec(`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

func (db *DB) GetMeta(key string) (string, bool, error) {
	var v string
	err := db.sql.QueryRow(`SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	return v, err == nil, err
}

func (db *DB) AppendScanHistory(tsUnix int64) error {
	_, err := db.sql.Exec(`INSERT INTO scan_history (ts) VALUES (?)`, tsUnix)
	return err
}

func (db *DB) RecentScanHistory(n int) ([]int64, error) {
	rows, err := db.sql.Query(`SELECT ts FROM scan_history ORDER BY ts DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}
