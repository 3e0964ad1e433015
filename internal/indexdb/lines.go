package indexdb

import (
	"database/sql"

	"github.com/corpusd/corpusd/internal/types"
)

// GetLineChunkRefs returns the chunk references owned by a file's
// line rows, so the caller can free them from the content store
// before the rows themselves are replaced or deleted.
func (db *DB) GetLineChunkRefs(fileID int64) ([]types.ChunkRef, error) {
	rows, err := db.sql.Query(`SELECT chunk_archive, chunk_name, line_offset FROM lines WHERE file_id=?`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.ChunkRef
	for rows.Next() {
		var ref types.ChunkRef
		if err := rows.Scan(&ref.Archive, &ref.Chunk, &ref.Offset); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// ReplaceLines deletes any existing line rows for fileID, inserts one
// row per new line, and mirrors each line's text into the FTS table
// keyed by the new line row id. Deleting the old rows does not delete
// their FTS rows: the FTS table is contentless and has no triggers, so
// stale ids accumulate; queries stay correct because the lines join
// filters them out.
func (db *DB) ReplaceLines(tx *sql.Tx, fileID int64, lines []types.LineRecord, texts []string) error {
	if _, err := tx.Exec(`DELETE FROM lines WHERE file_id=?`, fileID); err != nil {
		return err
	}
	insertLine, err := tx.Prepare(`INSERT INTO lines (file_id, line_number, chunk_archive, chunk_name, line_offset) VALUES (?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insertLine.Close()

	insertFTS, err := tx.Prepare(`INSERT INTO lines_fts (rowid, content) VALUES (?,?)`)
	if err != nil {
		return err
	}
	defer insertFTS.Close()

	for i, ln := range lines {
		res, err := insertLine.Exec(fileID, ln.LineNumber, ln.Chunk.Archive, ln.Chunk.Chunk, ln.Chunk.Offset)
		if err != nil {
			return err
		}
		lineID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := insertFTS.Exec(lineID, texts[i]); err != nil {
			return err
		}
	}
	return nil
}

// Begin starts a transaction for callers that need to compose several
// of the operations above atomically (process_file does).
func (db *DB) Begin() (*sql.Tx, error) { return db.sql.Begin() }

// MaterializedLine is a search candidate after joining lines -> files.
type MaterializedLine struct {
	LineID     int64
	FileID     int64
	FilePath   string
	FileKind   types.Kind
	LineNumber int
	Chunk      types.ChunkRef
}

// FetchLinesByIDs joins the given line ids against lines and files,
// filtering out rows whose line id is a stale FTS entry (the join
// naturally excludes anything already deleted from lines).
func (db *DB) FetchLinesByIDs(ids []int64) ([]MaterializedLine, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT l.id, l.file_id, f.path, f.kind, l.line_number, l.chunk_archive, l.chunk_name, l.line_offset
	          FROM lines l JOIN files f ON f.id = l.file_id
	          WHERE l.id IN (` + placeholders(len(ids)) + `)`
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.sql.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MaterializedLine
	for rows.Next() {
		var m MaterializedLine
		var kind string
		if err := rows.Scan(&m.LineID, &m.FileID, &m.FilePath, &kind, &m.LineNumber, &m.Chunk.Archive, &m.Chunk.Chunk, &m.Chunk.Offset); err != nil {
			return nil, err
		}
		m.FileKind = types.Kind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

// LinesForFileRange returns a file's line rows with line_number in
// [lo, hi], ordered by line number, for context-window assembly.
func (db *DB) LinesForFileRange(fileID int64, lo, hi int) ([]types.LineRecord, error) {
	rows, err := db.sql.Query(
		`SELECT id, file_id, line_number, chunk_archive, chunk_name, line_offset
		 FROM lines WHERE file_id=? AND line_number BETWEEN ? AND ? ORDER BY line_number`,
		fileID, lo, hi,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.LineRecord
	for rows.Next() {
		var lr types.LineRecord
		if err := rows.Scan(&lr.ID, &lr.FileID, &lr.LineNumber, &lr.Chunk.Archive, &lr.Chunk.Chunk, &lr.Chunk.Offset); err != nil {
			return nil, err
		}
		out = append(out, lr)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	s := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			s = append(s, ',')
		}
		s = append(s, '?')
	}
	return string(s)
}
