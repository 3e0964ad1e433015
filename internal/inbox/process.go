// Package inbox ingests submitted envelopes: a singleton worker polls
// the inbox directory, decodes each batch and indexes it one file at a
// time into the per-source store.
package inbox

import (
	"fmt"
	"time"

	"github.com/corpusd/corpusd/internal/debug"
	"github.com/corpusd/corpusd/internal/indexdb"
	"github.com/corpusd/corpusd/internal/protocol"
	"github.com/corpusd/corpusd/internal/store"
	"github.com/corpusd/corpusd/internal/types"
)

// ProcessFile ingests one upsert: stale-member sweep for re-indexed
// archives, dedup by content hash, freeing of superseded chunks, then
// chunk append, file upsert and line/FTS write.
func ProcessFile(db *indexdb.DB, st *store.Store, f protocol.IndexFile, now time.Time) error {
	if types.Kind(f.Kind) == types.KindArchive && !types.IsComposite(f.Path) {
		if err := sweepStaleMembers(db, st, f.Path); err != nil {
			return fmt.Errorf("stale-member sweep for %s: %w", f.Path, err)
		}
	}

	if f.ContentHash != "" {
		canon, err := db.FindCanonicalByHash(f.ContentHash)
		if err != nil {
			return err
		}
		if canon != nil && canon.Path != f.Path {
			return upsertAlias(db, st, f, canon.ID, now)
		}
	}

	if err := freeExistingChunks(db, st, f.Path); err != nil {
		return err
	}

	lines := make([]types.Line, 0, len(f.Lines))
	for _, le := range f.Lines {
		if le.Content == "" {
			continue
		}
		lines = append(lines, types.Line{LineNumber: le.Number, Content: le.Content})
	}

	chunks, packed := store.Pack(f.Path, lines)
	locs, err := st.Append(chunks)
	if err != nil {
		return fmt.Errorf("append chunks for %s: %w", f.Path, err)
	}

	fileID, _, err := db.UpsertFile(types.FileRecord{
		Path:        f.Path,
		MTime:       f.MTime,
		Size:        f.Size,
		Kind:        types.Kind(f.Kind),
		ExtractMS:   f.ExtractMS,
		ContentHash: f.ContentHash,
	}, now)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", f.Path, err)
	}

	records := make([]types.LineRecord, len(packed))
	texts := make([]string, len(packed))
	for i, pl := range packed {
		loc := locs[pl.ChunkNum]
		records[i] = types.LineRecord{
			LineNumber: pl.LineNumber,
			Chunk:      types.ChunkRef{Archive: loc.Archive, Chunk: loc.Chunk, Offset: pl.Offset},
		}
		texts[i] = lines[i].Content
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := db.ReplaceLines(tx, fileID, records, texts); err != nil {
		tx.Rollback()
		return fmt.Errorf("write lines for %s: %w", f.Path, err)
	}
	return tx.Commit()
}

// upsertAlias records f as a pure pointer to an existing canonical
// file: its own chunks (if it previously owned any) are freed and no
// lines or FTS rows are written.
func upsertAlias(db *indexdb.DB, st *store.Store, f protocol.IndexFile, canonicalID int64, now time.Time) error {
	if err := freeExistingChunks(db, st, f.Path); err != nil {
		return err
	}
	fileID, _, err := db.UpsertFile(types.FileRecord{
		Path:            f.Path,
		MTime:           f.MTime,
		Size:            f.Size,
		Kind:            types.Kind(f.Kind),
		ExtractMS:       f.ExtractMS,
		ContentHash:     f.ContentHash,
		CanonicalFileID: &canonicalID,
	}, now)
	if err != nil {
		return fmt.Errorf("upsert alias %s: %w", f.Path, err)
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := db.ReplaceLines(tx, fileID, nil, nil); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// sweepStaleMembers removes every composite-path member beneath an
// outer archive about to be re-indexed: chunks first, then the rows.
// The re-extracted members arrive as their own upserts afterwards.
func sweepStaleMembers(db *indexdb.DB, st *store.Store, outerPath string) error {
	members, err := db.ListMembersUnderPrefix(outerPath)
	if err != nil {
		return err
	}
	var locs []store.Loc
	for _, m := range members {
		refs, err := db.GetLineChunkRefs(m.ID)
		if err != nil {
			return err
		}
		locs = append(locs, refsToLocs(refs)...)
	}
	if err := st.Remove(locs); err != nil {
		return err
	}
	for _, m := range members {
		if err := db.DeleteFileByPath(m.Path); err != nil {
			return err
		}
	}
	if len(members) > 0 {
		debug.Log("inbox", "swept %d stale members under %s", len(members), outerPath)
	}
	return nil
}

// DeletePath removes one file (and, for an outer archive, every
// member beneath it), freeing chunks before dropping rows.
func DeletePath(db *indexdb.DB, st *store.Store, path string) error {
	if !types.IsComposite(path) {
		if err := sweepStaleMembers(db, st, path); err != nil {
			return err
		}
	}
	if err := freeExistingChunks(db, st, path); err != nil {
		return err
	}
	return db.DeleteFileByPath(path)
}

// freeExistingChunks releases the chunks owned by path's current row,
// if any. Alias rows own no chunks, so this is a no-op for them.
func freeExistingChunks(db *indexdb.DB, st *store.Store, path string) error {
	existing, err := db.GetFileByPath(path)
	if err != nil || existing == nil {
		return err
	}
	refs, err := db.GetLineChunkRefs(existing.ID)
	if err != nil {
		return err
	}
	return st.Remove(refsToLocs(refs))
}

func refsToLocs(refs []types.ChunkRef) []store.Loc {
	seen := map[store.Loc]bool{}
	locs := make([]store.Loc, 0, len(refs))
	for _, r := range refs {
		loc := store.Loc{Archive: r.Archive, Chunk: r.Chunk}
		if !seen[loc] {
			seen[loc] = true
			locs = append(locs, loc)
		}
	}
	return locs
}
