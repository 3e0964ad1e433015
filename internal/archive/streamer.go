package archive

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/corpusd/corpusd/internal/types"
)

// MemberBatch is one unit of archive-streaming output: either the
// extracted lines of a single member, or a skip/failure recorded
// against MemberPath (empty MemberPath means the archive itself could
// not be opened).
type MemberBatch struct {
	MemberPath  string
	Lines       []types.Line
	ContentHash string
	SkipReason  string
}

// Dispatcher extracts lines out of a non-archive member. The registry
// in internal/extract implements this; kept as an interface here so
// internal/archive never imports internal/extract (which itself calls
// back into archive.Stream for nested archives).
type Dispatcher interface {
	Dispatch(data []byte, name string, cfg types.ScanConfig) ([]types.Line, error)
}

// Emit receives each MemberBatch as it is produced. Callers bound
// in-flight memory by draining these through a bounded channel.
type Emit func(MemberBatch)

// Stream walks outerName's archive bytes one member at a time,
// recursing into nested archives up to cfg.MaxRecursionDepth. It never
// returns a non-nil error for member-level problems; those are
// reported through emit as a MemberBatch with SkipReason set. An
// archive whose format is recognised but which cannot be opened is
// reported the same way, as a MemberBatch with an empty MemberPath,
// and Stream returns nil. A non-nil return means only that outerName
// does not name a recognised archive format.
func Stream(outerName string, data []byte, cfg types.ScanConfig, depth int, dispatch Dispatcher, emit Emit) error {
	format, ok := DetectFormat(outerName)
	if !ok {
		return fmt.Errorf("unrecognized archive format: %s", outerName)
	}
	entries, err := openEntries(outerName, data, format)
	if err != nil {
		emit(MemberBatch{SkipReason: fmt.Sprintf("archive unreadable: %v", err)})
		return nil
	}

	for _, e := range entries {
		if e.IsDir || isHiddenComponent(e.Name) {
			continue
		}

		member, err := e.readAll(cfg.MaxFileSize)
		if err == ErrMemberTooLarge {
			emit(MemberBatch{MemberPath: e.Name, SkipReason: "member exceeds max file size"})
			continue
		}
		if err != nil {
			emit(MemberBatch{MemberPath: e.Name, SkipReason: err.Error()})
			continue
		}

		hash := hashHex(member)

		if _, isArchive := DetectFormat(e.Name); isArchive {
			if depth+1 > cfg.MaxRecursionDepth {
				emit(MemberBatch{
					MemberPath:  e.Name,
					ContentHash: hash,
					SkipReason:  fmt.Sprintf("max recursion depth %d exceeded", cfg.MaxRecursionDepth),
				})
				continue
			}
			name := e.Name
			if err := Stream(name, member, cfg, depth+1, dispatch, func(sub MemberBatch) {
				emit(prefixBatch(name, sub))
			}); err != nil {
				emit(MemberBatch{MemberPath: name, SkipReason: err.Error()})
			}
			continue
		}

		lines, err := dispatch.Dispatch(member, e.Name, cfg)
		if err != nil {
			emit(MemberBatch{MemberPath: e.Name, ContentHash: hash, SkipReason: err.Error()})
			continue
		}
		for i := range lines {
			lines[i].ArchivePath = e.Name
		}
		emit(MemberBatch{MemberPath: e.Name, Lines: lines, ContentHash: hash})
	}
	return nil
}

// prefixBatch composes a nested member's path and per-line archive
// path under the outer member's name, e.g. outer.zip::inner.tar::file.
func prefixBatch(outer string, sub MemberBatch) MemberBatch {
	sub.MemberPath = outer + "::" + sub.MemberPath
	for i := range sub.Lines {
		sub.Lines[i].ArchivePath = outer + "::" + sub.Lines[i].ArchivePath
	}
	return sub
}

func hashHex(data []byte) string {
	h := blake3.New()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
