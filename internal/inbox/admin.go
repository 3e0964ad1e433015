package inbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	corpuserrors "github.com/corpusd/corpusd/internal/errors"
	"github.com/corpusd/corpusd/internal/protocol"
)

// QueueFile describes one envelope sitting in the pending or failed
// queue.
type QueueFile struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	AgeSec int64  `json:"age_sec"`
}

// ListPending enumerates envelopes waiting in the inbox.
func ListPending(dataDir string) ([]QueueFile, error) {
	return listQueue(Dir(dataDir))
}

// ListFailed enumerates envelopes the worker rejected.
func ListFailed(dataDir string) ([]QueueFile, error) {
	return listQueue(FailedDir(dataDir))
}

func listQueue(dir string) ([]QueueFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	now := time.Now()
	var out []QueueFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".gz") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, QueueFile{
			Name:   e.Name(),
			Size:   info.Size(),
			AgeSec: int64(now.Sub(info.ModTime()).Seconds()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Clear deletes queued envelopes: pending, failed, or both. It
// returns how many files were removed; a failure on one queue does
// not stop the other.
func Clear(dataDir string, pending, failed bool) (int, error) {
	removed := 0
	var errs []error
	if pending {
		n, err := clearDir(Dir(dataDir))
		removed += n
		errs = append(errs, err)
	}
	if failed {
		n, err := clearDir(FailedDir(dataDir))
		removed += n
		errs = append(errs, err)
	}
	if m := corpuserrors.NewMulti(errs...); m != nil {
		return removed, m
	}
	return removed, nil
}

func clearDir(dir string) (int, error) {
	files, err := listQueue(dir)
	if err != nil {
		return 0, err
	}
	for i, f := range files {
		if err := os.Remove(filepath.Join(dir, f.Name)); err != nil {
			return i, err
		}
	}
	return len(files), nil
}

// Retry moves every failed envelope back into the pending queue,
// preserving names, so the worker picks them up on its next tick.
func Retry(dataDir string) (int, error) {
	files, err := ListFailed(dataDir)
	if err != nil {
		return 0, err
	}
	for i, f := range files {
		from := filepath.Join(FailedDir(dataDir), f.Name)
		to := filepath.Join(Dir(dataDir), f.Name)
		if err := os.Rename(from, to); err != nil {
			return i, err
		}
	}
	return len(files), nil
}

// UpsertSummary is the human-friendly view of one upsert in Show.
type UpsertSummary struct {
	Path         string `json:"path"`
	Kind         string `json:"kind"`
	ContentLines int    `json:"content_lines"`
}

// Summary is the decoded view of one queued envelope.
type Summary struct {
	Source        string             `json:"source"`
	ScanTimestamp *int64             `json:"scan_timestamp,omitempty"`
	Upserts       []UpsertSummary    `json:"upserts"`
	DeletePaths   []string           `json:"delete_paths,omitempty"`
	Failures      []protocol.Failure `json:"failures,omitempty"`
}

// Show decompresses a named queued envelope (pending first, then
// failed) and summarises it.
func Show(dataDir, name string) (*Summary, error) {
	path := filepath.Join(Dir(dataDir), name)
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(FailedDir(dataDir), name)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("inbox: no queued envelope named %s", name)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	req, err := protocol.Decode(f)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Source:        req.Source,
		ScanTimestamp: req.ScanTimestamp,
		DeletePaths:   req.DeletePaths,
		Failures:      req.IndexingFailures,
	}
	for _, file := range req.Files {
		n := 0
		for _, ln := range file.Lines {
			if ln.Number > 0 {
				n++
			}
		}
		s.Upserts = append(s.Upserts, UpsertSummary{Path: file.Path, Kind: file.Kind, ContentLines: n})
	}
	return s, nil
}
