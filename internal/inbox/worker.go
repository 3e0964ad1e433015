package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/corpusd/corpusd/internal/debug"
	"github.com/corpusd/corpusd/internal/indexdb"
	"github.com/corpusd/corpusd/internal/protocol"
	"github.com/corpusd/corpusd/internal/store"
	"github.com/corpusd/corpusd/internal/workerpool"
)

// State is the worker's externally visible condition.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
)

// Status is the shared cell other components read: what the worker is
// doing right now.
type Status struct {
	State  State  `json:"state"`
	Source string `json:"source,omitempty"`
	File   string `json:"file,omitempty"`
}

// Worker is the singleton inbox consumer for one server process.
type Worker struct {
	dataDir       string
	interval      time.Duration
	rotationBytes int64
	pool          *workerpool.Pool

	mu     sync.Mutex
	status Status
}

// NewWorker builds the worker; interval <= 0 defaults to one second.
func NewWorker(dataDir string, interval time.Duration, rotationBytes int64, pool *workerpool.Pool) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	if pool == nil {
		pool = workerpool.New(0)
	}
	return &Worker{
		dataDir:       dataDir,
		interval:      interval,
		rotationBytes: rotationBytes,
		pool:          pool,
		status:        Status{State: StateIdle},
	}
}

// Status returns a snapshot of the shared status cell.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Worker) setStatus(s Status) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

// Run loops until ctx is cancelled: a one-second tick drives the
// drain, and a filesystem watcher on the inbox directory (when
// available) wakes the loop early so freshly submitted envelopes
// don't wait out the full tick.
func (w *Worker) Run(ctx context.Context) error {
	if err := os.MkdirAll(FailedDir(w.dataDir), 0o755); err != nil {
		return fmt.Errorf("inbox: create failed dir: %w", err)
	}

	var events chan struct{}
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := watcher.Add(Dir(w.dataDir)); err == nil {
			events = make(chan struct{}, 1)
			go forwardEvents(watcher, events)
		} else {
			watcher.Close()
			watcher = nil
		}
		if watcher != nil {
			defer watcher.Close()
		}
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// A missed tick is skipped, not queued: Ticker drops ticks
			// while drain runs long.
		case <-events:
		}
	}
}

func forwardEvents(watcher *fsnotify.Watcher, events chan<- struct{}) {
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				select {
				case events <- struct{}{}:
				default:
				}
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// drain processes every pending envelope in sorted name order. The
// request-id embeds a timestamp, so that order is approximately
// chronological.
func (w *Worker) drain() {
	names, err := pendingNames(w.dataDir)
	if err != nil {
		debug.Warn("inbox", "list inbox: %v", err)
		return
	}
	for _, name := range names {
		w.processOne(name)
	}
}

// processOne runs one envelope on the pool, updates the status cell
// around the work, and routes the file to deletion or failed/
// depending on the outcome.
func (w *Worker) processOne(name string) {
	path := filepath.Join(Dir(w.dataDir), name)
	var err error
	w.pool.Run(func() {
		err = w.processEnvelope(path, name)
	})
	if err == nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			debug.Warn("inbox", "remove processed %s: %v", name, rmErr)
		}
		return
	}
	debug.Warn("inbox", "envelope %s failed: %v", name, err)
	if mvErr := os.Rename(path, filepath.Join(FailedDir(w.dataDir), name)); mvErr != nil {
		debug.Warn("inbox", "move %s to failed: %v", name, mvErr)
	}
}

// processEnvelope decodes one envelope and applies it to the source's
// index in batch order: deletes, upserts, error-bookkeeping, scan
// metadata. A panic inside indexing is converted into an error so the
// envelope lands in failed/ instead of taking the worker down.
func (w *Worker) processEnvelope(path, name string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic processing %s: %v", name, rec)
		}
		w.setStatus(Status{State: StateIdle})
	}()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	req, err := protocol.Decode(f)
	f.Close()
	if err != nil {
		return err
	}

	w.setStatus(Status{State: StateProcessing, Source: req.Source, File: name})
	return w.apply(req)
}

func (w *Worker) apply(req *protocol.BulkRequest) error {
	db, err := indexdb.Open(w.dataDir, req.Source)
	if err != nil {
		return err
	}
	defer db.Close()

	st, err := store.New(w.dataDir, req.Source, w.rotationBytes)
	if err != nil {
		return err
	}

	now := time.Now()

	// Deletes run before upserts so a rename that appears as
	// delete-then-add within one batch lands in the right final state.
	for _, path := range req.DeletePaths {
		if err := DeletePath(db, st, path); err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
	}

	for _, file := range req.Files {
		if err := ProcessFile(db, st, file, now); err != nil {
			return err
		}
	}

	for _, file := range req.Files {
		if err := db.ClearIndexingError(file.Path); err != nil {
			return err
		}
	}
	for _, path := range req.DeletePaths {
		if err := db.ClearIndexingError(path); err != nil {
			return err
		}
	}
	for _, failure := range req.IndexingFailures {
		if err := db.UpsertIndexingError(failure.Path, failure.Error, now); err != nil {
			return err
		}
	}

	if req.ScanTimestamp != nil {
		ts := *req.ScanTimestamp
		if err := db.SetMeta("last_scan", fmt.Sprintf("%d", ts)); err != nil {
			return err
		}
		if err := db.AppendScanHistory(ts); err != nil {
			return err
		}
	}
	if req.BaseURL != nil {
		if err := db.SetMeta("base_url", *req.BaseURL); err != nil {
			return err
		}
	}
	return nil
}

// Dir is the pending-envelope directory.
func Dir(dataDir string) string { return filepath.Join(dataDir, "inbox") }

// FailedDir holds envelopes that could not be applied.
func FailedDir(dataDir string) string { return filepath.Join(Dir(dataDir), "failed") }

func pendingNames(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(Dir(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".gz") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
