// Package serverapi is the thin HTTP surface over the core: it
// accepts submission envelopes into the inbox, serves search, and
// exposes the read-only admin views. Handlers do no indexing work
// themselves; heavy work runs on the shared pool.
package serverapi

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/debug"
	"github.com/corpusd/corpusd/internal/inbox"
	"github.com/corpusd/corpusd/internal/indexdb"
	"github.com/corpusd/corpusd/internal/protocol"
	"github.com/corpusd/corpusd/internal/search"
	"github.com/corpusd/corpusd/internal/version"
	"github.com/corpusd/corpusd/internal/workerpool"
)

// Server wires the HTTP surface to the core components.
type Server struct {
	cfg    *config.Config
	engine *search.Engine
	worker *inbox.Worker
	pool   *workerpool.Pool
}

func New(cfg *config.Config, worker *inbox.Worker, pool *workerpool.Pool) *Server {
	if pool == nil {
		pool = workerpool.New(0)
	}
	return &Server{
		cfg:    cfg,
		engine: search.NewEngine(cfg.Server.DataDir, pool),
		worker: worker,
		pool:   pool,
	}
}

// Handler builds the route table with the auth check in front.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sources/{name}/submit", s.handleSubmit)
	mux.HandleFunc("GET /v1/sources/{name}/files", s.handleFileList)
	mux.HandleFunc("GET /v1/search", s.handleSearch)
	mux.HandleFunc("GET /v1/admin/status", s.handleStatus)
	mux.HandleFunc("GET /v1/admin/sources", s.handleSources)
	mux.HandleFunc("GET /v1/admin/inbox", s.handleInbox)
	mux.HandleFunc("POST /v1/admin/inbox/clear", s.handleInboxClear)
	mux.HandleFunc("POST /v1/admin/inbox/retry", s.handleInboxRetry)
	mux.HandleFunc("GET /v1/admin/inbox/show/{name}", s.handleInboxShow)
	return s.auth(mux)
}

// auth enforces the static bearer token when one is configured.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.BearerToken != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Server.BearerToken)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// handleSubmit persists the envelope body to the inbox and returns
// 202: indexing is asynchronous, the scanner is never blocked on it.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := indexdb.ValidateSourceName(name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		http.Error(w, "body is not a gzip envelope", http.StatusBadRequest)
		return
	}

	dir := inbox.Dir(s.cfg.Server.DataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	envName := protocol.EnvelopeName(time.Now())
	if err := os.WriteFile(filepath.Join(dir, envName), body, 0o644); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	debug.Log("server", "accepted envelope %s for source %s (%d bytes)", envName, name, len(body))
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"id": envName})
}

func (s *Server) handleFileList(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := indexdb.ValidateSourceName(name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := os.Stat(indexdb.Path(s.cfg.Server.DataDir, name)); err != nil {
		writeJSON(w, []indexdb.PathMTime{})
		return
	}

	var list []indexdb.PathMTime
	var err error
	s.pool.Run(func() {
		var db *indexdb.DB
		if db, err = indexdb.Open(s.cfg.Server.DataDir, name); err != nil {
			return
		}
		defer db.Close()
		list, err = db.ListNonCompositePaths()
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []indexdb.PathMTime{}
	}
	writeJSON(w, list)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := search.Params{
		Query:   q.Get("q"),
		Mode:    search.Mode(q.Get("mode")),
		Sources: q["source"],
		Limit:   intParam(q.Get("limit"), 0),
		Offset:  intParam(q.Get("offset"), 0),
		Context: intParam(q.Get("context"), 0),
		Split:   q.Get("split") == "1",
	}
	if p.Query == "" {
		http.Error(w, "missing q parameter", http.StatusBadRequest)
		return
	}
	resp, err := s.engine.Search(r.Context(), p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, resp)
}

// StatusResponse is the admin status view: worker state plus queue
// depths.
type StatusResponse struct {
	Version string       `json:"version"`
	Worker  inbox.Status `json:"worker"`
	Pending int          `json:"pending"`
	Failed  int          `json:"failed"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	pending, _ := inbox.ListPending(s.cfg.Server.DataDir)
	failed, _ := inbox.ListFailed(s.cfg.Server.DataDir)
	resp := StatusResponse{
		Version: version.Version,
		Pending: len(pending),
		Failed:  len(failed),
	}
	if s.worker != nil {
		resp.Worker = s.worker.Status()
	}
	writeJSON(w, resp)
}

// SourceStats is the per-source admin summary.
type SourceStats struct {
	Name        string         `json:"name"`
	LastScan    *int64         `json:"last_scan,omitempty"`
	TotalFiles  int            `json:"total_files"`
	TotalSize   int64          `json:"total_size"`
	ByKind      map[string]int `json:"by_kind"`
	ScanHistory []int64        `json:"scan_history,omitempty"`
	ErrorCount  int            `json:"error_count"`
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(filepath.Join(s.cfg.Server.DataDir, "sources"))
	if err != nil && !os.IsNotExist(err) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := []SourceStats{}
	for _, ent := range entries {
		name, ok := strings.CutSuffix(ent.Name(), ".db")
		if !ok || ent.IsDir() {
			continue
		}
		var stats SourceStats
		s.pool.Run(func() { stats = sourceStats(s.cfg.Server.DataDir, name) })
		out = append(out, stats)
	}
	writeJSON(w, out)
}

func sourceStats(dataDir, name string) SourceStats {
	out := SourceStats{Name: name, ByKind: map[string]int{}}
	db, err := indexdb.Open(dataDir, name)
	if err != nil {
		return out
	}
	defer db.Close()

	st, err := db.Stats()
	if err != nil {
		return out
	}
	out.TotalFiles = st.FileCount
	out.TotalSize = st.TotalSize
	out.ByKind = st.ByKind
	out.ErrorCount = st.ErrorCount
	out.ScanHistory = st.ScanHistory

	if raw, ok, err := db.GetMeta("last_scan"); err == nil && ok {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			out.LastScan = &ts
		}
	}
	return out
}

// InboxResponse lists both queues.
type InboxResponse struct {
	Pending []inbox.QueueFile `json:"pending"`
	Failed  []inbox.QueueFile `json:"failed"`
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	pending, err := inbox.ListPending(s.cfg.Server.DataDir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	failed, err := inbox.ListFailed(s.cfg.Server.DataDir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, InboxResponse{Pending: pending, Failed: failed})
}

func (s *Server) handleInboxClear(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pending := q.Get("pending") == "1"
	failed := q.Get("failed") == "1"
	if !pending && !failed {
		pending = true
	}
	removed, err := inbox.Clear(s.cfg.Server.DataDir, pending, failed)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int{"removed": removed})
}

func (s *Server) handleInboxRetry(w http.ResponseWriter, r *http.Request) {
	moved, err := inbox.Retry(s.cfg.Server.DataDir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int{"moved": moved})
}

func (s *Server) handleInboxShow(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if strings.ContainsAny(name, "/\\") {
		http.Error(w, "bad envelope name", http.StatusBadRequest)
		return
	}
	summary, err := inbox.Show(s.cfg.Server.DataDir, name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, summary)
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Warn("server", "write response: %v", err)
	}
}

// ListenAndServe runs the HTTP server until ctx-free shutdown by the
// caller; it exists so cmd wiring stays one line.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.Server.ListenAddr
	debug.Log("server", "listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}
