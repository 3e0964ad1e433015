// Package search answers fuzzy/exact/regex queries: per-source
// candidate retrieval through the trigram FTS pre-filter, mode
// specific scoring, score-ordered aggregation, and context-window
// assembly from the chunk store.
package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/hbollon/go-edlib"

	"github.com/corpusd/corpusd/internal/debug"
	"github.com/corpusd/corpusd/internal/indexdb"
	"github.com/corpusd/corpusd/internal/store"
	"github.com/corpusd/corpusd/internal/types"
	"github.com/corpusd/corpusd/internal/workerpool"
	"github.com/corpusd/corpusd/pkg/pathutil"
)

// Mode selects the query semantics.
type Mode string

const (
	ModeFuzzy Mode = "fuzzy"
	ModeExact Mode = "exact"
	ModeRegex Mode = "regex"
)

// Params is one search request.
type Params struct {
	Query   string
	Mode    Mode
	Sources []string // empty = all sources on disk
	Limit   int
	Offset  int
	Context int  // context window radius, 0 = no context
	Split   bool // legacy display mode: split composite paths apart
}

// ContextWindow is the compacted context block around one result.
type ContextWindow struct {
	StartLine  int      `json:"start_line"`
	MatchIndex int      `json:"match_index"`
	Lines      []string `json:"lines"`
}

// Result is one scored line hit.
type Result struct {
	Source      string         `json:"source"`
	Path        string         `json:"path"`
	ArchivePath string         `json:"archive_path,omitempty"`
	LineNumber  int            `json:"line_number"`
	Content     string         `json:"content"`
	Kind        string         `json:"kind"`
	Score       float64        `json:"score"`
	ResourceURL string         `json:"resource_url,omitempty"`
	Context     *ContextWindow `json:"context,omitempty"`
}

// Response is the aggregated answer. Total sums the per-source FTS
// candidate counts; it can overcount when stale FTS rows exist.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
}

const (
	defaultLimit   = 20
	scoringPad     = 200
	candidateLimit = 10000
	fuzzyThreshold = 0.05
)

// Engine runs searches over the per-source index databases.
type Engine struct {
	dataDir string
	pool    *workerpool.Pool
}

func NewEngine(dataDir string, pool *workerpool.Pool) *Engine {
	if pool == nil {
		pool = workerpool.New(0)
	}
	return &Engine{dataDir: dataDir, pool: pool}
}

type hit struct {
	res    Result
	fileID int64
}

// Search fans each source's work out onto the pool, then merges,
// sorts, dedups and pages the results.
func (e *Engine) Search(ctx context.Context, p Params) (*Response, error) {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Mode == "" {
		p.Mode = ModeFuzzy
	}

	var re *regexp.Regexp
	if p.Mode == ModeRegex {
		var err error
		if re, err = regexp.Compile("(?i)" + p.Query); err != nil {
			return nil, fmt.Errorf("search: bad regex: %w", err)
		}
	}

	sources := p.Sources
	if len(sources) == 0 {
		var err error
		if sources, err = e.listSources(); err != nil {
			return nil, err
		}
	}

	var (
		mu    sync.Mutex
		hits  []hit
		total int
	)
	g := e.pool.Group()
	for _, source := range sources {
		source := source
		g.Go(func() {
			if ctx.Err() != nil {
				return
			}
			srcHits, srcTotal, err := e.searchSource(source, p, re)
			if err != nil {
				debug.Warn("search", "source %s: %v", source, err)
				return
			}
			mu.Lock()
			hits = append(hits, srcHits...)
			total += srcTotal
			mu.Unlock()
		})
	}
	g.Wait()

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].res.Score > hits[j].res.Score })

	seen := make(map[uint64]bool, len(hits))
	kept := make([]hit, 0, p.Limit)
	skipped := 0
	for _, h := range hits {
		key := dedupKey(h.res)
		if seen[key] {
			continue
		}
		seen[key] = true
		if skipped < p.Offset {
			skipped++
			continue
		}
		kept = append(kept, h)
		if len(kept) == p.Limit {
			break
		}
	}

	if p.Context > 0 {
		e.attachContext(kept, p.Context)
	}

	results := make([]Result, len(kept))
	for i, h := range kept {
		results[i] = h.res
	}
	return &Response{Results: results, Total: total}, nil
}

func dedupKey(r Result) uint64 {
	h := xxhash.New()
	for _, part := range []string{r.Source, r.Path, r.ArchivePath} {
		h.WriteString(part)
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "%d", r.LineNumber)
	return h.Sum64()
}

// searchSource is the per-source blocking work: FTS (or scan
// fallback) candidates, chunk materialisation, mode scoring.
func (e *Engine) searchSource(source string, p Params, re *regexp.Regexp) ([]hit, int, error) {
	db, err := indexdb.Open(e.dataDir, source)
	if err != nil {
		return nil, 0, err
	}
	defer db.Close()

	st, err := store.New(e.dataDir, source, 0)
	if err != nil {
		return nil, 0, err
	}

	scoringLimit := p.Offset + p.Limit + scoringPad
	if scoringLimit > candidateLimit {
		scoringLimit = candidateLimit
	}

	expr, usesFTS := buildMatchExpr(p.Query, p.Mode)
	var ids []int64
	var total int
	if usesFTS {
		if total, err = db.MatchCount(expr); err != nil {
			return nil, 0, err
		}
		if ids, err = db.MatchCandidates(expr, scoringLimit); err != nil {
			return nil, 0, err
		}
	} else {
		// Sub-trigram query: no index can help, scan live lines and
		// substring-match their text directly.
		if ids, err = db.AllLineIDs(candidateLimit); err != nil {
			return nil, 0, err
		}
	}

	mats, err := db.FetchLinesByIDs(ids)
	if err != nil {
		return nil, 0, err
	}

	baseURL, _, err := db.GetMeta("base_url")
	if err != nil {
		return nil, 0, err
	}

	chunks := newChunkCache(st)
	var hits []hit
	qLower := strings.ToLower(p.Query)
	for _, m := range mats {
		content, err := chunks.line(m.Chunk)
		if err != nil {
			debug.Warn("search", "chunk read %s/%s: %v", m.Chunk.Archive, m.Chunk.Chunk, err)
			continue
		}

		if !usesFTS && !strings.Contains(strings.ToLower(content), qLower) {
			continue
		}

		score, match := scoreLine(p.Mode, p.Query, content, re)
		if !match {
			continue
		}

		r := Result{
			Source:     source,
			Path:       m.FilePath,
			LineNumber: m.LineNumber,
			Content:    content,
			Kind:       string(m.FileKind),
			Score:      score,
		}
		if p.Split {
			r.Path, r.ArchivePath = pathutil.Split(m.FilePath)
		}
		if baseURL != "" {
			r.ResourceURL = pathutil.ResourceURL(baseURL, m.FilePath)
		}
		hits = append(hits, hit{res: r, fileID: m.FileID})
	}

	if !usesFTS {
		total = len(hits)
	}
	return hits, total, nil
}

// scoreLine applies the per-mode scoring rules: exact and regex are
// boolean with score 0, fuzzy keeps only lines scoring above
// fuzzyThreshold, higher is better.
func scoreLine(mode Mode, query, content string, re *regexp.Regexp) (float64, bool) {
	switch mode {
	case ModeExact:
		return 0, true
	case ModeRegex:
		return 0, re.MatchString(content)
	default:
		score := fuzzyScore(query, content)
		return score, score > fuzzyThreshold
	}
}

// fuzzyScore rates how well a line answers a fuzzy query: every query
// token must appear as a substring (case-insensitive), and the final
// score blends Jaro-Winkler similarity against the full line with a
// brevity bonus so tighter lines rank above sprawling ones.
func fuzzyScore(query, content string) float64 {
	qLower := strings.ToLower(query)
	cLower := strings.ToLower(content)
	for _, tok := range strings.Fields(qLower) {
		if !strings.Contains(cLower, tok) {
			return 0
		}
	}
	sim, err := edlib.StringsSimilarity(qLower, cLower, edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	brevity := float64(len(qLower)) / float64(len(cLower))
	if brevity > 1 {
		brevity = 1
	}
	return 0.5*float64(sim) + 0.5*brevity
}

// attachContext expands each kept result with lines center±window
// from its file, grouped by source so each database is opened once.
func (e *Engine) attachContext(kept []hit, window int) {
	bySource := map[string][]int{}
	for i, h := range kept {
		bySource[h.res.Source] = append(bySource[h.res.Source], i)
	}
	for source, idxs := range bySource {
		db, err := indexdb.Open(e.dataDir, source)
		if err != nil {
			debug.Warn("search", "context open %s: %v", source, err)
			continue
		}
		st, err := store.New(e.dataDir, source, 0)
		if err != nil {
			db.Close()
			continue
		}
		chunks := newChunkCache(st)
		for _, i := range idxs {
			h := &kept[i]
			lo := h.res.LineNumber - window
			if lo < 0 {
				lo = 0
			}
			records, err := db.LinesForFileRange(h.fileID, lo, h.res.LineNumber+window)
			if err != nil || len(records) == 0 {
				continue
			}
			cw := &ContextWindow{StartLine: records[0].LineNumber, MatchIndex: -1}
			for j, rec := range records {
				text, err := chunks.line(rec.Chunk)
				if err != nil {
					text = ""
				}
				cw.Lines = append(cw.Lines, text)
				if rec.LineNumber == h.res.LineNumber {
					cw.MatchIndex = j
				}
			}
			h.res.Context = cw
		}
		db.Close()
	}
}

// listSources enumerates every index database under the data
// directory.
func (e *Engine) listSources() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(e.dataDir, "sources"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, ent := range entries {
		if name, ok := strings.CutSuffix(ent.Name(), ".db"); ok && !ent.IsDir() {
			out = append(out, name)
		}
	}
	return out, nil
}

// chunkCache memoises chunk reads within one request so several hits
// in the same chunk cost one decompression.
type chunkCache struct {
	st    *store.Store
	lines map[store.Loc][]string
}

func newChunkCache(st *store.Store) *chunkCache {
	return &chunkCache{st: st, lines: map[store.Loc][]string{}}
}

func (c *chunkCache) line(ref types.ChunkRef) (string, error) {
	loc := store.Loc{Archive: ref.Archive, Chunk: ref.Chunk}
	lines, ok := c.lines[loc]
	if !ok {
		var err error
		if lines, err = c.st.Read(loc); err != nil {
			return "", err
		}
		c.lines[loc] = lines
	}
	if ref.Offset < 0 || ref.Offset >= len(lines) {
		return "", fmt.Errorf("chunk offset %d out of range (%d lines)", ref.Offset, len(lines))
	}
	return lines[ref.Offset], nil
}
