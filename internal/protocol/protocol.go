// Package protocol defines the batched submission envelope exchanged
// between the scanner and the server: one BulkRequest carrying
// upserts, deletes, failures and the scan-complete timestamp, framed
// as gzip-compressed JSON.
package protocol

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LineEntry is one extracted line inside an IndexFile upsert.
type LineEntry struct {
	Number  int    `json:"n"`
	Content string `json:"c"`
}

// IndexFile is one file upsert: metadata plus its extracted lines.
type IndexFile struct {
	Path        string      `json:"path"`
	MTime       int64       `json:"mtime"`
	Size        int64       `json:"size"`
	Kind        string      `json:"kind"`
	ExtractMS   *int64      `json:"extract_ms,omitempty"`
	ContentHash string      `json:"content_hash,omitempty"`
	Lines       []LineEntry `json:"lines"`
}

// Failure is one per-file indexing failure with a bounded message.
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// BulkRequest carries everything one batch needs.
type BulkRequest struct {
	Source           string      `json:"source"`
	Files            []IndexFile `json:"files,omitempty"`
	DeletePaths      []string    `json:"delete_paths,omitempty"`
	BaseURL          *string     `json:"base_url,omitempty"`
	ScanTimestamp    *int64      `json:"scan_timestamp,omitempty"`
	IndexingFailures []Failure   `json:"indexing_failures,omitempty"`
}

// Encode writes req as a gzip-compressed JSON envelope.
func Encode(w io.Writer, req *BulkRequest) error {
	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(req); err != nil {
		gz.Close()
		return fmt.Errorf("protocol: encode: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("protocol: encode: %w", err)
	}
	return nil
}

// Decode reads one gzip-compressed JSON envelope.
func Decode(r io.Reader) (*BulkRequest, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("protocol: not a gzip envelope: %w", err)
	}
	defer gz.Close()
	var req BulkRequest
	if err := json.NewDecoder(gz).Decode(&req); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	return &req, nil
}

// EnvelopeName generates the inbox file name for one envelope:
// req_YYYYMMDD_HHMMSS_<uuidsimple>.gz. The timestamp prefix keeps
// filesystem iteration order approximately chronological; the uuid
// suffix keeps names unique within a second.
func EnvelopeName(now time.Time) string {
	simple := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("req_%s_%s.gz", now.UTC().Format("20060102_150405"), simple)
}
