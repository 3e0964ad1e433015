// Package extract implements the extractor registry: a
// priority-ordered chain (PDF -> media -> HTML -> office -> EPUB ->
// PE -> text -> MIME fallback) that turns a file's raw bytes into
// searchable lines. Archive containers never reach this chain; the
// scanner routes them through internal/archive first.
package extract

import (
	"fmt"
	"net/http"

	"github.com/corpusd/corpusd/internal/archive"
	"github.com/corpusd/corpusd/internal/types"
)

// Extractor turns one file's bytes into lines. Accepts is a fast gate
// on the file's extension and, for some extractors, a sniff of its
// leading bytes; Extract does the actual parse and may fail.
type Extractor interface {
	Name() string
	Accepts(name string, data []byte) bool
	Extract(data []byte, name string, cfg types.ScanConfig) ([]types.Line, error)
}

// Registry dispatches a file to the first extractor that accepts it,
// falling back to a MIME-sniffed metadata line when nothing does.
type Registry struct {
	chain []Extractor
}

// NewRegistry builds the default registry. PDF and media extractors
// are tried before the permissive text extractor so that, e.g., a
// ".pdf" never falls through to raw-byte text indexing.
func NewRegistry() *Registry {
	return &Registry{chain: []Extractor{
		pdfExtractor{},
		mediaExtractor{},
		htmlExtractor{},
		officeExtractor{},
		epubExtractor{},
		peExtractor{},
		textExtractor{},
	}}
}

// Dispatch implements archive.Dispatcher, letting the archive streamer
// route each non-archive member through the registry without
// internal/archive importing this package.
func (r *Registry) Dispatch(data []byte, name string, cfg types.ScanConfig) ([]types.Line, error) {
	return r.Extract(data, name, cfg)
}

var _ archive.Dispatcher = (*Registry)(nil)

// Extract runs the file through the priority chain. An extractor that
// accepts the file but fails to parse it does not fall through to a
// later extractor: the failure is the result, so callers can record it
// against the path. Format parsers are not trusted to stay on the
// rails for malformed input, so each call runs behind a panic barrier
// that converts an abort into a plain extraction error naming the path.
func (r *Registry) Extract(data []byte, name string, cfg types.ScanConfig) (lines []types.Line, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			lines = nil
			err = fmt.Errorf("extractor panic on %s: %v", name, rec)
		}
	}()

	for _, ex := range r.chain {
		if !ex.Accepts(name, data) {
			continue
		}
		lines, err := ex.Extract(data, name, cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", ex.Name(), name, err)
		}
		return lines, nil
	}
	return mimeFallback(data), nil
}

// mimeFallback emits a single metadata line naming the sniffed content
// type when no extractor in the chain accepted the file, so binary
// content is never silently recorded as having no kind at all.
func mimeFallback(data []byte) []types.Line {
	if len(data) == 0 {
		return nil
	}
	mime := http.DetectContentType(data)
	return []types.Line{{LineNumber: 0, Content: "[FILE:mime] " + mime}}
}

// DetectKind classifies a file into the controlled kind vocabulary
// using its name first and a content sniff as the tiebreaker.
func DetectKind(name string, data []byte) types.Kind {
	if _, ok := archive.DetectFormat(name); ok {
		return types.KindArchive
	}
	switch {
	case hasExt(name, ".pdf"):
		return types.KindPDF
	case hasExt(name, imageExts...):
		return types.KindImage
	case hasExt(name, audioExts...):
		return types.KindAudio
	case hasExt(name, videoExts...):
		return types.KindVideo
	case hasExt(name, ".exe", ".dll", ".sys"):
		return types.KindExecutable
	case hasExt(name, textExts...):
		return types.KindText
	}
	if len(data) == 0 {
		return types.KindUnknown
	}
	if looksTextual(data) {
		return types.KindText
	}
	return KindForMime(http.DetectContentType(data))
}

// KindForMime maps a sniffed or declared MIME type to the controlled
// file-kind vocabulary.
func KindForMime(mime string) types.Kind {
	switch {
	case hasPrefix(mime, "image/"):
		return types.KindImage
	case hasPrefix(mime, "audio/"):
		return types.KindAudio
	case hasPrefix(mime, "video/"):
		return types.KindVideo
	case hasPrefix(mime, "text/"):
		return types.KindText
	case mime == "application/pdf":
		return types.KindPDF
	case mime == "application/zip", mime == "application/x-tar", mime == "application/gzip", mime == "application/x-7z-compressed":
		return types.KindArchive
	case hasPrefix(mime, "application/vnd.microsoft.portable-executable"):
		return types.KindExecutable
	default:
		return types.KindBinary
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
