package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/corpusd/corpusd/internal/types"
)

// textExts is the extension gate for the text extractor; anything not
// listed still gets a chance through the content sniff in Accepts.
var textExts = []string{
	".txt", ".md", ".markdown", ".rst", ".log", ".csv", ".tsv",
	".go", ".rs", ".py", ".js", ".ts", ".jsx", ".tsx", ".c", ".h",
	".cpp", ".hpp", ".java", ".kt", ".rb", ".php", ".sh", ".bash",
	".pl", ".lua", ".sql", ".json", ".yaml", ".yml", ".toml", ".ini",
	".cfg", ".conf", ".xml", ".svg", ".css", ".scss", ".less",
	".tex", ".org", ".adoc", ".diff", ".patch", ".properties",
	".gitignore", ".dockerfile", "makefile",
}

type textExtractor struct{}

func (textExtractor) Name() string { return "text" }

func (textExtractor) Accepts(name string, data []byte) bool {
	if hasExt(name, textExts...) {
		return true
	}
	return looksTextual(data)
}

// looksTextual sniffs the first 8 KiB: no NUL bytes and valid UTF-8
// (allowing a truncated rune at the window edge).
func looksTextual(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	window := data
	if len(window) > 8192 {
		window = window[:8192]
	}
	if bytes.IndexByte(window, 0) >= 0 {
		return false
	}
	for len(window) > 0 {
		r, size := utf8.DecodeRune(window)
		if r == utf8.RuneError && size == 1 {
			// Tolerate a rune cut off by the sniff window.
			return len(window) < utf8.UTFMax
		}
		window = window[size:]
	}
	return true
}

func (textExtractor) Extract(data []byte, name string, cfg types.ScanConfig) ([]types.Line, error) {
	body := string(data)
	var meta []types.Line

	if fm, rest, ok := splitFrontmatter(body); ok {
		meta = frontmatterLines(fm)
		body = rest
	}

	raw := strings.Split(body, "\n")
	return append(meta, numberLines(raw, cfg)...), nil
}

// splitFrontmatter detects a leading "---" YAML-style frontmatter
// block and returns it separately from the document body.
func splitFrontmatter(body string) (fm, rest string, ok bool) {
	if !strings.HasPrefix(body, "---\n") && !strings.HasPrefix(body, "---\r\n") {
		return "", body, false
	}
	after := body[strings.Index(body, "\n")+1:]
	end := strings.Index(after, "\n---")
	if end < 0 {
		return "", body, false
	}
	fm = after[:end]
	rest = after[end+4:]
	if i := strings.Index(rest, "\n"); i >= 0 {
		rest = rest[i+1:]
	} else {
		rest = ""
	}
	return fm, rest, true
}

// frontmatterLines turns top-level "key: value" frontmatter fields
// into metadata pseudo-lines at line 0.
func frontmatterLines(fm string) []types.Line {
	var out []types.Line
	for _, line := range strings.Split(fm, "\n") {
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" || value == "" {
			continue
		}
		out = append(out, types.Line{LineNumber: 0, Content: "[FRONTMATTER:" + key + "] " + value})
	}
	return out
}
