package extract

import (
	"strings"

	"github.com/corpusd/corpusd/internal/types"
)

// numberLines turns raw text lines into sequentially numbered content
// lines starting at 1. Empty source lines are skipped so numbering has
// no gaps; lines longer than cfg.MaxLineLength are wrapped at word
// boundaries and each wrap piece gets its own sequential number.
func numberLines(raw []string, cfg types.ScanConfig) []types.Line {
	var out []types.Line
	n := 1
	for _, line := range raw {
		trimmed := strings.TrimRight(line, "\r")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		for _, piece := range wrapLine(trimmed, cfg.MaxLineLength) {
			out = append(out, types.Line{LineNumber: n, Content: piece})
			n++
		}
	}
	return out
}

// wrapLine splits a line into pieces no longer than max bytes,
// breaking at word boundaries where possible. A single word longer
// than max is split mid-word.
func wrapLine(line string, max int) []string {
	if max <= 0 || len(line) <= max {
		return []string{line}
	}
	var pieces []string
	var cur strings.Builder
	for _, word := range strings.Fields(line) {
		for len(word) > max {
			if cur.Len() > 0 {
				pieces = append(pieces, cur.String())
				cur.Reset()
			}
			pieces = append(pieces, word[:max])
			word = word[max:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(word) > max {
			pieces = append(pieces, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		pieces = append(pieces, cur.String())
	}
	if len(pieces) == 0 {
		return []string{""}
	}
	return pieces
}

func hasExt(name string, exts ...string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
