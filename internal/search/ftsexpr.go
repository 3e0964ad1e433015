package search

import (
	"strings"
)

// minTokenLen is the trigram floor: FTS5's trigram tokenizer cannot
// match terms shorter than three bytes, so anything shorter goes down
// the scan fallback instead.
const minTokenLen = 3

// buildMatchExpr translates a query into an FTS5 MATCH expression for
// trigram pre-filtering. ok=false means no part of the query is
// trigram-indexable and the caller must fall back to a full scan.
func buildMatchExpr(q string, mode Mode) (expr string, ok bool) {
	switch mode {
	case ModeExact:
		if len(q) < minTokenLen {
			return "", false
		}
		return quote(q), true
	case ModeRegex:
		literals := regexLiterals(q)
		return andTerms(literals)
	default: // fuzzy
		var terms []string
		for _, tok := range strings.Fields(q) {
			if len(tok) >= minTokenLen {
				terms = append(terms, tok)
			}
		}
		return andTerms(terms)
	}
}

func andTerms(terms []string) (string, bool) {
	if len(terms) == 0 {
		return "", false
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = quote(t)
	}
	return strings.Join(quoted, " AND "), true
}

// quote wraps a term as an FTS5 string literal, doubling embedded
// double quotes.
func quote(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

// regexLiterals extracts the maximal literal runs of a regex pattern:
// the substrings any match must contain, usable as trigram
// pre-filters. Runs are cut at regex metacharacters and at escaped
// characters; a literal directly before ?, * or { is dropped from its
// run because that last character is optional in the match.
func regexLiterals(pattern string) []string {
	var runs []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() >= minTokenLen {
			runs = append(runs, cur.String())
		}
		cur.Reset()
	}

	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '\\':
			// An escape may be a class (\d, \w) — never literal enough.
			flush()
			i += 2
			continue
		case '^', '$', '.', '|', '(', ')', '[', ']', '}', '+':
			flush()
		case '*', '?', '{':
			// The preceding character is optional; remove it from the run.
			if cur.Len() > 0 {
				s := cur.String()
				cur.Reset()
				cur.WriteString(s[:len(s)-1])
			}
			flush()
		default:
			cur.WriteByte(c)
		}
		i++
	}
	flush()
	return runs
}
