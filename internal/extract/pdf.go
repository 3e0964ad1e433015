package extract

import (
	"bytes"
	"compress/zlib"
	"io"
	"strings"

	"github.com/corpusd/corpusd/internal/types"
)

type pdfExtractor struct{}

func (pdfExtractor) Name() string { return "pdf" }

func (pdfExtractor) Accepts(name string, data []byte) bool {
	return hasExt(name, ".pdf") || bytes.HasPrefix(data, []byte("%PDF-"))
}

// Extract pulls a best-effort text layer out of a PDF: parenthesized
// operands of Tj/TJ show-text operators, scanned both in the raw body
// and inside any FlateDecode content streams that inflate cleanly.
// Password-protected documents are detected up front by the /Encrypt
// marker in the raw bytes, before any parsing happens.
func (pdfExtractor) Extract(data []byte, name string, cfg types.ScanConfig) ([]types.Line, error) {
	if bytes.Contains(data, []byte("/Encrypt")) {
		return []types.Line{{LineNumber: 1, Content: "Content encrypted"}}, nil
	}

	var raw []string
	raw = append(raw, showTextLines(data)...)
	for _, stream := range inflatedStreams(data) {
		raw = append(raw, showTextLines(stream)...)
	}
	return numberLines(raw, cfg), nil
}

// inflatedStreams finds stream...endstream segments and returns those
// that decompress as zlib (FlateDecode). Segments that don't inflate
// are silently skipped; this is a text layer, not a PDF validator.
func inflatedStreams(data []byte) [][]byte {
	var out [][]byte
	rest := data
	for {
		i := bytes.Index(rest, []byte("stream"))
		if i < 0 {
			break
		}
		body := rest[i+len("stream"):]
		body = bytes.TrimPrefix(body, []byte("\r"))
		body = bytes.TrimPrefix(body, []byte("\n"))
		end := bytes.Index(body, []byte("endstream"))
		if end < 0 {
			break
		}
		zr, err := zlib.NewReader(bytes.NewReader(body[:end]))
		if err == nil {
			if inflated, err := io.ReadAll(zr); err == nil {
				out = append(out, inflated)
			}
			zr.Close()
		}
		rest = body[end+len("endstream"):]
	}
	return out
}

// showTextLines scans a content stream for (...) string operands
// followed by a Tj or TJ operator and concatenates each operator's
// strings into one output line.
func showTextLines(stream []byte) []string {
	var lines []string
	var pending []string

	i := 0
	for i < len(stream) {
		switch stream[i] {
		case '(':
			str, next := parseParenString(stream, i)
			pending = append(pending, str)
			i = next
		case 'T':
			if i+1 < len(stream) && (stream[i+1] == 'j' || stream[i+1] == 'J') {
				if len(pending) > 0 {
					line := strings.TrimSpace(strings.Join(pending, ""))
					if line != "" {
						lines = append(lines, line)
					}
					pending = nil
				}
				i += 2
				continue
			}
			i++
		default:
			i++
		}
	}
	return lines
}

// parseParenString decodes one PDF literal string starting at the '('
// at index start, handling nested parens and backslash escapes, and
// returns the index just past the closing ')'.
func parseParenString(data []byte, start int) (string, int) {
	var b strings.Builder
	depth := 0
	i := start
	for i < len(data) {
		c := data[i]
		switch c {
		case '\\':
			if i+1 < len(data) {
				switch data[i+1] {
				case 'n':
					b.WriteByte('\n')
				case 't':
					b.WriteByte('\t')
				case 'r', 'f', 'b':
					// control escapes with no text value
				default:
					b.WriteByte(data[i+1])
				}
				i += 2
				continue
			}
			i++
		case '(':
			depth++
			if depth > 1 {
				b.WriteByte(c)
			}
			i++
		case ')':
			depth--
			if depth == 0 {
				return b.String(), i + 1
			}
			b.WriteByte(c)
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), i
}
