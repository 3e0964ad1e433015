package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/corpusd/corpusd/internal/types"
)

type epubExtractor struct{}

func (epubExtractor) Name() string { return "epub" }

func (epubExtractor) Accepts(name string, data []byte) bool {
	return hasExt(name, ".epub")
}

// Extract reads the OPF package metadata (title, creator, language)
// as line-0 pseudo-lines, then the visible text of each XHTML chapter
// in container order as numbered content lines.
func (epubExtractor) Extract(data []byte, name string, cfg types.ScanConfig) ([]types.Line, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("epub container: %w", err)
	}

	var out []types.Line
	if opf := findOPF(zr); opf != nil {
		for _, field := range []string{"title", "creator", "language"} {
			if v := xmlElementText(opf, field); v != "" {
				out = append(out, types.Line{LineNumber: 0, Content: "[EPUB:" + field + "] " + v})
			}
		}
	}

	var raw []string
	var chapters []string
	for _, f := range zr.File {
		if hasExt(f.Name, ".xhtml", ".html", ".htm") {
			chapters = append(chapters, f.Name)
		}
	}
	sort.Strings(chapters)
	for _, chapter := range chapters {
		body := zipPart(zr, chapter)
		if body == nil {
			continue
		}
		_, _, text := tokenizeHTML(body)
		raw = append(raw, text...)
	}

	return append(out, numberLines(raw, cfg)...), nil
}

// findOPF resolves the package document via META-INF/container.xml,
// falling back to the first *.opf member when the pointer is missing.
func findOPF(zr *zip.Reader) []byte {
	if container := zipPart(zr, "META-INF/container.xml"); container != nil {
		dec := xml.NewDecoder(bytes.NewReader(container))
		for {
			tok, err := dec.Token()
			if err != nil {
				break
			}
			if t, ok := tok.(xml.StartElement); ok && t.Name.Local == "rootfile" {
				for _, attr := range t.Attr {
					if attr.Name.Local == "full-path" {
						if opf := zipPart(zr, attr.Value); opf != nil {
							return opf
						}
					}
				}
			}
		}
	}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".opf") {
			return zipPart(zr, f.Name)
		}
	}
	return nil
}
