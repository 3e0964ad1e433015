package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/corpusd/corpusd/internal/types"
)

type officeExtractor struct{}

func (officeExtractor) Name() string { return "office" }

func (officeExtractor) Accepts(name string, data []byte) bool {
	return hasExt(name, ".docx", ".xlsx", ".pptx")
}

// Extract handles the three OOXML container formats. Each is a zip
// holding XML parts: document properties become line-0 metadata, the
// text runs of the main parts become numbered content lines.
func (officeExtractor) Extract(data []byte, name string, cfg types.ScanConfig) ([]types.Line, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("office container: %w", err)
	}

	var tag string
	switch {
	case hasExt(name, ".docx"):
		tag = "DOCX"
	case hasExt(name, ".xlsx"):
		tag = "XLSX"
	default:
		tag = "PPTX"
	}

	out := corePropertyLines(zr, tag)

	var raw []string
	switch tag {
	case "DOCX":
		raw = docxParagraphs(zr)
	case "XLSX":
		out = append(out, sheetNameLines(zr)...)
		raw = sharedStrings(zr)
	case "PPTX":
		slides := slideParts(zr)
		for _, part := range slides {
			out = append(out, types.Line{LineNumber: 0, Content: "[PPTX:slide] " + part.name})
			raw = append(raw, part.texts...)
		}
	}

	return append(out, numberLines(raw, cfg)...), nil
}

func zipPart(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		r, err := f.Open()
		if err != nil {
			return nil
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return nil
		}
		return data
	}
	return nil
}

// corePropertyLines reads docProps/core.xml and emits title/creator/
// subject as metadata pseudo-lines.
func corePropertyLines(zr *zip.Reader, tag string) []types.Line {
	data := zipPart(zr, "docProps/core.xml")
	if data == nil {
		return nil
	}
	var out []types.Line
	for _, field := range []string{"title", "creator", "subject"} {
		if v := xmlElementText(data, field); v != "" {
			out = append(out, types.Line{LineNumber: 0, Content: fmt.Sprintf("[%s:%s] %s", tag, field, v)})
		}
	}
	return out
}

// xmlElementText returns the character data of the first element with
// the given local name.
func xmlElementText(data []byte, local string) string {
	dec := xml.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == local {
				depth++
			}
		case xml.EndElement:
			if t.Name.Local == local {
				depth--
			}
		case xml.CharData:
			if depth > 0 {
				if s := strings.TrimSpace(string(t)); s != "" {
					return s
				}
			}
		}
	}
}

// docxParagraphs walks word/document.xml, joining the w:t runs of each
// w:p paragraph into one output line.
func docxParagraphs(zr *zip.Reader) []string {
	data := zipPart(zr, "word/document.xml")
	if data == nil {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var paragraphs []string
	var cur strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if cur.Len() > 0 {
					paragraphs = append(paragraphs, cur.String())
					cur.Reset()
				}
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	if cur.Len() > 0 {
		paragraphs = append(paragraphs, cur.String())
	}
	return paragraphs
}

// sharedStrings returns the shared-string table of a workbook, which
// holds every distinct cell text.
func sharedStrings(zr *zip.Reader) []string {
	data := zipPart(zr, "xl/sharedStrings.xml")
	if data == nil {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	inText := false
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			if t.Name.Local == "t" {
				inText = false
			}
		case xml.CharData:
			if inText {
				if s := strings.TrimSpace(string(t)); s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func sheetNameLines(zr *zip.Reader) []types.Line {
	data := zipPart(zr, "xl/workbook.xml")
	if data == nil {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []types.Line
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if t, ok := tok.(xml.StartElement); ok && t.Name.Local == "sheet" {
			for _, attr := range t.Attr {
				if attr.Name.Local == "name" && attr.Value != "" {
					out = append(out, types.Line{LineNumber: 0, Content: "[XLSX:sheet] " + attr.Value})
				}
			}
		}
	}
	return out
}

type slidePart struct {
	name  string
	texts []string
}

// slideParts collects a:t runs from each ppt/slides/slideN.xml part,
// in slide order.
func slideParts(zr *zip.Reader) []slidePart {
	var out []slidePart
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "ppt/slides/slide") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		data := zipPart(zr, f.Name)
		if data == nil {
			continue
		}
		part := slidePart{name: strings.TrimSuffix(strings.TrimPrefix(f.Name, "ppt/slides/"), ".xml")}
		dec := xml.NewDecoder(bytes.NewReader(data))
		inText := false
		for {
			tok, err := dec.Token()
			if err != nil {
				break
			}
			switch t := tok.(type) {
			case xml.StartElement:
				if t.Name.Local == "t" {
					inText = true
				}
			case xml.EndElement:
				if t.Name.Local == "t" {
					inText = false
				}
			case xml.CharData:
				if inText {
					if s := strings.TrimSpace(string(t)); s != "" {
						part.texts = append(part.texts, s)
					}
				}
			}
		}
		out = append(out, part)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
