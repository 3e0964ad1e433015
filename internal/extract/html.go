package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"

	"github.com/corpusd/corpusd/internal/types"
)

type htmlExtractor struct{}

func (htmlExtractor) Name() string { return "html" }

func (htmlExtractor) Accepts(name string, data []byte) bool {
	if hasExt(name, ".html", ".htm", ".xhtml") {
		return true
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	lower := bytes.ToLower(head)
	return bytes.Contains(lower, []byte("<!doctype html")) || bytes.Contains(lower, []byte("<html"))
}

// Extract emits the document title and meta description as line-0
// metadata, then the visible body text as numbered content lines.
func (htmlExtractor) Extract(data []byte, name string, cfg types.ScanConfig) ([]types.Line, error) {
	title, description, raw := tokenizeHTML(data)

	var out []types.Line
	if title != "" {
		out = append(out, types.Line{LineNumber: 0, Content: "[HTML:title] " + title})
	}
	if description != "" {
		out = append(out, types.Line{LineNumber: 0, Content: "[HTML:description] " + description})
	}
	return append(out, numberLines(raw, cfg)...), nil
}

func tokenizeHTML(data []byte) (title, description string, body []string) {
	z := html.NewTokenizer(bytes.NewReader(data))
	var inTitle, skip bool
	for {
		switch z.Next() {
		case html.ErrorToken:
			return title, description, body
		case html.StartTagToken:
			tagBytes, hasAttr := z.TagName()
			tag := string(tagBytes)
			switch tag {
			case "title":
				inTitle = true
			case "script", "style", "noscript":
				skip = true
			case "meta":
				var name, content string
				for hasAttr {
					var key, val []byte
					key, val, hasAttr = z.TagAttr()
					switch string(key) {
					case "name":
						name = strings.ToLower(string(val))
					case "content":
						content = string(val)
					}
				}
				if name == "description" {
					description = strings.TrimSpace(content)
				}
			}
		case html.EndTagToken:
			tagBytes, _ := z.TagName()
			switch string(tagBytes) {
			case "title":
				inTitle = false
			case "script", "style", "noscript":
				skip = false
			}
		case html.TextToken:
			text := strings.TrimSpace(string(z.Text()))
			if text == "" {
				continue
			}
			if inTitle {
				if title == "" {
					title = text
				}
				continue
			}
			if !skip {
				body = append(body, text)
			}
		}
	}
}
