package extract

import (
	"bytes"
	"debug/pe"
	"fmt"
	"strings"

	"github.com/corpusd/corpusd/internal/types"
)

type peExtractor struct{}

func (peExtractor) Name() string { return "pe" }

func (peExtractor) Accepts(name string, data []byte) bool {
	if hasExt(name, ".exe", ".dll", ".sys") {
		return true
	}
	return bytes.HasPrefix(data, []byte("MZ"))
}

// Extract emits machine/section/import metadata for a PE executable as
// line-0 pseudo-lines. There is no content body to index.
func (peExtractor) Extract(data []byte, name string, cfg types.ScanConfig) ([]types.Line, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("pe parse: %w", err)
	}
	defer f.Close()

	out := []types.Line{
		{LineNumber: 0, Content: fmt.Sprintf("[PE:machine] 0x%x", f.Machine)},
		{LineNumber: 0, Content: fmt.Sprintf("[PE:sections] %d", len(f.Sections))},
	}
	var sections []string
	for _, s := range f.Sections {
		sections = append(sections, s.Name)
	}
	if len(sections) > 0 {
		out = append(out, types.Line{LineNumber: 0, Content: "[PE:section_names] " + strings.Join(sections, " ")})
	}
	if libs, err := f.ImportedLibraries(); err == nil && len(libs) > 0 {
		out = append(out, types.Line{LineNumber: 0, Content: "[PE:imports] " + strings.Join(libs, " ")})
	}
	return out, nil
}
