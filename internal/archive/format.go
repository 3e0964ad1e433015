// Package archive implements the archive streamer: it walks archive
// members one at a time, recursing into nested archives under a depth
// cap, and emits MemberBatch values through a caller-supplied
// callback. Containers are discriminated by file name, then each
// entry is decompressed into a bounded in-memory buffer.
package archive

import "strings"

// Format is the archive container kind, detected from the file name.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTar
	FormatTarGz
	FormatTarBz2
	FormatTarXz
	FormatGz
	FormatBz2
	FormatXz
	Format7z
)

// DetectFormat identifies an archive format from its file name.
func DetectFormat(name string) (Format, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, true
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		return FormatTarBz2, true
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FormatTarXz, true
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, true
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, true
	case strings.HasSuffix(lower, ".7z"):
		return Format7z, true
	case strings.HasSuffix(lower, ".gz"):
		return FormatGz, true
	case strings.HasSuffix(lower, ".bz2"):
		return FormatBz2, true
	case strings.HasSuffix(lower, ".xz"):
		return FormatXz, true
	default:
		return FormatUnknown, false
	}
}

// stripArchiveSuffix derives the inner member name for a bare
// single-stream compressed file, e.g. "foo.txt.gz" -> "foo.txt".
func stripArchiveSuffix(name string, f Format) string {
	lower := strings.ToLower(name)
	var suffix string
	switch f {
	case FormatGz:
		suffix = ".gz"
	case FormatBz2:
		suffix = ".bz2"
	case FormatXz:
		suffix = ".xz"
	}
	if suffix != "" && strings.HasSuffix(lower, suffix) {
		return name[:len(name)-len(suffix)]
	}
	return name
}

// isHiddenComponent reports whether any path component of an archive
// member name begins with a dot; the scanner's hidden-file rule
// applies uniformly to archive members.
func isHiddenComponent(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}
