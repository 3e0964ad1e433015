// Package pathutil handles the two path representations the index
// uses: root-relative slash paths for ordinary files, and composite
// "outer::member" paths addressing content inside archives. The index
// stores paths relative to their source roots; absolute paths appear
// only at the scanner boundary.
package pathutil

import (
	"path/filepath"
	"strings"
)

// Separator joins an outer archive path to a member path.
const Separator = "::"

// Join composes an archive member's full index path.
//
//	Join("a.zip", "dir/x.txt") -> "a.zip::dir/x.txt"
func Join(outer, member string) string {
	return outer + Separator + member
}

// Split returns the outermost file path and the member path inside it.
// For a non-composite path, archivePath is empty.
//
//	Split("a.zip::inner.zip::x.txt") -> ("a.zip", "inner.zip::x.txt")
func Split(path string) (outer, archivePath string) {
	if i := strings.Index(path, Separator); i >= 0 {
		return path[:i], path[i+len(Separator):]
	}
	return path, ""
}

// Outer returns the outermost file component of a possibly composite
// path: the on-disk file the scanner actually opened.
func Outer(path string) string {
	outer, _ := Split(path)
	return outer
}

// ToRelative converts an absolute path to a slash-separated path
// relative to root. Paths outside root (or paths that fail to
// convert) come back unchanged, so callers never lose the original.
func ToRelative(absPath, root string) string {
	if absPath == "" || root == "" || !filepath.IsAbs(absPath) {
		return filepath.ToSlash(absPath)
	}
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(absPath))
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(absPath)
	}
	return filepath.ToSlash(rel)
}

// ResourceURL forms the user-visible URL for a path under a source's
// base URL, normalizing the slash between them. Composite paths link
// to their outer file, the only part a URL can address.
func ResourceURL(baseURL, path string) string {
	if baseURL == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(Outer(path), "/")
}
