package watcher

import (
	"path"
	"strings"
)

// sourceExtensions is the allow-list of file kinds that can affect the bundle.
var sourceExtensions = []string{".svelte", ".css", ".scss", ".sass", ".js", ".ts"}

// SourceExtensions returns a copy of the extension allow-list.
func SourceExtensions() []string {
	out := make([]string, len(sourceExtensions))
	copy(out, sourceExtensions)
	return out
}

// IsRelevant reports whether a change to path should trigger a rebuild. The
// path is relative to the watch root and may use either separator style.
func IsRelevant(p string) bool {
	if p == "" {
		return false
	}
	if IsHidden(p) {
		return false
	}
	return HasSourceExtension(p)
}

// IsHidden reports whether any segment of p starts with a dot. The "." and
// ".." segments are navigation, not hidden entries.
func IsHidden(p string) bool {
	for _, segment := range splitSegments(p) {
		if segment == "." || segment == ".." {
			continue
		}
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}

// HasSourceExtension reports whether the final extension of p is in the
// allow-list. Matching is case-sensitive.
func HasSourceExtension(p string) bool {
	segments := splitSegments(p)
	if len(segments) == 0 {
		return false
	}
	ext := path.Ext(segments[len(segments)-1])
	for _, allowed := range sourceExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func splitSegments(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}

// RelevantFilter is IsRelevant as a FileFilter for FileWatcher.AddFilter.
func RelevantFilter(path string) bool {
	return IsRelevant(path)
}
