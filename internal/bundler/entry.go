package bundler

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// MountID is the id of the element the component is mounted into.
const MountID = "app"

// EntryModule returns the synthesized entry module that imports the component
// at source and mounts it on the #app element. The import specifier is
// relative to stagingDir so the bundler resolves it from the staging entry.
func EntryModule(stagingDir, source string) string {
	specifier := ImportPath(stagingDir, source)
	quoted, _ := json.Marshal(specifier)

	return fmt.Sprintf(`import App from %s;

const app = new App({
	target: document.getElementById(%q)
});

export default app;
`, quoted, MountID)
}

// ImportPath computes the specifier used by the entry module to reach source.
// Backslashes are normalized to forward slashes. When no relative path exists
// (different volumes) the absolute slash path is used.
func ImportPath(stagingDir, source string) string {
	rel, err := filepath.Rel(stagingDir, source)
	if err != nil {
		return filepath.ToSlash(source)
	}
	rel = strings.ReplaceAll(filepath.ToSlash(rel), `\`, "/")
	if rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "./") {
		return rel
	}
	return "./" + rel
}
