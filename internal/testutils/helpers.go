package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Daw588/lavender/internal/config"
)

// CreateTempProject creates a temporary project structure for testing
func CreateTempProject(t *testing.T) string {
	tempDir := t.TempDir()

	// Create standard directory structure
	dirs := []string{
		"src",
		"src/lib",
		"node_modules",
		".lavender",
	}

	for _, dir := range dirs {
		err := os.MkdirAll(filepath.Join(tempDir, dir), 0755)
		require.NoError(t, err)
	}

	return tempDir
}

// CreateTestComponent creates a test component file
func CreateTestComponent(t *testing.T, dir, name, content string) string {
	componentPath := filepath.Join(dir, name+".svelte")
	err := os.WriteFile(componentPath, []byte(content), 0644)
	require.NoError(t, err)
	return componentPath
}

// CreateTestConfig creates a configuration rooted at projectDir. Staging lives
// in a hidden directory so the watcher never sees generated artifacts.
func CreateTestConfig(projectDir string) *config.Config {
	cfg := config.Default()
	cfg.Staging.Dir = filepath.Join(projectDir, ".lavender", "render")
	cfg.Watch.Root = projectDir
	cfg.LogLevel = "debug"
	return cfg
}

// StandardSvelteContent provides standard Svelte components for testing
var StandardSvelteContent = map[string]string{
	"App": `<script>
	import Button from "./lib/Button.svelte";
	let count = 0;
</script>

<h1>Count: {count}</h1>
<Button on:click={() => count++} />

<style>
	h1 { color: rebeccapurple; }
</style>
`,
	"Button": `<script>
	export let label = "Increment";
</script>

<button on:click>{label}</button>
`,
	"Broken": `<script>
	let x = ;
</script>

<p>{x}</p>
`,
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}
