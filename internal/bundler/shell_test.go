package bundler

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestEntryModule(t *testing.T) {
	stagingDir := filepath.Join(string(filepath.Separator)+"tmp", ".render")
	source := filepath.Join(string(filepath.Separator)+"home", "me", "proj", "App.svelte")

	entry := EntryModule(stagingDir, source)

	assert.Contains(t, entry, `import App from "../../home/me/proj/App.svelte";`)
	assert.Contains(t, entry, `target: document.getElementById("app")`)
	assert.Contains(t, entry, "new App(")
	assert.Contains(t, entry, "export default app;")
	assert.NotContains(t, entry, `\`)
}

func TestImportPath(t *testing.T) {
	sep := string(filepath.Separator)

	testCases := []struct {
		name       string
		stagingDir string
		source     string
		expected   string
	}{
		{
			name:       "parent directory",
			stagingDir: filepath.Join(sep+"tmp", ".render"),
			source:     filepath.Join(sep+"tmp", "App.svelte"),
			expected:   "../App.svelte",
		},
		{
			name:       "inside staging",
			stagingDir: filepath.Join(sep+"tmp", ".render"),
			source:     filepath.Join(sep+"tmp", ".render", "sub", "App.svelte"),
			expected:   "./sub/App.svelte",
		},
		{
			name:       "relative source",
			stagingDir: "stage",
			source:     "App.svelte",
			expected:   "../App.svelte",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ImportPath(tc.stagingDir, tc.source))
		})
	}
}

func TestImportPathNoRelativePath(t *testing.T) {
	if runtime.GOOS != "windows" {
		// mixing an absolute and a relative path is the portable way to get
		// filepath.Rel to fail
		got := ImportPath("/tmp/.render", "relative/App.svelte")
		assert.Equal(t, "relative/App.svelte", got)
		return
	}
	got := ImportPath(`C:\tmp\.render`, `D:\proj\App.svelte`)
	assert.Equal(t, "D:/proj/App.svelte", got)
}

func TestPreviewTitle(t *testing.T) {
	assert.Equal(t, "App - Preview", PreviewTitle("/x/App.svelte"))
	assert.Equal(t, "Counter Button - Preview", PreviewTitle("counter-button.svelte"))
	assert.Equal(t, "MyWidget - Preview", PreviewTitle("MyWidget.svelte"))
	assert.Equal(t, "Preview", PreviewTitle(".svelte"))
}

func TestInlineScript(t *testing.T) {
	assert.Equal(t, `const s = "<\/script>";`, InlineScript([]byte(`const s = "</script>";`)))
	assert.Equal(t, `"<\/SCRIPT >"`, InlineScript([]byte(`"</SCRIPT >"`)))
	assert.Equal(t, "let a = 1 < 2;", InlineScript([]byte("let a = 1 < 2;")))
}

func TestRenderDocumentStructure(t *testing.T) {
	code := []byte(`console.log("</script><b>not markup</b>");`)
	doc, err := RenderDocument(context.Background(), "App - Preview", code)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(strings.ToLower(doc), "<!doctype html>"), doc)

	root, err := html.Parse(strings.NewReader(doc))
	require.NoError(t, err)

	var scripts, mounts, icons []*html.Node
	var title string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script":
				scripts = append(scripts, n)
			case "div":
				if attr(n, "id") == MountID {
					mounts = append(mounts, n)
				}
			case "link":
				if attr(n, "rel") == "icon" {
					icons = append(icons, n)
				}
			case "title":
				if n.FirstChild != nil {
					title = n.FirstChild.Data
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	require.Len(t, scripts, 1)
	assert.Equal(t, "module", attr(scripts[0], "type"))
	assert.True(t, hasAttr(scripts[0], "defer"))
	require.NotNil(t, scripts[0].FirstChild)
	assert.Contains(t, scripts[0].FirstChild.Data, `<\/script><b>not markup</b>`)

	require.Len(t, mounts, 1)
	assert.Nil(t, mounts[0].FirstChild)

	require.Len(t, icons, 1)
	assert.Equal(t, "./svelte.svg", attr(icons[0], "href"))

	assert.Equal(t, "App - Preview", title)
}

func TestRenderDocumentEscapesTitle(t *testing.T) {
	doc, err := RenderDocument(context.Background(), "<b>x</b>", nil)
	require.NoError(t, err)
	assert.Contains(t, doc, "<title>&lt;b&gt;x&lt;/b&gt;</title>")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func TestRenderDocumentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RenderDocument(ctx, "App - Preview", []byte("1"))
	assert.ErrorIs(t, err, context.Canceled)
}
