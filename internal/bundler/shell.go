package bundler

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var scriptCloseTag = regexp.MustCompile(`(?i)</script`)

// PreviewTitle derives the document title from the component file name.
func PreviewTitle(source string) string {
	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if name == "" || name == "." {
		return "Preview"
	}
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return cases.Title(language.English, cases.NoLower).String(name) + " - Preview"
}

// InlineScript makes code safe to embed inside a script element.
func InlineScript(code []byte) string {
	return scriptCloseTag.ReplaceAllStringFunc(string(code), func(m string) string {
		return `<\/` + m[2:]
	})
}

// moduleScript is the deferred module script carrying the bundle. Script
// bodies are raw text to templ, so the escaped code is emitted as is.
func moduleScript(code []byte) templ.Component {
	return templ.Raw(`<script type="module" defer>` + InlineScript(code) + `</script>`)
}

// RenderDocument renders the Shell component (shell.templ) to a string.
func RenderDocument(ctx context.Context, title string, script []byte) (string, error) {
	var buf bytes.Buffer
	if err := Shell(title, script).Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
