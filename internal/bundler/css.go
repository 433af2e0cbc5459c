package bundler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
)

// cssPlugin turns plain stylesheet imports into modules that inject a style
// element, so the bundle stays a single script.
func cssPlugin() api.Plugin {
	return api.Plugin{
		Name: "css-inject",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `\.css$`}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				content, err := os.ReadFile(args.Path)
				if err != nil {
					return api.OnLoadResult{}, err
				}

				contents, err := StyleInjector(string(content))
				if err != nil {
					return api.OnLoadResult{}, err
				}

				return api.OnLoadResult{
					Contents:   &contents,
					ResolveDir: filepath.Dir(args.Path),
					Loader:     api.LoaderJS,
				}, nil
			})
		},
	}
}

// StyleInjector returns a module that appends css to the document head.
func StyleInjector(css string) (string, error) {
	quoted, err := json.Marshal(css)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`const css = %s;
const style = document.createElement("style");
style.textContent = css;
document.head.appendChild(style);
export default css;
`, quoted), nil
}
