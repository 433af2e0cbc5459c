// Package assets embeds the static files copied into the staging directory.
package assets

import _ "embed"

// Icon is the favicon referenced by the preview document.
//
//go:embed svelte.svg
var Icon []byte
