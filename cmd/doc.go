// Package cmd implements the lavender commands on top of cobra and viper.
//
// # Available Commands
//
//   - lavender <component>: preview a component live in a Chrome app window
//   - build: bundle a component once and print the page path
//   - version: show build information
//   - config: print the effective configuration
//
// # Command Examples
//
//	// Preview a component
//	lavender src/App.svelte
//
//	// Build once into a custom directory
//	lavender build src/App.svelte --staging-dir ./out
//
//	// Use a specific browser
//	lavender src/App.svelte --browser /usr/bin/chromium
//
// # Exit Status
//
// Invalid input, a failing initial build or a browser that cannot be started
// ends the process with status 1 before the preview opens. Build failures after
// that are logged and the last good preview stays on screen.
package cmd
