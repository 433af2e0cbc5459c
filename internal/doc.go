// Package internal contains the core implementation packages for lavender.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - assets: Files copied next to the generated page
//   - browser: Chrome app window driven over the DevTools protocol
//   - bundler: esbuild bundling, Svelte compilation and the HTML shell
//   - config: Configuration loading and validation with viper
//   - errors: Typed errors and compiler diagnostics
//   - logging: Structured logging over log/slog
//   - preview: Orchestration of one live preview session
//   - rebuild: Single-flight rebuild coordination and metrics
//   - session: Window lifecycle and idempotent shutdown
//   - staging: The scratch directory holding generated artifacts
//   - testutils: Fakes and fixtures shared by package tests
//   - version: Build information
//   - watcher: Recursive file system monitoring and change filtering
//
// # Data Flow
//
//   - Watcher reports changes relative to the watch root
//   - Preview filters them and asks the rebuild coordinator to run
//   - The coordinator compiles with the bundler, writes the staging area and
//     reloads the window through the session
//   - The session shuts everything down once, whichever side ends first
//
// # Concurrency
//
// At most one rebuild runs at a time. A change that arrives while a rebuild is
// in flight is dropped rather than queued.
package internal
