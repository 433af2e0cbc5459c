// Package bundler compiles the entry component and everything it imports into
// a single ES module and wraps it in the self-contained preview document.
//
// Bundling is done in-process by esbuild. Svelte components are compiled by a
// ComponentCompiler plugged into the build; the default shells out to the
// project's own svelte/compiler through Node.js.
package bundler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/Daw588/lavender/internal/errors"
	"github.com/Daw588/lavender/internal/logging"
	"github.com/Daw588/lavender/internal/staging"
)

// Result is a successful build.
type Result struct {
	// HTML is the complete preview document with the script inlined.
	HTML string
	// Script is the bundled module.
	Script   []byte
	Warnings []errors.BuildError
	Duration time.Duration
}

// Bundler produces a Result from the staged entry module.
type Bundler interface {
	Compile(ctx context.Context) (*Result, error)
}

// Options configures an ESBuild bundler.
type Options struct {
	// Source is the absolute path of the entry component.
	Source string
	// StagingDir holds the entry module written before Compile is called.
	StagingDir string
	// WorkingDir anchors relative paths in diagnostics.
	WorkingDir string
	Compiler   ComponentCompiler
	Logger     logging.Logger
}

// ESBuild bundles with esbuild. It only reads from disk.
type ESBuild struct {
	source     string
	stagingDir string
	workingDir string
	title      string
	compiler   ComponentCompiler
	logger     logging.Logger
}

// NewESBuild creates an esbuild-backed Bundler.
func NewESBuild(opts Options) (*ESBuild, error) {
	if opts.Source == "" || opts.StagingDir == "" {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "bundler requires a source and a staging directory", nil)
	}
	if opts.Compiler == nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "bundler requires a component compiler", nil)
	}

	workingDir := opts.WorkingDir
	if workingDir == "" {
		workingDir = filepath.Dir(opts.Source)
	}
	absWorking, err := filepath.Abs(workingDir)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "resolving working directory", err)
	}

	return &ESBuild{
		source:     opts.Source,
		stagingDir: opts.StagingDir,
		workingDir: absWorking,
		title:      PreviewTitle(opts.Source),
		compiler:   opts.Compiler,
		logger:     opts.Logger.WithComponent("bundler"),
	}, nil
}

// Source returns the entry component path.
func (b *ESBuild) Source() string {
	return b.source
}

// BuildOptions returns the esbuild options used by Compile.
func (b *ESBuild) BuildOptions(ctx context.Context) api.BuildOptions {
	return api.BuildOptions{
		EntryPoints:   []string{filepath.Join(b.stagingDir, staging.EntryModule)},
		Bundle:        true,
		Write:         false,
		Outfile:       filepath.Join(b.stagingDir, staging.Bundle),
		Format:        api.FormatESModule,
		Sourcemap:     api.SourceMapNone,
		Platform:      api.PlatformBrowser,
		Conditions:    []string{"svelte", "browser"},
		MainFields:    []string{"svelte", "browser", "module", "main"},
		AbsWorkingDir: b.workingDir,
		LogLevel:      api.LogLevelSilent,
		Plugins: []api.Plugin{
			sveltePlugin(ctx, b.compiler),
			cssPlugin(),
		},
	}
}

// Compile bundles the entry module and renders the preview document.
func (b *ESBuild) Compile(ctx context.Context) (*Result, error) {
	start := time.Now()

	result := api.Build(b.BuildOptions(ctx))

	warnings := convertMessages(result.Warnings, errors.ErrorSeverityWarning)
	for _, w := range warnings {
		b.logger.Debug(ctx, "Bundler warning", "warning", w.Error())
	}

	if len(result.Errors) > 0 {
		diagnostics := convertMessages(result.Errors, errors.ErrorSeverityError)
		return nil, errors.NewCompileError(
			fmt.Sprintf("compilation failed with %d error(s)", len(diagnostics)),
			diagnostics,
		)
	}

	script, ok := bundleOutput(result.OutputFiles)
	if !ok {
		return nil, errors.NewCompileError("bundler produced no script output", nil)
	}

	html, err := RenderDocument(ctx, b.title, script)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "rendering preview document", err)
	}

	return &Result{
		HTML:     html,
		Script:   script,
		Warnings: warnings,
		Duration: time.Since(start),
	}, nil
}

func bundleOutput(files []api.OutputFile) ([]byte, bool) {
	for _, f := range files {
		if strings.HasSuffix(f.Path, ".js") {
			return f.Contents, true
		}
	}
	return nil, false
}

func convertMessages(messages []api.Message, severity errors.ErrorSeverity) []errors.BuildError {
	out := make([]errors.BuildError, 0, len(messages))
	for _, m := range messages {
		be := errors.BuildError{
			Message:  m.Text,
			Severity: severity,
		}
		if m.PluginName != "" {
			be.Message = fmt.Sprintf("[plugin %s] %s", m.PluginName, m.Text)
		}
		if m.Location != nil {
			be.File = m.Location.File
			be.Line = m.Location.Line
			be.Column = m.Location.Column
			be.LineText = m.Location.LineText
		}
		out = append(out, be)
	}
	return out
}
