// Package preview wires the staging area, bundler, watcher, rebuild
// coordinator and browser session into the live preview of one component.
//
// The flow is:
//   - validate the entry component before touching anything on disk
//   - stage the entry module and icon, compile, write the document
//   - open the preview window on the staged document
//   - rebuild and reload on every relevant change until the window closes
//     or the process is interrupted
package preview

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Daw588/lavender/internal/assets"
	"github.com/Daw588/lavender/internal/browser"
	"github.com/Daw588/lavender/internal/bundler"
	"github.com/Daw588/lavender/internal/config"
	"github.com/Daw588/lavender/internal/errors"
	"github.com/Daw588/lavender/internal/logging"
	"github.com/Daw588/lavender/internal/rebuild"
	"github.com/Daw588/lavender/internal/session"
	"github.com/Daw588/lavender/internal/staging"
	"github.com/Daw588/lavender/internal/watcher"
)

// Watcher is the part of watcher.FileWatcher the preview drives.
type Watcher interface {
	AddFilter(filter watcher.FileFilter)
	AddHandler(handler watcher.ChangeHandler)
	AddRecursive(dir string) error
	Start(ctx context.Context) error
	Close() error
}

// WatcherFactory creates a recursive watcher rooted at root.
type WatcherFactory func(root string, ignore []string, logger logging.Logger) (Watcher, error)

// NewFileWatcher is the default WatcherFactory.
func NewFileWatcher(root string, ignore []string, logger logging.Logger) (Watcher, error) {
	return watcher.NewFileWatcher(root, ignore, logger)
}

// Options configures a Preview. Bundler, Launcher and NewWatcher default to
// the esbuild bundler, the Chrome launcher and an fsnotify watcher.
type Options struct {
	Config     *config.Config
	Source     string
	Bundler    bundler.Bundler
	Launcher   session.Launcher
	Logger     logging.Logger
	NewWatcher WatcherFactory
}

// Preview is one live preview session.
type Preview struct {
	config      *config.Config
	source      string
	root        string
	stage       *staging.Area
	bundler     bundler.Bundler
	newWatcher  WatcherFactory
	lifecycle   *session.Lifecycle
	coordinator *rebuild.Coordinator
	logger      logging.Logger
}

// ValidateSource checks that path names a regular file and returns its
// absolute form.
func ValidateSource(path string) (string, error) {
	if path == "" {
		return "", errors.NewValidationError(errors.ErrCodeInvalidInput, "no component path given")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.ErrNotAFile(path)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.ErrFileNotFound(path)
		}
		return "", errors.ErrNotAFile(path)
	}
	if !info.Mode().IsRegular() {
		return "", errors.ErrNotAFile(path)
	}

	return abs, nil
}

// New validates the source and assembles a Preview. Nothing is written to disk
// and no browser is started.
func New(opts Options) (*Preview, error) {
	source, err := ValidateSource(opts.Source)
	if err != nil {
		return nil, err
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger(logging.DefaultConfig())
	}

	root, err := filepath.Abs(cfg.Watch.Root)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid watch root: "+cfg.Watch.Root)
	}

	stage := staging.New(cfg.Staging.Dir)

	b := opts.Bundler
	if b == nil {
		b, err = bundler.NewESBuild(bundler.Options{
			Source:     source,
			StagingDir: stage.Dir(),
			WorkingDir: root,
			Compiler: &bundler.NodeCompiler{
				Node:       cfg.Bundler.Node,
				Preprocess: cfg.Bundler.Preprocess,
			},
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
	}

	launcher := opts.Launcher
	if launcher == nil {
		launcher = browser.NewLauncher(browser.Options{
			ExecPath:     cfg.Browser.Path,
			Width:        cfg.Browser.Width,
			Height:       cfg.Browser.Height,
			StartTimeout: cfg.Browser.StartTimeout,
		}, logger)
	}

	newWatcher := opts.NewWatcher
	if newWatcher == nil {
		newWatcher = NewFileWatcher
	}

	lifecycle := session.New(launcher, logger)

	return &Preview{
		config:      cfg,
		source:      source,
		root:        root,
		stage:       stage,
		bundler:     b,
		newWatcher:  newWatcher,
		lifecycle:   lifecycle,
		coordinator: rebuild.New(b, stage, lifecycle, logger),
		logger:      logger.WithComponent("preview"),
	}, nil
}

// Source returns the absolute path of the entry component.
func (p *Preview) Source() string {
	return p.source
}

// DocumentPath returns the staged preview document.
func (p *Preview) DocumentPath() string {
	return p.stage.PathOf(staging.Document)
}

// Lifecycle returns the window lifecycle.
func (p *Preview) Lifecycle() *session.Lifecycle {
	return p.lifecycle
}

// Coordinator returns the rebuild coordinator.
func (p *Preview) Coordinator() *rebuild.Coordinator {
	return p.coordinator
}

// Build stages and compiles the component once and returns the document path.
func (p *Preview) Build(ctx context.Context) (string, error) {
	perf := logging.StartOperation(p.logger, "build")

	if err := p.stage.Prepare(); err != nil {
		perf.EndWithError(ctx, err)
		return "", err
	}

	entry := bundler.EntryModule(p.stage.Dir(), p.source)
	if err := p.stage.WriteArtifact(staging.EntryModule, []byte(entry)); err != nil {
		perf.EndWithError(ctx, err)
		return "", err
	}
	if err := p.stage.CopyAsset(staging.Icon, assets.Icon); err != nil {
		perf.EndWithError(ctx, err)
		return "", err
	}

	result, err := p.bundler.Compile(ctx)
	if err != nil {
		perf.EndWithError(ctx, err)
		return "", err
	}
	for _, w := range result.Warnings {
		p.logger.Warn(ctx, nil, "Build warning", "warning", w.Error())
	}

	if err := p.stage.WriteArtifact(staging.Bundle, result.Script); err != nil {
		perf.EndWithError(ctx, err)
		return "", err
	}
	if err := p.stage.WriteArtifact(staging.Document, []byte(result.HTML)); err != nil {
		perf.EndWithError(ctx, err)
		return "", err
	}

	perf.End(ctx)
	return p.DocumentPath(), nil
}

// Bootstrap runs the initial build and opens the preview window. Any failure
// is fatal.
func (p *Preview) Bootstrap(ctx context.Context) error {
	document, err := p.Build(ctx)
	if err != nil {
		return err
	}

	p.logger.Info(ctx, "Initial build complete", "document", document)

	return p.lifecycle.Start(ctx, document)
}

// HandleChange starts a rebuild if path, relative to the watch root, can
// affect the bundle. It reports whether a rebuild was started.
func (p *Preview) HandleChange(ctx context.Context, path string) bool {
	if !watcher.IsRelevant(path) || p.inStaging(path) {
		p.logger.Debug(ctx, "Ignoring change", "path", path)
		return false
	}

	// a rebuild in flight finishes even if the session is shutting down
	return p.coordinator.Trigger(context.WithoutCancel(ctx), "changed "+path)
}

func (p *Preview) inStaging(path string) bool {
	abs := filepath.FromSlash(path)
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(p.root, abs)
	}

	stageDir, err := filepath.Abs(p.stage.Dir())
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(stageDir, abs)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Run bootstraps the preview and serves rebuilds until ctx is cancelled or
// the window is closed.
func (p *Preview) Run(ctx context.Context) error {
	if err := p.Bootstrap(ctx); err != nil {
		_ = p.lifecycle.Shutdown("bootstrap failed")
		return err
	}

	w, err := p.newWatcher(p.root, p.config.Watch.Ignore, p.logger)
	if err != nil {
		_ = p.lifecycle.Shutdown("watcher failed")
		return errors.Wrap(err, errors.ErrorTypeIO, errors.ErrCodeWatcherFailed, "failed to create file watcher")
	}
	// closed before the window on shutdown
	p.lifecycle.Attach(w)

	w.AddFilter(watcher.RelevantFilter)
	w.AddHandler(func(event watcher.ChangeEvent) error {
		p.HandleChange(ctx, event.Path)
		return nil
	})

	if err := w.AddRecursive(p.root); err != nil {
		_ = p.lifecycle.Shutdown("watcher failed")
		return errors.Wrap(err, errors.ErrorTypeIO, errors.ErrCodeWatcherFailed, "failed to watch "+p.root)
	}
	if err := w.Start(ctx); err != nil {
		_ = p.lifecycle.Shutdown("watcher failed")
		return errors.Wrap(err, errors.ErrorTypeIO, errors.ErrCodeWatcherFailed, "failed to start file watcher")
	}

	p.logger.Info(ctx, "Watching for changes", "root", p.root)

	reason := "interrupted"
	select {
	case <-ctx.Done():
	case <-p.lifecycle.Done():
		reason = p.lifecycle.Reason()
	}

	if err := p.lifecycle.Shutdown(reason); err != nil {
		p.logger.Warn(context.Background(), err, "Shutdown finished with errors")
	}
	p.coordinator.Close()

	m := p.coordinator.Metrics()
	p.logger.Info(context.Background(), "Preview stopped",
		"reason", reason,
		"rebuilds", m.Attempts,
		"failed", m.Failures,
		"dropped", m.Dropped,
		"reloads", m.Reloads,
	)

	return nil
}
