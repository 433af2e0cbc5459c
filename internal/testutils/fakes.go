package testutils

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Daw588/lavender/internal/bundler"
	"github.com/Daw588/lavender/internal/errors"
	"github.com/Daw588/lavender/internal/session"
)

// FakeBundler is a controllable bundler.Bundler.
type FakeBundler struct {
	mu      sync.Mutex
	err     error
	gate    chan struct{}
	calls   atomic.Int64
	started chan struct{}
}

// NewFakeBundler returns a bundler whose builds succeed immediately.
func NewFakeBundler() *FakeBundler {
	return &FakeBundler{started: make(chan struct{}, 64)}
}

// FailWith makes subsequent builds return err. A nil err restores success.
func (f *FakeBundler) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// FailCompile makes subsequent builds fail with a diagnostic at file:line.
func (f *FakeBundler) FailCompile(file string, line int, message string) {
	f.FailWith(errors.NewCompileError("compilation failed with 1 error(s)", []errors.BuildError{{
		File:     file,
		Line:     line,
		Message:  message,
		Severity: errors.ErrorSeverityError,
	}}))
}

// Hold makes subsequent builds block until Release is called.
func (f *FakeBundler) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

// Release unblocks held builds.
func (f *FakeBundler) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Started receives a value each time a build begins.
func (f *FakeBundler) Started() <-chan struct{} {
	return f.started
}

// Calls returns the number of builds started.
func (f *FakeBundler) Calls() int {
	return int(f.calls.Load())
}

// Compile implements bundler.Bundler.
func (f *FakeBundler) Compile(ctx context.Context) (*bundler.Result, error) {
	n := f.calls.Add(1)
	select {
	case f.started <- struct{}{}:
	default:
	}

	f.mu.Lock()
	gate, err := f.gate, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	script := fmt.Sprintf("console.log(%q);", fmt.Sprintf("build %d", n))
	html, renderErr := bundler.RenderDocument(ctx, "App - Preview", []byte(script))
	if renderErr != nil {
		return nil, renderErr
	}

	return &bundler.Result{
		HTML:     html,
		Script:   []byte(script),
		Duration: time.Millisecond,
	}, nil
}

// FakeStage records artifacts in memory.
type FakeStage struct {
	mu        sync.Mutex
	artifacts map[string][]byte
	writes    []string
	failOn    map[string]error
}

// NewFakeStage returns an empty in-memory stage.
func NewFakeStage() *FakeStage {
	return &FakeStage{
		artifacts: make(map[string][]byte),
		failOn:    make(map[string]error),
	}
}

// FailOn makes writes of name return err.
func (s *FakeStage) FailOn(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[name] = err
}

// WriteArtifact implements rebuild.Stage.
func (s *FakeStage) WriteArtifact(name string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failOn[name]; ok {
		return err
	}
	s.artifacts[name] = append([]byte(nil), content...)
	s.writes = append(s.writes, name)
	return nil
}

// Artifact returns the last content written for name.
func (s *FakeStage) Artifact(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.artifacts[name]
	return content, ok
}

// Writes returns artifact names in write order.
func (s *FakeStage) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

// FakeBrowser is an in-memory session.Browser.
type FakeBrowser struct {
	URL string

	mu           sync.Mutex
	reloadErr    error
	closeErr     error
	reloads      int
	closes       int
	disconnected chan struct{}
	disconnect   sync.Once
}

// NewFakeBrowser returns an open window showing url.
func NewFakeBrowser(url string) *FakeBrowser {
	return &FakeBrowser{URL: url, disconnected: make(chan struct{})}
}

// Reload implements session.Browser.
func (b *FakeBrowser) Reload(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reloadErr != nil {
		return b.reloadErr
	}
	b.reloads++
	return nil
}

// Close implements session.Browser.
func (b *FakeBrowser) Close() error {
	b.mu.Lock()
	b.closes++
	err := b.closeErr
	b.mu.Unlock()
	b.Disconnect()
	return err
}

// Disconnected implements session.Browser.
func (b *FakeBrowser) Disconnected() <-chan struct{} {
	return b.disconnected
}

// Disconnect simulates the user closing the window.
func (b *FakeBrowser) Disconnect() {
	b.disconnect.Do(func() { close(b.disconnected) })
}

// FailReload makes Reload return err.
func (b *FakeBrowser) FailReload(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reloadErr = err
}

// FailClose makes Close return err.
func (b *FakeBrowser) FailClose(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeErr = err
}

// Reloads returns the number of successful reloads.
func (b *FakeBrowser) Reloads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reloads
}

// Closes returns the number of Close calls.
func (b *FakeBrowser) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// FakeLauncher opens FakeBrowsers.
type FakeLauncher struct {
	mu       sync.Mutex
	err      error
	urls     []string
	browsers []*FakeBrowser
}

// NewFakeLauncher returns a launcher that always succeeds.
func NewFakeLauncher() *FakeLauncher {
	return &FakeLauncher{}
}

// FailWith makes Launch return err.
func (l *FakeLauncher) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Launch implements session.Launcher.
func (l *FakeLauncher) Launch(ctx context.Context, url string) (session.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urls = append(l.urls, url)
	if l.err != nil {
		return nil, l.err
	}
	b := NewFakeBrowser(url)
	l.browsers = append(l.browsers, b)
	return b, nil
}

// Launches returns the number of Launch calls.
func (l *FakeLauncher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.urls)
}

// URLs returns every URL passed to Launch.
func (l *FakeLauncher) URLs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.urls...)
}

// Browser returns the most recently launched window, or nil.
func (l *FakeLauncher) Browser() *FakeBrowser {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.browsers) == 0 {
		return nil
	}
	return l.browsers[len(l.browsers)-1]
}

// FakeCloser counts Close calls.
type FakeCloser struct {
	closes atomic.Int64
	order  *[]string
	name   string
	mu     *sync.Mutex
}

// NewFakeCloser returns a closer that appends name to order when closed.
// order and mu may be nil.
func NewFakeCloser(name string, order *[]string, mu *sync.Mutex) *FakeCloser {
	return &FakeCloser{name: name, order: order, mu: mu}
}

// Close implements io.Closer.
func (c *FakeCloser) Close() error {
	c.closes.Add(1)
	if c.order != nil {
		if c.mu != nil {
			c.mu.Lock()
			defer c.mu.Unlock()
		}
		*c.order = append(*c.order, c.name)
	}
	return nil
}

// Closes returns the number of Close calls.
func (c *FakeCloser) Closes() int {
	return int(c.closes.Load())
}

// FakeComponentCompiler returns fixed JavaScript for every component.
type FakeComponentCompiler struct {
	Code string
	Err  error

	calls atomic.Int64
}

// CompileComponent implements bundler.ComponentCompiler.
func (c *FakeComponentCompiler) CompileComponent(ctx context.Context, path string) (*bundler.CompiledComponent, error) {
	c.calls.Add(1)
	if c.Err != nil {
		return nil, c.Err
	}
	return &bundler.CompiledComponent{Code: c.Code}, nil
}

// Calls returns the number of components compiled.
func (c *FakeComponentCompiler) Calls() int {
	return int(c.calls.Load())
}
