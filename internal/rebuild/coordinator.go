// Package rebuild serializes rebuilds of the preview. At most one rebuild runs
// at a time; a trigger that arrives while one is running is dropped rather
// than queued.
package rebuild

import (
	"context"
	"sync"
	"time"

	"github.com/Daw588/lavender/internal/bundler"
	"github.com/Daw588/lavender/internal/errors"
	"github.com/Daw588/lavender/internal/logging"
	"github.com/Daw588/lavender/internal/staging"
)

// ErrCodeBusy is reported by Rebuild when another rebuild is in flight.
const ErrCodeBusy = "ERR_REBUILD_BUSY"

// ErrCodeClosed is reported by Rebuild after Close.
const ErrCodeClosed = "ERR_REBUILD_CLOSED"

// ErrBusy matches, via errors.Is, the error returned for a dropped Rebuild.
var ErrBusy = errors.NewInternalError(ErrCodeBusy, "a rebuild is already in progress", nil)

// ErrClosed matches, via errors.Is, the error returned by Rebuild after Close.
var ErrClosed = errors.NewInternalError(ErrCodeClosed, "the coordinator is closed", nil)

// Compiler produces a fresh build.
type Compiler interface {
	Compile(ctx context.Context) (*bundler.Result, error)
}

// Stage receives build artifacts.
type Stage interface {
	WriteArtifact(name string, content []byte) error
}

// Reloader refreshes the preview after new artifacts are written.
type Reloader interface {
	Reload(ctx context.Context) error
}

// State is the rebuild flag.
type State int

const (
	StateIdle State = iota
	StateBuilding
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	default:
		return "unknown"
	}
}

// Coordinator runs rebuilds one at a time.
type Coordinator struct {
	compiler Compiler
	stage    Stage
	reloader Reloader
	logger   logging.Logger
	metrics  *Metrics

	// wg.Add only happens under mutex while closed is false, so Close never
	// races an Add from zero.
	mutex  sync.Mutex
	state  State
	closed bool
	wg     sync.WaitGroup
}

// New creates a Coordinator in the idle state.
func New(compiler Compiler, stage Stage, reloader Reloader, logger logging.Logger) *Coordinator {
	return &Coordinator{
		compiler: compiler,
		stage:    stage,
		reloader: reloader,
		logger:   logger.WithComponent("rebuild"),
		metrics:  NewMetrics(),
		state:    StateIdle,
	}
}

// State returns the current rebuild flag.
func (c *Coordinator) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// Metrics returns a snapshot of rebuild metrics.
func (c *Coordinator) Metrics() Snapshot {
	return c.metrics.Snapshot()
}

// Trigger starts a rebuild in the background unless one is already running
// or the coordinator is closed. It never blocks and reports whether a rebuild
// was started.
func (c *Coordinator) Trigger(ctx context.Context, reason string) bool {
	switch c.acquire(true) {
	case acquireClosed:
		c.logger.Debug(ctx, "Coordinator closed, change ignored", "reason", reason)
		return false
	case acquireBusy:
		c.drop(ctx, reason)
		return false
	}

	go func() {
		defer c.wg.Done()
		defer c.release()
		_ = c.run(ctx, reason)
	}()

	return true
}

// Rebuild runs a rebuild on the calling goroutine. It returns ErrBusy when
// another rebuild is in flight, and otherwise the outcome of the attempt.
func (c *Coordinator) Rebuild(ctx context.Context, reason string) error {
	switch c.acquire(false) {
	case acquireClosed:
		return ErrClosed
	case acquireBusy:
		c.drop(ctx, reason)
		return ErrBusy
	}
	defer c.release()

	return c.run(ctx, reason)
}

// Wait blocks until every rebuild started by Trigger so far has finished.
// Triggers racing with Wait may still start; use Close to stop them.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close refuses every later Trigger and Rebuild, then waits for the rebuild
// in flight. Safe to call more than once.
func (c *Coordinator) Close() {
	c.mutex.Lock()
	c.closed = true
	c.mutex.Unlock()

	c.wg.Wait()
}

type acquireResult int

const (
	acquired acquireResult = iota
	acquireBusy
	acquireClosed
)

// acquire flips the flag to building. A background acquire also registers
// with the wait group under the same lock.
func (c *Coordinator) acquire(background bool) acquireResult {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return acquireClosed
	}
	if c.state == StateBuilding {
		return acquireBusy
	}
	c.state = StateBuilding
	if background {
		c.wg.Add(1)
	}
	return acquired
}

func (c *Coordinator) release() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.state = StateIdle
}

func (c *Coordinator) drop(ctx context.Context, reason string) {
	c.metrics.RecordDropped()
	c.logger.Debug(ctx, "Rebuild already in progress, change ignored", "reason", reason)
}

// run is the rebuild body: compile, write the bundle and the document, then
// reload. Nothing is written or reloaded after a failed compile.
func (c *Coordinator) run(ctx context.Context, reason string) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordAttempt(time.Since(start), err)
	}()

	c.logger.Info(ctx, "Rebuilding", "reason", reason)

	result, err := c.compiler.Compile(ctx)
	if err != nil {
		if errors.IsCompileError(err) {
			c.logger.Warn(ctx, err, "Compilation failed, keeping previous preview",
				"diagnostics", errors.FormatDiagnostics(errors.Diagnostics(err)),
			)
		} else {
			c.logger.Error(ctx, err, "Bundler failed")
		}
		return err
	}

	if err = c.stage.WriteArtifact(staging.Bundle, result.Script); err != nil {
		c.logger.Error(ctx, err, "Failed to write bundle", "artifact", staging.Bundle)
		return err
	}
	if err = c.stage.WriteArtifact(staging.Document, []byte(result.HTML)); err != nil {
		c.logger.Error(ctx, err, "Failed to write document", "artifact", staging.Document)
		return err
	}

	if err = c.reloader.Reload(ctx); err != nil {
		c.logger.Error(ctx, err, "Failed to reload preview")
		return err
	}
	c.metrics.RecordReload()

	c.logger.Info(ctx, "Preview updated",
		"reason", reason,
		"duration_ms", time.Since(start).Milliseconds(),
		"compile_ms", result.Duration.Milliseconds(),
	)

	return nil
}
