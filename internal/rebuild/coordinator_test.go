package rebuild

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Daw588/lavender/internal/bundler"
	lerrors "github.com/Daw588/lavender/internal/errors"
	"github.com/Daw588/lavender/internal/staging"
	"github.com/Daw588/lavender/internal/testutils"
)

type countingReloader struct {
	reloads atomic.Int64
	err     error
}

func (r *countingReloader) Reload(ctx context.Context) error {
	if r.err != nil {
		return r.err
	}
	r.reloads.Add(1)
	return nil
}

// overlapCompiler records whether two compiles ever ran at the same time.
type overlapCompiler struct {
	active   atomic.Int32
	overlaps atomic.Int32
	calls    atomic.Int32
	delay    time.Duration
}

func (o *overlapCompiler) Compile(ctx context.Context) (*bundler.Result, error) {
	o.calls.Add(1)
	if o.active.Add(1) > 1 {
		o.overlaps.Add(1)
	}
	defer o.active.Add(-1)
	time.Sleep(o.delay)
	return &bundler.Result{HTML: "<html></html>", Script: []byte("x")}, nil
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "building", StateBuilding.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestRebuildSuccess(t *testing.T) {
	b := testutils.NewFakeBundler()
	stage := testutils.NewFakeStage()
	reloader := &countingReloader{}
	c := New(b, stage, reloader, testutils.NewTestLogger())

	require.NoError(t, c.Rebuild(context.Background(), "src/App.svelte"))

	assert.Equal(t, []string{staging.Bundle, staging.Document}, stage.Writes())
	assert.EqualValues(t, 1, reloader.reloads.Load())
	assert.Equal(t, StateIdle, c.State())

	html, ok := stage.Artifact(staging.Document)
	require.True(t, ok)
	assert.Contains(t, string(html), "build 1")

	m := c.Metrics()
	assert.EqualValues(t, 1, m.Attempts)
	assert.EqualValues(t, 1, m.Successes)
	assert.EqualValues(t, 1, m.Reloads)
}

func TestRebuildCompileFailureKeepsPreview(t *testing.T) {
	b := testutils.NewFakeBundler()
	stage := testutils.NewFakeStage()
	reloader := &countingReloader{}
	logger, logs := testutils.NewBufferLogger()
	c := New(b, stage, reloader, logger)

	require.NoError(t, c.Rebuild(context.Background(), "first"))
	before, _ := stage.Artifact(staging.Document)

	b.FailCompile("App.svelte", 4, "Unexpected token")
	err := c.Rebuild(context.Background(), "second")
	require.Error(t, err)
	assert.True(t, lerrors.IsCompileError(err))

	after, _ := stage.Artifact(staging.Document)
	assert.Equal(t, before, after)
	assert.Len(t, stage.Writes(), 2)
	assert.EqualValues(t, 1, reloader.reloads.Load())
	assert.Equal(t, StateIdle, c.State())

	assert.True(t, logs.Contains("Compilation failed"))
	assert.True(t, logs.Contains("Unexpected token"))
	assert.True(t, logs.Contains("level=WARN"))

	m := c.Metrics()
	assert.EqualValues(t, 2, m.Attempts)
	assert.EqualValues(t, 1, m.Failures)
}

func TestRebuildWriteFailure(t *testing.T) {
	b := testutils.NewFakeBundler()
	stage := testutils.NewFakeStage()
	stage.FailOn(staging.Document, lerrors.NewIOError(lerrors.ErrCodeStagingWrite, "writing index.html", errors.New("disk full")))
	reloader := &countingReloader{}
	logger, logs := testutils.NewBufferLogger()
	c := New(b, stage, reloader, logger)

	err := c.Rebuild(context.Background(), "change")
	require.Error(t, err)
	assert.Equal(t, lerrors.ErrorTypeIO, lerrors.GetErrorType(err))
	assert.Zero(t, reloader.reloads.Load())
	assert.True(t, logs.Contains("level=ERROR"))

	// the coordinator stays usable
	assert.Equal(t, StateIdle, c.State())
	assert.True(t, c.Trigger(context.Background(), "again"))
	c.Wait()
}

func TestRebuildReloadFailure(t *testing.T) {
	stage := testutils.NewFakeStage()
	reloader := &countingReloader{err: errors.New("target closed")}
	c := New(testutils.NewFakeBundler(), stage, reloader, testutils.NewTestLogger())

	err := c.Rebuild(context.Background(), "change")
	require.Error(t, err)
	assert.Len(t, stage.Writes(), 2)
	assert.Zero(t, c.Metrics().Reloads)
}

func TestTriggerDropsWhileBuilding(t *testing.T) {
	b := testutils.NewFakeBundler()
	b.Hold()
	reloader := &countingReloader{}
	c := New(b, testutils.NewFakeStage(), reloader, testutils.NewTestLogger())

	require.True(t, c.Trigger(context.Background(), "first"))
	<-b.Started()
	assert.Equal(t, StateBuilding, c.State())

	for i := 0; i < 5; i++ {
		assert.False(t, c.Trigger(context.Background(), "burst"))
	}
	assert.ErrorIs(t, c.Rebuild(context.Background(), "sync"), ErrBusy)

	b.Release()
	c.Wait()

	assert.Equal(t, 1, b.Calls())
	assert.EqualValues(t, 1, reloader.reloads.Load())
	assert.Equal(t, StateIdle, c.State())

	m := c.Metrics()
	assert.EqualValues(t, 1, m.Attempts)
	assert.EqualValues(t, 6, m.Dropped)

	// dropped events are not queued: once idle, a new trigger runs again
	require.True(t, c.Trigger(context.Background(), "later"))
	c.Wait()
	assert.Equal(t, 2, b.Calls())
}

func TestConcurrentBurstNeverOverlaps(t *testing.T) {
	compiler := &overlapCompiler{delay: 5 * time.Millisecond}
	c := New(compiler, testutils.NewFakeStage(), &countingReloader{}, testutils.NewTestLogger())

	var wg sync.WaitGroup
	var started atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Trigger(context.Background(), "burst") {
				started.Add(1)
			}
		}()
	}
	wg.Wait()
	c.Wait()

	assert.Zero(t, compiler.overlaps.Load())
	assert.Equal(t, compiler.calls.Load(), started.Load())
	assert.GreaterOrEqual(t, compiler.calls.Load(), int32(1))

	m := c.Metrics()
	assert.EqualValues(t, 50, m.Attempts+m.Dropped)
}

func TestWaitWithoutRebuild(t *testing.T) {
	c := New(testutils.NewFakeBundler(), testutils.NewFakeStage(), &countingReloader{}, testutils.NewTestLogger())

	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked with nothing in flight")
	}
}

func TestCloseWaitsForInFlightRebuild(t *testing.T) {
	b := testutils.NewFakeBundler()
	b.Hold()
	reloader := &countingReloader{}
	c := New(b, testutils.NewFakeStage(), reloader, testutils.NewTestLogger())

	require.True(t, c.Trigger(context.Background(), "first"))
	<-b.Started()

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()

	assert.Never(t, func() bool {
		select {
		case <-closed:
			return true
		default:
			return false
		}
	}, 100*time.Millisecond, 10*time.Millisecond)

	b.Release()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the rebuild finished")
	}
	assert.EqualValues(t, 1, reloader.reloads.Load())
}

func TestClosedCoordinatorRefusesRebuilds(t *testing.T) {
	b := testutils.NewFakeBundler()
	c := New(b, testutils.NewFakeStage(), &countingReloader{}, testutils.NewTestLogger())

	c.Close()
	c.Close()

	assert.False(t, c.Trigger(context.Background(), "late"))
	assert.ErrorIs(t, c.Rebuild(context.Background(), "late"), ErrClosed)
	c.Wait()

	assert.Zero(t, b.Calls())
	assert.Zero(t, c.Metrics().Attempts)
	assert.Zero(t, c.Metrics().Dropped)
	assert.Equal(t, StateIdle, c.State())
}

func TestTriggerRacingClose(t *testing.T) {
	compiler := &overlapCompiler{delay: time.Millisecond}
	c := New(compiler, testutils.NewFakeStage(), &countingReloader{}, testutils.NewTestLogger())

	var wg sync.WaitGroup
	var started atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Trigger(context.Background(), "burst") {
				started.Add(1)
			}
		}()
	}
	c.Close()
	finished := compiler.calls.Load()
	wg.Wait()

	// nothing starts once Close has returned
	assert.Equal(t, finished, compiler.calls.Load())
	assert.Equal(t, started.Load(), compiler.calls.Load())
	assert.Zero(t, compiler.overlaps.Load())
}
