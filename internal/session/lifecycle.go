// Package session owns the preview window for the lifetime of the process:
// it opens the window on the staged document, reloads it after rebuilds and
// tears everything down exactly once, whichever side initiates it.
package session

import (
	"context"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Daw588/lavender/internal/errors"
	"github.com/Daw588/lavender/internal/logging"
)

// ErrCodeNotStarted is reported when the window is used before Start.
const ErrCodeNotStarted = "ERR_SESSION_NOT_STARTED"

// ErrCodeShutDown is reported when the window is used after Shutdown.
const ErrCodeShutDown = "ERR_SESSION_SHUT_DOWN"

// Browser is an open preview window.
type Browser interface {
	// Reload re-navigates the window to its current document.
	Reload(ctx context.Context) error
	// Close closes the window. Safe to call more than once.
	Close() error
	// Disconnected is closed when the window goes away on its own.
	Disconnected() <-chan struct{}
}

// Launcher opens a preview window on url.
type Launcher interface {
	Launch(ctx context.Context, url string) (Browser, error)
}

// Lifecycle coordinates the window and the resources torn down with it.
type Lifecycle struct {
	launcher Launcher
	logger   logging.Logger

	mutex   sync.Mutex
	browser Browser
	closers []io.Closer
	shut    bool
	reason  string

	shutdownOnce sync.Once
	shutdownErr  error
	done         chan struct{}
}

// New creates a Lifecycle that opens windows with launcher.
func New(launcher Launcher, logger logging.Logger) *Lifecycle {
	return &Lifecycle{
		launcher: launcher,
		logger:   logger.WithComponent("session"),
		done:     make(chan struct{}),
	}
}

// FileURL converts a local path to a file:// URL.
func FileURL(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// Start opens the window on the document at htmlPath. Disconnection of the
// window later shuts the lifecycle down.
func (l *Lifecycle) Start(ctx context.Context, htmlPath string) error {
	target := FileURL(htmlPath)

	b, err := l.launcher.Launch(ctx, target)
	if err != nil {
		return errors.WrapSession(err, errors.ErrCodeBrowserLaunch, "failed to open preview window")
	}

	l.mutex.Lock()
	if l.shut {
		l.mutex.Unlock()
		_ = b.Close()
		return errors.NewSessionError(ErrCodeShutDown, "session was shut down during launch", nil)
	}
	l.browser = b
	l.mutex.Unlock()

	l.logger.Info(ctx, "Preview window opened", "url", target)

	go l.watchDisconnect(b)

	return nil
}

func (l *Lifecycle) watchDisconnect(b Browser) {
	select {
	case <-b.Disconnected():
		l.logger.Info(context.Background(), "Preview window closed")
		_ = l.Shutdown("browser disconnected")
	case <-l.done:
	}
}

// Reload refreshes the open window.
func (l *Lifecycle) Reload(ctx context.Context) error {
	l.mutex.Lock()
	b, shut := l.browser, l.shut
	l.mutex.Unlock()

	if shut {
		return errors.NewSessionError(ErrCodeShutDown, "session is shut down", nil)
	}
	if b == nil {
		return errors.NewSessionError(ErrCodeNotStarted, "session has not been started", nil)
	}

	if err := b.Reload(ctx); err != nil {
		return errors.WrapSession(err, errors.ErrCodeBrowserProtocol, "failed to reload preview window")
	}
	return nil
}

// Attach registers c to be closed on shutdown, before the window. If the
// lifecycle is already shut down c is closed immediately.
func (l *Lifecycle) Attach(c io.Closer) {
	l.mutex.Lock()
	if l.shut {
		l.mutex.Unlock()
		_ = c.Close()
		return
	}
	l.closers = append(l.closers, c)
	l.mutex.Unlock()
}

// Shutdown closes attached resources and then the window. Only the first call
// has any effect; later calls return the first result.
func (l *Lifecycle) Shutdown(reason string) error {
	l.shutdownOnce.Do(func() {
		l.mutex.Lock()
		l.shut = true
		l.reason = reason
		closers := l.closers
		l.closers = nil
		b := l.browser
		l.mutex.Unlock()

		ctx := context.Background()
		l.logger.Info(ctx, "Shutting down", "reason", reason)

		var firstErr error
		for _, c := range closers {
			if err := c.Close(); err != nil {
				l.logger.Warn(ctx, err, "Failed to close resource")
				if firstErr == nil {
					firstErr = err
				}
			}
		}

		if b != nil {
			if err := b.Close(); err != nil {
				l.logger.Warn(ctx, err, "Failed to close preview window")
				if firstErr == nil {
					firstErr = err
				}
			}
		}

		l.shutdownErr = firstErr
		close(l.done)
	})

	return l.shutdownErr
}

// Done is closed once Shutdown has completed.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}

// Reason returns the reason passed to the effective Shutdown call.
func (l *Lifecycle) Reason() string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.reason
}
