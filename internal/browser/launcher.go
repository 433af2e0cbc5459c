// Package browser opens the preview in a dedicated Chrome app window and
// drives it over the DevTools protocol.
//
// The window is a real, visible browser process with its own throwaway
// profile, started through rod's launcher, which reads the DevTools endpoint
// from the browser's startup output. The protocol itself is spoken over
// coder/websocket: the session attaches to the app page so it can be
// reloaded in place.
package browser

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/Daw588/lavender/internal/errors"
	"github.com/Daw588/lavender/internal/logging"
	"github.com/Daw588/lavender/internal/session"
)

// Defaults for Options
const (
	DefaultWidth        = 640
	DefaultHeight       = 480
	DefaultStartTimeout = 20 * time.Second
	DefaultCloseTimeout = 3 * time.Second
)

// Options configures the preview window.
type Options struct {
	// ExecPath overrides executable discovery.
	ExecPath string
	Width    int
	Height   int
	// Args are appended to the default flags.
	Args []string
	// StartTimeout bounds process start, endpoint discovery and attach.
	StartTimeout time.Duration
	// CloseTimeout bounds the wait for the process to exit before it is killed.
	CloseTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = DefaultStartTimeout
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = DefaultCloseTimeout
	}
	return o
}

// Launcher starts Chrome windows. It implements session.Launcher.
type Launcher struct {
	opts   Options
	logger logging.Logger
}

// NewLauncher creates a Launcher.
func NewLauncher(opts Options, logger logging.Logger) *Launcher {
	return &Launcher{
		opts:   opts.withDefaults(),
		logger: logger.WithComponent("browser"),
	}
}

// newChrome configures a visible app window on url. Rod's launcher defaults
// are kept except those that hide the window or mark it as automated.
func (l *Launcher) newChrome(exe, url, profileDir string) *launcher.Launcher {
	chrome := launcher.New().
		Bin(exe).
		Headless(false).
		Leakless(false).
		UserDataDir(profileDir).
		RemoteDebuggingPort(0).
		Delete("no-startup-window").
		Delete("enable-automation").
		Set(flags.App, url).
		Set("disable-web-security").
		Set("allow-file-access-from-files").
		Set("window-size", strconv.Itoa(l.opts.Width), strconv.Itoa(l.opts.Height)).
		Set("no-first-run").
		Set("no-default-browser-check")

	for _, arg := range l.opts.Args {
		if !strings.HasPrefix(arg, "-") {
			chrome.Append(flags.Arguments, arg)
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if hasValue {
			chrome.Set(flags.Flag(name), value)
		} else {
			chrome.Set(flags.Flag(name))
		}
	}

	return chrome
}

// Flags returns the command line used to open url with the given profile.
func (l *Launcher) Flags(url, profileDir string) []string {
	return l.newChrome("", url, profileDir).FormatArgs()
}

// chromeProcess adapts the rod launcher to the process interface.
type chromeProcess struct {
	chrome *launcher.Launcher
}

func (p chromeProcess) Kill() error {
	p.chrome.Kill()
	return nil
}

// Launch opens a window on url and attaches to its page.
func (l *Launcher) Launch(ctx context.Context, url string) (session.Browser, error) {
	exe, err := FindExecutable(l.opts.ExecPath)
	if err != nil {
		return nil, err
	}

	profileDir, err := os.MkdirTemp("", "lavender-chrome-*")
	if err != nil {
		return nil, errors.NewSessionError(errors.ErrCodeBrowserLaunch, "creating browser profile", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, l.opts.StartTimeout)
	defer cancel()

	chrome := l.newChrome(exe, url, profileDir).Context(startCtx)
	wsURL, err := chrome.Launch()
	if err != nil {
		if chrome.PID() == 0 {
			os.RemoveAll(profileDir)
			return nil, errors.NewSessionError(errors.ErrCodeBrowserLaunch, "starting browser", err).
				WithContext("executable", exe)
		}
		chrome.Kill()
		chrome.Cleanup()
		if startCtx.Err() != nil {
			return nil, errors.NewSessionError(errors.ErrCodeBrowserLaunch, "timed out waiting for the browser endpoint", startCtx.Err())
		}
		return nil, errors.NewSessionError(errors.ErrCodeBrowserLaunch, "browser exited during startup", err)
	}
	l.logger.Debug(ctx, "Browser started", "executable", exe, "pid", chrome.PID(), "endpoint", wsURL)

	// Cleanup returns once the process is gone and the profile removed.
	exited := make(chan struct{})
	go func() {
		chrome.Cleanup()
		close(exited)
	}()

	abort := func(err error) (session.Browser, error) {
		chrome.Kill()
		<-exited
		return nil, err
	}

	conn, err := Dial(startCtx, wsURL, l.logger)
	if err != nil {
		return abort(err)
	}

	targetID, sessionID, err := attachPage(startCtx, conn, url)
	if err != nil {
		conn.Close()
		return abort(err)
	}

	l.logger.Debug(ctx, "Attached to preview page", "target", targetID)

	return newSession(sessionConfig{
		conn:         conn,
		targetID:     targetID,
		sessionID:    sessionID,
		process:      chromeProcess{chrome: chrome},
		exited:       exited,
		profileDir:   profileDir,
		closeTimeout: l.opts.CloseTimeout,
		logger:       l.logger,
	}), nil
}

// FindExecutable resolves the browser executable: explicit first, then the
// CHROME_PATH environment variable, then the locations rod's launcher knows
// for the current platform.
func FindExecutable(explicit string) (string, error) {
	if explicit != "" {
		if p, ok := lookPath(explicit); ok {
			return p, nil
		}
		return "", errors.NewSessionError(errors.ErrCodeBrowserNotFound, "browser executable not found: "+explicit, nil)
	}

	if env := os.Getenv("CHROME_PATH"); env != "" {
		if p, ok := lookPath(env); ok {
			return p, nil
		}
	}

	if p, ok := launcher.LookPath(); ok {
		return p, nil
	}

	return "", errors.NewSessionError(errors.ErrCodeBrowserNotFound,
		"no Chrome or Chromium installation found; set browser.path or CHROME_PATH", nil)
}

func lookPath(name string) (string, bool) {
	if strings.ContainsAny(name, `/\`) {
		info, err := os.Stat(name)
		if err != nil || info.IsDir() {
			return "", false
		}
		return name, true
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", false
	}
	return p, true
}
