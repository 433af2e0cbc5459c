package browser

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Daw588/lavender/internal/errors"
	"github.com/Daw588/lavender/internal/testutils"
)

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()

	assert.Equal(t, DefaultWidth, opts.Width)
	assert.Equal(t, DefaultHeight, opts.Height)
	assert.Equal(t, DefaultStartTimeout, opts.StartTimeout)
	assert.Equal(t, DefaultCloseTimeout, opts.CloseTimeout)

	custom := Options{Width: 1024, Height: 768}.withDefaults()
	assert.Equal(t, 1024, custom.Width)
	assert.Equal(t, 768, custom.Height)
}

func TestLauncherFlags(t *testing.T) {
	l := NewLauncher(Options{Args: []string{"--mute-audio", "--lang=de"}}, testutils.NewTestLogger())

	args := l.Flags("file:///tmp/render/index.html", "/tmp/profile")

	assert.Subset(t, args, []string{
		"--app=file:///tmp/render/index.html",
		"--disable-web-security",
		"--allow-file-access-from-files",
		"--window-size=640,480",
		"--remote-debugging-port=0",
		"--user-data-dir=/tmp/profile",
		"--no-first-run",
		"--no-default-browser-check",
		"--mute-audio",
		"--lang=de",
	})
	for _, arg := range args {
		assert.False(t, strings.HasPrefix(arg, "--headless"), arg)
		assert.NotEqual(t, "--no-startup-window", arg)
		assert.NotEqual(t, "--enable-automation", arg)
		assert.False(t, strings.HasPrefix(arg, "--rod-"), arg)
	}
}

func TestLauncherFlagsWindowSize(t *testing.T) {
	l := NewLauncher(Options{Width: 1024, Height: 768}, testutils.NewTestLogger())
	assert.Contains(t, l.Flags("file:///a.html", "/tmp/profile"), "--window-size=1024,768")
}

func TestFindExecutable(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "my-chrome")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))

	t.Run("explicit path", func(t *testing.T) {
		got, err := FindExecutable(exe)
		require.NoError(t, err)
		assert.Equal(t, exe, got)
	})

	t.Run("explicit path missing", func(t *testing.T) {
		_, err := FindExecutable(filepath.Join(dir, "missing"))
		require.Error(t, err)
		assert.True(t, errors.IsSessionError(err))
	})

	t.Run("explicit directory", func(t *testing.T) {
		_, err := FindExecutable(dir)
		assert.Error(t, err)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("CHROME_PATH", exe)
		got, err := FindExecutable("")
		require.NoError(t, err)
		assert.Equal(t, exe, got)
	})

	t.Run("search path", func(t *testing.T) {
		if runtime.GOOS != "linux" {
			t.Skip("candidate list is platform specific")
		}
		bin := t.TempDir()
		chromium := filepath.Join(bin, "chromium")
		require.NoError(t, os.WriteFile(chromium, []byte("#!/bin/sh\n"), 0o755))

		t.Setenv("CHROME_PATH", "")
		t.Setenv("PATH", bin)

		got, err := FindExecutable("")
		require.NoError(t, err)
		assert.FileExists(t, got)
	})

	t.Run("nothing installed", func(t *testing.T) {
		if runtime.GOOS != "linux" {
			t.Skip("candidate list is platform specific")
		}
		t.Setenv("CHROME_PATH", "")
		t.Setenv("PATH", t.TempDir())
		if p, ok := launcher.LookPath(); ok {
			t.Skipf("browser installed system-wide at %s", p)
		}

		_, err := FindExecutable("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CHROME_PATH")
	})
}

func TestLaunchMissingExecutable(t *testing.T) {
	l := NewLauncher(Options{ExecPath: filepath.Join(t.TempDir(), "missing")}, testutils.NewTestLogger())

	_, err := l.Launch(context.Background(), "file:///tmp/index.html")
	require.Error(t, err)
	assert.True(t, errors.IsSessionError(err))
}

// writeScript creates an executable shell script standing in for Chrome.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}

	path := filepath.Join(t.TempDir(), "fake-chrome")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestLaunchBrowserExitsDuringStartup(t *testing.T) {
	exe := writeScript(t, "exit 1\n")
	l := NewLauncher(Options{ExecPath: exe, StartTimeout: 5 * time.Second}, testutils.NewTestLogger())

	_, err := l.Launch(context.Background(), "file:///tmp/index.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited during startup")
}

func TestLaunchTimesOutWithoutEndpoint(t *testing.T) {
	exe := writeScript(t, "exec sleep 30\n")
	l := NewLauncher(Options{ExecPath: exe, StartTimeout: 150 * time.Millisecond}, testutils.NewTestLogger())

	_, err := l.Launch(context.Background(), "file:///tmp/index.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestLaunchAttachReloadClose(t *testing.T) {
	const pageURL = "file:///tmp/render/index.html"
	f := newFakeDevTools(t, pageURL)
	t.Setenv("FAKE_DEVTOOLS_PORT", f.Port())

	exe := writeScript(t, `echo "DevTools listening on ws://127.0.0.1:$FAKE_DEVTOOLS_PORT/devtools/browser/fake" >&2
exec sleep 30
`)

	l := NewLauncher(Options{
		ExecPath:     exe,
		StartTimeout: 5 * time.Second,
		CloseTimeout: 200 * time.Millisecond,
	}, testutils.NewTestLogger())

	b, err := l.Launch(context.Background(), pageURL)
	require.NoError(t, err)

	s, ok := b.(*Session)
	require.True(t, ok)
	profile := s.cfg.profileDir
	assert.DirExists(t, profile)

	require.NoError(t, b.Reload(context.Background()))
	assert.Equal(t, 1, f.Reloads())

	require.NoError(t, b.Close())
	assert.True(t, isClosed(b.Disconnected()))

	_, err = os.Stat(profile)
	assert.True(t, os.IsNotExist(err), "profile directory is removed")
}
