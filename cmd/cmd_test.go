package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Daw588/lavender/internal/config"
	"github.com/Daw588/lavender/internal/errors"
	"github.com/Daw588/lavender/internal/staging"
)

// executeCommand runs the root command in a fresh temporary directory with
// flags and configuration reset.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	t.Chdir(t.TempDir())
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfgFile = ""
	versionFormat = "text"
	versionShort = false
	configFormat = "yaml"
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		require.NoError(t, f.Value.Set(f.DefValue))
		f.Changed = false
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)

	_, err := rootCmd.ExecuteC()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRootRequiresComponent(t *testing.T) {
	_, err := executeCommand(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestRootRejectsInvalidSource(t *testing.T) {
	dir := t.TempDir()
	stage := filepath.Join(dir, "stage")

	tests := []struct {
		name   string
		source string
	}{
		{"directory", dir},
		{"missing file", filepath.Join(dir, "Missing.svelte")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(t, tt.source, "--staging-dir", stage)
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
			assert.NoDirExists(t, stage)
		})
	}
}

func TestBuildCommand(t *testing.T) {
	dir := t.TempDir()
	source := writeFile(t, filepath.Join(dir, "src", "Widget.js"), `export default class Widget {
	constructor(options) {
		options.target.textContent = "widget works";
	}
}
`)
	stage := filepath.Join(dir, "stage")

	out, err := executeCommand(t, "build", source, "--staging-dir", stage)
	require.NoError(t, err)

	document := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(stage, staging.Document), document)

	html, err := os.ReadFile(document)
	require.NoError(t, err)
	assert.Contains(t, string(html), "widget works")
	assert.Contains(t, string(html), `<title>Widget - Preview</title>`)

	for _, name := range []string{staging.EntryModule, staging.Bundle, staging.Icon} {
		assert.FileExists(t, filepath.Join(stage, name))
	}
}

func TestBuildCommandCompileError(t *testing.T) {
	dir := t.TempDir()
	source := writeFile(t, filepath.Join(dir, "Broken.js"), "export default class {\n")

	_, err := executeCommand(t, "build", source, "--staging-dir", filepath.Join(dir, "stage"))
	require.Error(t, err)
	assert.True(t, errors.IsCompileError(err))
	assert.NotEmpty(t, errors.Diagnostics(err))

	var report bytes.Buffer
	reportError(&report, err)
	assert.True(t, strings.HasPrefix(report.String(), "Build failed:\n"), report.String())
	assert.Contains(t, report.String(), "Broken.js")
}

func TestBuildCommandRequiresComponent(t *testing.T) {
	_, err := executeCommand(t, "build")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		out, err := executeCommand(t, "version")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "lavender "), out)
		assert.Contains(t, out, "Go: ")
		assert.Contains(t, out, "Platform: ")
	})

	t.Run("short", func(t *testing.T) {
		out, err := executeCommand(t, "version", "--short")
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(out, "\n"))
		assert.NotContains(t, out, "Platform")
	})

	t.Run("json", func(t *testing.T) {
		out, err := executeCommand(t, "version", "--format", "json")
		require.NoError(t, err)

		var info map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &info))
		assert.Contains(t, info, "version")
		assert.Contains(t, info, "go_version")
		assert.Contains(t, info, "platform")
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := executeCommand(t, "version", "--format", "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported format")
	})
}

func TestConfigCommand(t *testing.T) {
	t.Run("defaults as yaml", func(t *testing.T) {
		out, err := executeCommand(t, "config")
		require.NoError(t, err)

		var cfg config.Config
		require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
		assert.Equal(t, config.DefaultWidth, cfg.Browser.Width)
		assert.Equal(t, config.DefaultHeight, cfg.Browser.Height)
		assert.Equal(t, config.DefaultStartTimeout, cfg.Browser.StartTimeout)
		assert.Equal(t, []string{"node_modules"}, cfg.Watch.Ignore)
		assert.True(t, cfg.Bundler.Preprocess)
	})

	t.Run("environment and flags", func(t *testing.T) {
		t.Setenv("LAVENDER_BROWSER_WIDTH", "1024")
		stage := filepath.Join(t.TempDir(), "stage")

		out, err := executeCommand(t, "config", "--staging-dir", stage, "--log-level", "debug")
		require.NoError(t, err)

		var cfg config.Config
		require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
		assert.Equal(t, 1024, cfg.Browser.Width)
		assert.Equal(t, stage, cfg.Staging.Dir)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("config file", func(t *testing.T) {
		path := writeFile(t, filepath.Join(t.TempDir(), "custom.yml"), `browser:
  height: 900
watch:
  ignore: [node_modules, dist]
`)

		out, err := executeCommand(t, "config", "--config", path)
		require.NoError(t, err)

		var cfg config.Config
		require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
		assert.Equal(t, 900, cfg.Browser.Height)
		assert.Equal(t, []string{"node_modules", "dist"}, cfg.Watch.Ignore)
	})

	t.Run("json", func(t *testing.T) {
		out, err := executeCommand(t, "config", "--format", "json")
		require.NoError(t, err)

		var cfg map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(out), &cfg))
		assert.Contains(t, cfg, "Browser")
	})

	t.Run("invalid configuration", func(t *testing.T) {
		t.Setenv("LAVENDER_BROWSER_WIDTH", "-1")
		_, err := executeCommand(t, "config")
		assert.Error(t, err)
	})
}

func TestReportError(t *testing.T) {
	var out bytes.Buffer
	reportError(&out, errors.ErrFileNotFound("App.svelte"))
	assert.True(t, strings.HasPrefix(out.String(), "Error: "), out.String())
	assert.Contains(t, out.String(), "App.svelte")
}
