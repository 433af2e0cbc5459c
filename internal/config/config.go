// Package config provides configuration management for lavender using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration system supports a .lavender.yml file, environment variable
// overrides with the LAVENDER_ prefix, and validation. It manages the staging
// directory, the watch root, the bundler toolchain, and the preview window.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Staging   StagingConfig `mapstructure:"staging" yaml:"staging"`
	Watch     WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Bundler   BundlerConfig `mapstructure:"bundler" yaml:"bundler"`
	Browser   BrowserConfig `mapstructure:"browser" yaml:"browser"`
	LogLevel  string        `mapstructure:"log-level" yaml:"log-level"`
	LogFormat string        `mapstructure:"log-format" yaml:"log-format"`
}

type StagingConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type WatchConfig struct {
	Root   string   `mapstructure:"root" yaml:"root"`
	Ignore []string `mapstructure:"ignore" yaml:"ignore"`
}

type BundlerConfig struct {
	Node       string `mapstructure:"node" yaml:"node"`
	Preprocess bool   `mapstructure:"preprocess" yaml:"preprocess"`
}

type BrowserConfig struct {
	Path         string        `mapstructure:"path" yaml:"path"`
	Width        int           `mapstructure:"width" yaml:"width"`
	Height       int           `mapstructure:"height" yaml:"height"`
	StartTimeout time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`
}

const (
	DefaultWidth        = 640
	DefaultHeight       = 480
	DefaultStartTimeout = 20 * time.Second
	DefaultNode         = "node"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// DefaultStagingDir is the scratch directory used when staging.dir is unset.
func DefaultStagingDir() string {
	return filepath.Join(os.TempDir(), ".render")
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Staging: StagingConfig{Dir: DefaultStagingDir()},
		Watch: WatchConfig{
			Root:   ".",
			Ignore: []string{"node_modules"},
		},
		Bundler: BundlerConfig{
			Node:       DefaultNode,
			Preprocess: true,
		},
		Browser: BrowserConfig{
			Width:        DefaultWidth,
			Height:       DefaultHeight,
			StartTimeout: DefaultStartTimeout,
		},
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}

// Keys lists every configuration key. Environment variables only override
// keys viper knows about, so these are bound explicitly.
var Keys = []string{
	"staging.dir",
	"watch.root",
	"watch.ignore",
	"bundler.node",
	"bundler.preprocess",
	"browser.path",
	"browser.width",
	"browser.height",
	"browser.start_timeout",
	"log-level",
	"log-format",
}

// BindEnv binds every key in Keys to its LAVENDER_ environment variable.
// Dots and dashes become underscores: browser.start_timeout reads
// LAVENDER_BROWSER_START_TIMEOUT.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("LAVENDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, key := range Keys {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, fills in defaults for unset
// values, and validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	defaults := Default()

	if config.Staging.Dir == "" {
		config.Staging.Dir = defaults.Staging.Dir
	}
	if config.Watch.Root == "" {
		config.Watch.Root = defaults.Watch.Root
	}
	if !v.IsSet("watch.ignore") {
		config.Watch.Ignore = defaults.Watch.Ignore
	}
	if config.Bundler.Node == "" {
		config.Bundler.Node = defaults.Bundler.Node
	}
	// viper cannot tell an explicit false from an unset bool after Unmarshal
	if !v.IsSet("bundler.preprocess") {
		config.Bundler.Preprocess = defaults.Bundler.Preprocess
	}
	if config.Browser.Width == 0 {
		config.Browser.Width = defaults.Browser.Width
	}
	if config.Browser.Height == 0 {
		config.Browser.Height = defaults.Browser.Height
	}
	if config.Browser.StartTimeout == 0 {
		config.Browser.StartTimeout = defaults.Browser.StartTimeout
	}
	if config.Browser.Path == "" {
		config.Browser.Path = os.Getenv("CHROME_PATH")
	}
	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}
	if config.LogFormat == "" {
		config.LogFormat = defaults.LogFormat
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
