// Package cmd provides the command-line interface for lavender.
//
// Configuration System:
//
//	Settings are resolved from several sources, highest priority first:
//	1. Command-line flags (--config, --log-level, --staging-dir, ...)
//	2. Environment variables following LAVENDER_<SECTION>_<OPTION>
//	3. The configuration file: --config, then LAVENDER_CONFIG_FILE, then
//	   .lavender.yml in the current directory
//	4. Built-in defaults
//
// Environment Variables:
//
//	LAVENDER_CONFIG_FILE: Path to a custom configuration file
//	LAVENDER_STAGING_DIR: Override the staging directory
//	LAVENDER_BROWSER_PATH: Browser executable (CHROME_PATH is also honored)
//	LAVENDER_LOG_LEVEL: Log level
package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Daw588/lavender/internal/config"
	"github.com/Daw588/lavender/internal/errors"
	"github.com/Daw588/lavender/internal/logging"
	"github.com/Daw588/lavender/internal/preview"
)

var cfgFile string

// rootCmd previews a component when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lavender <component.svelte>",
	Short: "Live preview for a single Svelte component",
	Long: `Lavender bundles one Svelte component into a self-contained page, opens it
in a dedicated Chrome app window and rebuilds and reloads it whenever a
source file under the watch root changes.

A failing rebuild keeps the last good preview on screen. Closing the window
or pressing Ctrl+C ends the session.

Examples:
  lavender src/App.svelte                  # Preview App.svelte
  lavender src/App.svelte -l debug         # Preview with debug logging
  lavender build src/App.svelte            # Build once and print the page path`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPreview,
}

// Execute runs the root command and reports any error on stderr.
func Execute() error {
	cmd, err := rootCmd.ExecuteC()
	if err != nil {
		reportError(cmd.ErrOrStderr(), err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .lavender.yml, can also use LAVENDER_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "log format (text, json)")
	rootCmd.PersistentFlags().String("staging-dir", "", "directory for generated artifacts (default $TMPDIR/.render)")
	rootCmd.PersistentFlags().String("browser", "", "browser executable (default: auto-detect)")
}

// persistentFlagKeys maps persistent flags to configuration keys.
var persistentFlagKeys = map[string]string{
	"log-level":   "log-level",
	"log-format":  "log-format",
	"staging-dir": "staging.dir",
	"browser":     "browser.path",
}

// bindFlags binds the persistent flags to their configuration keys. Bindings
// are redone on every run since viper.Reset drops them.
func bindFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if key, ok := persistentFlagKeys[f.Name]; ok {
			_ = viper.BindPFlag(key, f)
		}
	})
}

// initConfig initializes the configuration system.
//
// Configuration file lookup (highest to lowest):
//  1. --config flag
//  2. LAVENDER_CONFIG_FILE environment variable
//  3. .lavender.yml in the current directory
//
// A missing default file is not an error.
func initConfig() {
	bindFlags(rootCmd.PersistentFlags())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("LAVENDER_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".lavender")
	}

	_ = config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig resolves the configuration and the logger built from it.
func loadConfig(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.LogFormat,
		Output: cmd.ErrOrStderr(),
	})

	return cfg, logger, nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	p, err := preview.New(preview.Options{
		Config: cfg,
		Source: args[0],
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return p.Run(ctx)
}

// reportError prints err for a terminal. Compile errors are listed one
// diagnostic per line.
func reportError(w io.Writer, err error) {
	if diagnostics := errors.Diagnostics(err); len(diagnostics) > 0 {
		fmt.Fprintln(w, "Build failed:")
		fmt.Fprintln(w, errors.FormatDiagnostics(diagnostics))
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
