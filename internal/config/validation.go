package config

import (
	"fmt"
	"strings"

	"github.com/Daw588/lavender/internal/errors"
)

// Validate checks configuration values for correctness.
func Validate(config *Config) error {
	var problems []string

	if strings.TrimSpace(config.Staging.Dir) == "" {
		problems = append(problems, "staging.dir must not be empty")
	}
	if strings.ContainsRune(config.Staging.Dir, 0) {
		problems = append(problems, "staging.dir contains a NUL byte")
	}

	if strings.TrimSpace(config.Watch.Root) == "" {
		problems = append(problems, "watch.root must not be empty")
	}
	for _, name := range config.Watch.Ignore {
		if name == "" || strings.ContainsAny(name, `/\`) {
			problems = append(problems, fmt.Sprintf("watch.ignore entry %q must be a bare directory name", name))
		}
	}

	if strings.TrimSpace(config.Bundler.Node) == "" {
		problems = append(problems, "bundler.node must not be empty")
	}

	if config.Browser.Width <= 0 || config.Browser.Height <= 0 {
		problems = append(problems, fmt.Sprintf("browser window size %dx%d must be positive", config.Browser.Width, config.Browser.Height))
	}
	if config.Browser.StartTimeout < 0 {
		problems = append(problems, "browser.start_timeout must not be negative")
	}

	switch config.LogFormat {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log-format %q must be text or json", config.LogFormat))
	}

	if len(problems) > 0 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid configuration: "+strings.Join(problems, "; "))
	}

	return nil
}
