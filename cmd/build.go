package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Daw588/lavender/internal/preview"
)

var buildCmd = &cobra.Command{
	Use:   "build <component.svelte>",
	Short: "Build the preview page once without opening a window",
	Long: `Bundle a component into the staging directory and print the path of the
generated page. No browser is started and nothing is watched.

Examples:
  lavender build src/App.svelte                       # Build into $TMPDIR/.render
  lavender build src/App.svelte --staging-dir ./out   # Build into ./out`,
	Aliases: []string{"b"},
	Args:    cobra.ExactArgs(1),
	RunE:    runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
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

	document, err := p.Build(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), document)
	return nil
}
