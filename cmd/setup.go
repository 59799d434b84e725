package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/storyline/internal/config"
	"github.com/fakeyudi/storyline/internal/prompt"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure storyline (re-run anytime to edit settings)",
	// Bypass the normal PersistentPreRunE so setup works with a broken or
	// missing config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd)
	},
}

// runSetup runs the interactive setup wizard with the current global config
// as defaults.
func runSetup(cmd *cobra.Command) error {
	existing := config.Defaults()
	if g, err := config.LoadGlobal(); err == nil && g != nil {
		existing = config.Merge(g, nil)
	}

	p := prompt.New(cmd.InOrStdin(), cmd.OutOrStdout())
	updated, err := p.RunSetup(existing)
	if err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	path, err := config.SaveGlobal(updated)
	if err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  ✓ Config saved to %s\n", path)
	fmt.Fprintln(out, "  Setup complete. Run 'storyline register' or 'storyline login' next.")
	fmt.Fprintln(out)
	return nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
