package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/storyline/internal/catalog"
	"github.com/fakeyudi/storyline/internal/story"
)

var (
	newTitle     string
	newFirstLine string
)

var storiesCmd = &cobra.Command{
	Use:   "stories",
	Short: "List stories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := currentUser(); err != nil {
			return err
		}
		c := catalog.New(newClient(), logger)
		if err := c.Refresh(cmd.Context()); err != nil {
			return apiError("listing stories", err)
		}

		out := cmd.OutOrStdout()
		stories := c.Stories()
		if len(stories) == 0 {
			fmt.Fprintln(out, "No stories yet. Start one with 'storyline stories create'.")
			return nil
		}
		now := time.Now()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tCREATED")
		for _, s := range stories {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, titleOf(s), story.TimeAgo(s.CreatedAt, now))
		}
		return tw.Flush()
	},
}

var storiesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Start a new story with its first line",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := currentUser()
		if err != nil {
			return err
		}
		c := catalog.New(newClient(), logger)
		s, err := c.Create(cmd.Context(), u.ID, newTitle, newFirstLine)
		switch {
		case err == nil:
		case errors.Is(err, catalog.ErrTitleRequired), errors.Is(err, catalog.ErrFirstLineRequired):
			return err
		default:
			return apiError("creating story", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  ✓ Created %q (%s)\n", titleOf(s), s.ID)
		return nil
	},
}

func titleOf(s story.Story) string {
	if s.Title == "" {
		return "Untitled story"
	}
	return s.Title
}

func init() {
	storiesCreateCmd.Flags().StringVar(&newTitle, "title", "", "story title")
	storiesCreateCmd.Flags().StringVar(&newFirstLine, "first-line", "", "opening line of the story")
	storiesCmd.AddCommand(storiesCreateCmd)
	rootCmd.AddCommand(storiesCmd)
}
