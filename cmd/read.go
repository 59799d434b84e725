package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/storyline/internal/export"
	"github.com/fakeyudi/storyline/internal/tui"
)

var plainOutput bool

var readCmd = &cobra.Command{
	Use:   "read <file>",
	Short: "Read an exported story",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file not found: %s", path)
			}
			return err
		}

		format := export.Detect(data)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			format = export.FormatJSON
		case ".md", ".markdown":
			format = export.FormatMarkdown
		}
		doc, err := export.ParserFor(format).Parse(data)
		if err != nil {
			return err
		}

		if plainOutput {
			printDocument(cmd.OutOrStdout(), doc)
			return nil
		}
		return tui.RunReader(doc, path)
	},
}

// printDocument writes a plain-text rendition of doc.
func printDocument(w io.Writer, doc *export.Document) {
	fmt.Fprintf(w, "# %s\n\n", titleOf(doc.Story))

	fmt.Fprintln(w, "## Summary")
	fmt.Fprintf(w, "  Story ID:  %s\n", doc.Story.ID)
	if !doc.Story.CreatedAt.IsZero() {
		fmt.Fprintf(w, "  Created:   %s\n", doc.Story.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(w, "  Exported:  %s\n", doc.ExportedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "  Lines:     %d\n", len(doc.Lines))
	fmt.Fprintf(w, "  Words:     %d\n", doc.WordCount)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Contributors")
	if len(doc.Contributors) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, c := range doc.Contributors {
		fmt.Fprintf(w, "  %s (%d)\n", c.Name, c.Lines)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Story")
	if len(doc.Lines) == 0 {
		fmt.Fprintln(w, "  (no lines yet)")
	} else {
		fmt.Fprintln(w, indent(doc.FullText(), "  "))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Lines")
	for i, l := range doc.Lines {
		fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, l.AuthorName(), l.Content)
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

func init() {
	readCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	rootCmd.AddCommand(readCmd)
}
