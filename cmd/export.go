package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/storyline/internal/catalog"
	"github.com/fakeyudi/storyline/internal/export"
	"github.com/fakeyudi/storyline/internal/story"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <story-id>",
	Short: "Save a story as Markdown or JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := currentUser(); err != nil {
			return err
		}
		name := exportFormat
		if name == "" {
			name = cfg.DefaultFormat
		}
		format, err := export.ParseFormat(name)
		if err != nil {
			return err
		}

		client := newClient()
		c := catalog.New(client, logger)
		if err := c.Refresh(cmd.Context()); err != nil {
			return apiError("loading stories", err)
		}
		s, err := c.Find(args[0])
		if err != nil {
			if !errors.Is(err, catalog.ErrNotFound) {
				return err
			}
			return fmt.Errorf("%w: %s", err, args[0])
		}
		lines, err := client.ListLines(cmd.Context(), s.ID)
		if err != nil {
			return apiError("loading lines", err)
		}

		now := time.Now()
		data, err := export.RendererFor(format).Render(export.Build(s, lines, now))
		if err != nil {
			return fmt.Errorf("rendering export: %w", err)
		}

		if exportOutput == "-" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		path := exportOutput
		if path == "" {
			path = filepath.Join(cfg.OutputDir, exportFilename(s, now, format))
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		logger.Info().Str("story", s.ID).Str("path", path).Msg("story exported")
		fmt.Fprintf(cmd.OutOrStdout(), "  ✓ Exported %d lines to %s\n", len(lines), path)
		return nil
	},
}

// exportFilename is <slug>-<timestamp>.<ext>, falling back to the story ID
// when the title has nothing usable.
func exportFilename(s story.Story, at time.Time, f export.Format) string {
	slug := slugify(s.Title)
	if slug == "" {
		slug = slugify(s.ID)
	}
	if slug == "" {
		slug = "story"
	}
	return fmt.Sprintf("%s-%s.%s", slug, at.Format("20060102-150405"), f.Ext())
}

func slugify(s string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(sb.String(), "-")
	if r := []rune(out); len(r) > 48 {
		out = strings.TrimSuffix(string(r[:48]), "-")
	}
	return out
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "markdown or json (default from config)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file, or - for stdout")
	rootCmd.AddCommand(exportCmd)
}
