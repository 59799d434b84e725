// Package export renders a story to a file and reads it back.
//
// Markdown exports are meant for people but embed the JSON document as a
// base64 payload, so both formats parse back losslessly.
package export

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Format names an export encoding.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

const (
	versionSentinel = "<!-- storyline-export-version: 1 -->"
	dataPrefix      = "<!-- storyline-data: "
	dataSuffix      = " -->"
)

// Ext returns the file extension for f, without the dot.
func (f Format) Ext() string {
	if f == FormatJSON {
		return "json"
	}
	return "md"
}

// ParseFormat accepts "markdown", "md" and "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md", "":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q (want markdown or json)", s)
}

// Renderer serializes a Document to bytes.
type Renderer interface {
	Render(doc *Document) ([]byte, error)
}

// RendererFor returns the renderer for f.
func RendererFor(f Format) Renderer {
	if f == FormatJSON {
		return &JSONRenderer{}
	}
	return &MarkdownRenderer{}
}

// JSONRenderer renders a Document as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// MarkdownRenderer renders a Document as readable Markdown with the JSON
// document embedded for round-trip parsing.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(doc *Document) ([]byte, error) {
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(jsonBytes)

	var sb strings.Builder

	sb.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&sb, "%s%s%s\n\n", dataPrefix, encoded, dataSuffix)

	title := doc.Story.Title
	if title == "" {
		title = "Untitled story"
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)

	// ## Summary
	sb.WriteString("## Summary\n\n")
	if !doc.Story.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "- Started: %s\n", doc.Story.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&sb, "- Exported: %s\n", doc.ExportedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "- Lines: %d\n", len(doc.Lines))
	fmt.Fprintf(&sb, "- Words: %d\n", doc.WordCount)
	sb.WriteString("\n")

	// ## Contributors
	sb.WriteString("## Contributors\n\n")
	if len(doc.Contributors) == 0 {
		sb.WriteString("_No contributors yet._\n")
	} else {
		for _, c := range doc.Contributors {
			noun := "lines"
			if c.Lines == 1 {
				noun = "line"
			}
			fmt.Fprintf(&sb, "- %s (%d %s)\n", c.Name, c.Lines, noun)
		}
	}
	sb.WriteString("\n")

	// ## Story
	sb.WriteString("## Story\n\n")
	if len(doc.Lines) == 0 {
		sb.WriteString("_No lines yet._\n")
	} else {
		sb.WriteString(doc.FullText())
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	// ## Lines
	sb.WriteString("## Lines\n\n")
	if len(doc.Lines) == 0 {
		sb.WriteString("_No lines yet._\n")
	} else {
		for i, l := range doc.Lines {
			stamp := ""
			if !l.CreatedAt.IsZero() {
				stamp = " (" + l.CreatedAt.Format("2006-01-02 15:04") + ")"
			}
			fmt.Fprintf(&sb, "%d. **%s**%s: %s\n", i+1, l.AuthorName(), stamp, l.Content)
		}
	}
	sb.WriteString("\n")

	return []byte(sb.String()), nil
}
