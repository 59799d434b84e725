package export

import (
	"time"

	"github.com/fakeyudi/storyline/internal/story"
)

// Document is the complete, renderable representation of a story.
type Document struct {
	Story        story.Story   `json:"story"`
	Lines        []story.Line  `json:"lines"`
	ExportedAt   time.Time     `json:"exported_at"`
	Contributors []Contributor `json:"contributors"`
	WordCount    int           `json:"word_count"`
}

// Contributor summarizes one writer's share of a story.
type Contributor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Lines int    `json:"lines"`
}

// Build assembles a Document from a story and its lines in sequence order.
// Contributors are listed in order of first appearance.
func Build(s story.Story, lines []story.Line, exportedAt time.Time) *Document {
	doc := &Document{
		Story:        s,
		Lines:        append([]story.Line{}, lines...),
		ExportedAt:   exportedAt,
		Contributors: []Contributor{},
		WordCount:    story.WordCount(story.FullText(lines)),
	}
	index := make(map[string]int)
	for _, l := range lines {
		key := l.AuthorID
		if key == "" {
			key = l.AuthorName()
		}
		i, ok := index[key]
		if !ok {
			i = len(doc.Contributors)
			index[key] = i
			doc.Contributors = append(doc.Contributors, Contributor{ID: l.AuthorID, Name: l.AuthorName()})
		}
		doc.Contributors[i].Lines++
	}
	return doc
}

// FullText returns the story text without any decoration.
func (d *Document) FullText() string {
	return story.FullText(d.Lines)
}
