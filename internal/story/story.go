// Package story holds the data model shared by every storyline component:
// stories, the lines contributed to them, and the users who write them.
package story

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Story is a collaboratively authored narrative. Immutable once created.
type Story struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatorID string    `json:"creatorId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Author is the display information the backend denormalizes onto a line.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Line is one contribution appended to a story.
type Line struct {
	ID        string    `json:"id"`
	StoryID   string    `json:"storyId,omitempty"`
	AuthorID  string    `json:"authorId"`
	Author    *Author   `json:"author,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// User describes an authenticated writer.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ErrInvalidLine is returned by Line.Validate for payloads that must not be
// allowed into a feed.
var ErrInvalidLine = errors.New("invalid line")

// Validate reports whether l is complete enough to display.
func (l Line) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidLine)
	}
	if l.Content == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidLine)
	}
	return nil
}

// AuthorName returns the denormalized author name, or "anonymous".
func (l Line) AuthorName() string {
	if l.Author != nil && l.Author.Name != "" {
		return l.Author.Name
	}
	return "anonymous"
}

// FullText joins the content of lines with single spaces, in slice order.
func FullText(lines []Line) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.Content
	}
	return strings.Join(parts, " ")
}

// WordCount counts whitespace-separated tokens in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// DisplayName picks the friendliest name available for u.
func DisplayName(u User) string {
	if u.Name != "" {
		return u.Name
	}
	if at := strings.IndexByte(u.Email, '@'); at > 0 {
		return u.Email[:at]
	}
	if u.Email != "" {
		return u.Email
	}
	return "writer"
}

// TimeAgo renders the age of t relative to now in a compact form:
// "now", "5m", "3h", "2d".
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	}
}
