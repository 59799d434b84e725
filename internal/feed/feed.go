// Package feed holds the ordered sequence of lines for the story that is
// currently open.
//
// Lines are keyed by ID so a line delivered both by the initial fetch and by a
// push event is shown once. Arrival order is kept unless a line carries a
// server timestamp earlier than lines already present, in which case it is
// placed at its timestamp position.
package feed

import (
	"sync"

	"github.com/fakeyudi/storyline/internal/story"
)

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	storyID string
	lines   []story.Line
	index   map[string]struct{}
}

// New returns an empty store for storyID. An empty storyID disables the
// per-line story check.
func New(storyID string) *Store {
	return &Store{
		storyID: storyID,
		index:   make(map[string]struct{}),
	}
}

// StoryID returns the story this store belongs to.
func (s *Store) StoryID() string {
	return s.storyID
}

// Seed installs the result of the initial fetch. Lines pushed before the
// fetch completed and missing from it are merged back in.
func (s *Store) Seed(initial []story.Line) {
	s.mu.Lock()
	defer s.mu.Unlock()

	early := s.lines
	s.lines = make([]story.Line, 0, len(initial)+len(early))
	s.index = make(map[string]struct{}, len(initial)+len(early))
	for _, l := range initial {
		s.insert(l)
	}
	for _, l := range early {
		s.insert(l)
	}
}

// Append adds a pushed line. It reports false when the line was rejected:
// invalid payload, another story's line, or a duplicate.
func (s *Store) Append(l story.Line) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(l)
}

func (s *Store) insert(l story.Line) bool {
	if l.Validate() != nil {
		return false
	}
	if s.storyID != "" && l.StoryID != "" && l.StoryID != s.storyID {
		return false
	}
	if _, dup := s.index[l.ID]; dup {
		return false
	}
	s.index[l.ID] = struct{}{}

	pos := len(s.lines)
	if !l.CreatedAt.IsZero() {
		for pos > 0 {
			prev := s.lines[pos-1].CreatedAt
			if prev.IsZero() || !l.CreatedAt.Before(prev) {
				break
			}
			pos--
		}
	}
	s.lines = append(s.lines, story.Line{})
	copy(s.lines[pos+1:], s.lines[pos:])
	s.lines[pos] = l
	return true
}

// Lines returns a copy of the current sequence.
func (s *Store) Lines() []story.Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]story.Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// Len returns the number of lines.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// FullText returns the space-joined content of every line.
func (s *Store) FullText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return story.FullText(s.lines)
}

// WordCount returns the number of whitespace tokens in FullText.
func (s *Store) WordCount() int {
	return story.WordCount(s.FullText())
}
